package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
	"github.com/kripteks/tradecore/internal/indicator"
)

const sma111Period = 111

// Sma111Breakout scores symbols whose price has broken above the 111-period
// SMA. Fresh breakouts score 100; the score decays by 5 points for every
// candle the trend has already been running, so scanners surface the newest
// breakouts first.
type Sma111Breakout struct{}

// NewSma111Breakout returns a Sma111Breakout strategy.
func NewSma111Breakout() *Sma111Breakout { return &Sma111Breakout{} }

func (s *Sma111Breakout) ID() string   { return "sma111-breakout" }
func (s *Sma111Breakout) Name() string { return "SMA 111 Breakout (Scanner)" }
func (s *Sma111Breakout) Description() string {
	return "Scans for prices crossing above the 111-period SMA; brand new breakouts rank highest and the score decays as the trend ages."
}
func (s *Sma111Breakout) Category() domain.StrategyCategory { return domain.CategoryScanner }
func (s *Sma111Breakout) MinLookback() int                  { return sma111Period + 1 }

func (s *Sma111Breakout) SetParameters(params map[string]string) error { return nil }

func (s *Sma111Breakout) Analyze(candles []domain.Candle, balance, positionQty, entryPrice decimal.Decimal, currentStep int) (domain.StrategyResult, error) {
	if len(candles) < s.MinLookback() {
		return domain.StrategyResult{}, nil
	}

	sma := indicator.SMA(indicator.Closes(candles), sma111Period)
	cur := sma[len(sma)-1]
	last := candles[len(candles)-1]

	res := domain.StrategyResult{
		Price:      last.Close,
		Time:       last.OpenTime,
		Indicators: map[string]decimal.Decimal{"sma111": cur},
	}

	switch {
	case last.Close.GreaterThan(cur) && positionQty.IsZero():
		res.Action = domain.ActionBuy
		res.Description = fmt.Sprintf("price %s above SMA111 %s", last.Close, cur)
	case last.Close.GreaterThan(cur):
		res.Description = "trend intact, holding"
	case positionQty.IsPositive():
		res.Action = domain.ActionSell
		res.Description = fmt.Sprintf("price %s dropped below SMA111 %s", last.Close, cur)
	default:
		res.Description = "below SMA111, no setup"
	}
	return res, nil
}

// SignalScore returns 100 for a breakout on the latest candle and subtracts
// 5 points per candle the price has already spent above the SMA.
func (s *Sma111Breakout) SignalScore(candles []domain.Candle) decimal.Decimal {
	if len(candles) < s.MinLookback() {
		return decimal.Zero
	}

	sma := indicator.SMA(indicator.Closes(candles), sma111Period)
	if !lastClose(candles).GreaterThan(sma[len(sma)-1]) {
		return decimal.Zero
	}

	candlesSinceBreakout := 0
	for i := len(candles) - 2; i >= sma111Period-1; i-- {
		if candles[i].Close.LessThan(sma[i]) {
			break
		}
		candlesSinceBreakout++
	}

	score := decimal.NewFromInt(100 - int64(candlesSinceBreakout)*5)
	if score.IsNegative() {
		return decimal.Zero
	}
	return score
}
