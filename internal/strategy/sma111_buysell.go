package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
	"github.com/kripteks/tradecore/internal/indicator"
)

// Sma111BuySell is a trend-following strategy that buys when the close
// crosses above the SMA and sells when it crosses back below. Trading only
// on the crossover itself (not on trend state) avoids whipsawing in and out
// on every candle while the price hovers around the average.
type Sma111BuySell struct {
	period        int
	targetPercent decimal.Decimal // take-profit distance, 0 disables
	stopPercent   decimal.Decimal // stop-loss distance, 0 disables
}

// NewSma111BuySell returns a Sma111BuySell with default parameters.
func NewSma111BuySell() *Sma111BuySell {
	return &Sma111BuySell{
		period:        sma111Period,
		targetPercent: decimal.NewFromInt(10),
		stopPercent:   decimal.NewFromInt(5),
	}
}

func (s *Sma111BuySell) ID() string   { return "sma111-buysell" }
func (s *Sma111BuySell) Name() string { return "SMA 111 Crossover" }
func (s *Sma111BuySell) Description() string {
	return "Buys the close crossing above the SMA and sells the cross back below; one position per crossover."
}
func (s *Sma111BuySell) Category() domain.StrategyCategory { return domain.CategoryBoth }
func (s *Sma111BuySell) MinLookback() int                  { return s.period + 1 }

func (s *Sma111BuySell) SetParameters(params map[string]string) error {
	var err error
	if s.period, err = paramInt(params, "smaPeriod", s.period); err != nil {
		return err
	}
	if s.targetPercent, err = paramDecimal(params, "targetPercent", s.targetPercent); err != nil {
		return err
	}
	if s.stopPercent, err = paramDecimal(params, "stopPercent", s.stopPercent); err != nil {
		return err
	}
	return nil
}

func (s *Sma111BuySell) Analyze(candles []domain.Candle, balance, positionQty, entryPrice decimal.Decimal, currentStep int) (domain.StrategyResult, error) {
	if len(candles) < s.MinLookback() {
		return domain.StrategyResult{}, nil
	}

	closes := indicator.Closes(candles)
	sma := indicator.SMA(closes, s.period)
	i := len(candles) - 1
	cur, prev := sma[i], sma[i-1]
	last := candles[i]

	res := domain.StrategyResult{
		Price:      last.Close,
		Time:       last.OpenTime,
		Indicators: map[string]decimal.Decimal{fmt.Sprintf("sma%d", s.period): cur},
	}

	bullishCross := closes[i-1].LessThanOrEqual(prev) && last.Close.GreaterThan(cur)
	bearishCross := closes[i-1].GreaterThanOrEqual(prev) && last.Close.LessThan(cur)

	if positionQty.IsZero() {
		if bullishCross {
			res.Action = domain.ActionBuy
			res.Description = fmt.Sprintf("bullish SMA%d cross at %s", s.period, last.Close)
			if s.targetPercent.IsPositive() {
				res.TargetPrice = last.Close.Mul(one.Add(pct(s.targetPercent)))
			}
			if s.stopPercent.IsPositive() {
				res.StopPrice = last.Close.Mul(one.Sub(pct(s.stopPercent)))
			}
		} else if last.Close.GreaterThan(cur) {
			res.Description = "trend up, waiting for a fresh crossover"
		} else {
			res.Description = "trend down, neutral"
		}
		return res, nil
	}

	if bearishCross {
		res.Action = domain.ActionSell
		res.Description = fmt.Sprintf("bearish SMA%d cross at %s, closing position", s.period, last.Close)
	} else {
		res.Description = "carrying position, trend intact"
	}
	return res, nil
}

// SignalScore is 80 above the SMA, 20 below it.
func (s *Sma111BuySell) SignalScore(candles []domain.Candle) decimal.Decimal {
	if len(candles) < s.MinLookback() {
		return decimal.Zero
	}
	sma := indicator.SMA(indicator.Closes(candles), s.period)
	if lastClose(candles).GreaterThan(sma[len(sma)-1]) {
		return decimal.NewFromInt(80)
	}
	return decimal.NewFromInt(20)
}
