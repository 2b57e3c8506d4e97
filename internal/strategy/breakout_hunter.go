package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
	"github.com/kripteks/tradecore/internal/indicator"
)

// BreakoutHunter buys closes that break above the highest high of the
// preceding lookback window and exits when the close falls back through the
// window's low. The signal score weighs breakout distance, volume expansion
// and candle body strength, so flat tapes score zero.
type BreakoutHunter struct {
	lookback      int
	targetPercent decimal.Decimal // 0 disables the take-profit
	stopPercent   decimal.Decimal // 0 disables the stop-loss
}

// NewBreakoutHunter returns a BreakoutHunter with default parameters.
func NewBreakoutHunter() *BreakoutHunter {
	return &BreakoutHunter{
		lookback:      20,
		targetPercent: decimal.NewFromInt(15),
		stopPercent:   decimal.NewFromInt(6),
	}
}

func (s *BreakoutHunter) ID() string   { return "breakout-hunter" }
func (s *BreakoutHunter) Name() string { return "Breakout Hunter" }
func (s *BreakoutHunter) Description() string {
	return "Buys closes breaking above the recent swing high, confirmed by volume; exits when the swing low gives way."
}
func (s *BreakoutHunter) Category() domain.StrategyCategory { return domain.CategoryBoth }
func (s *BreakoutHunter) MinLookback() int                  { return s.lookback + 1 }

func (s *BreakoutHunter) SetParameters(params map[string]string) error {
	var err error
	if s.lookback, err = paramInt(params, "lookback", s.lookback); err != nil {
		return err
	}
	if s.lookback < 2 {
		return fmt.Errorf("%w: lookback=%d", domain.ErrInvalidParameter, s.lookback)
	}
	if s.targetPercent, err = paramDecimal(params, "targetPercent", s.targetPercent); err != nil {
		return err
	}
	if s.stopPercent, err = paramDecimal(params, "stopPercent", s.stopPercent); err != nil {
		return err
	}
	return nil
}

func (s *BreakoutHunter) Analyze(candles []domain.Candle, balance, positionQty, entryPrice decimal.Decimal, currentStep int) (domain.StrategyResult, error) {
	if len(candles) < s.MinLookback() {
		return domain.StrategyResult{}, nil
	}

	last := candles[len(candles)-1]
	window := candles[:len(candles)-1] // exclude the candle being evaluated
	high, low := indicator.RecentSwing(window, s.lookback)

	res := domain.StrategyResult{
		Price:      last.Close,
		Time:       last.OpenTime,
		Indicators: map[string]decimal.Decimal{"swingHigh": high, "swingLow": low},
	}

	if positionQty.IsZero() {
		if last.Close.GreaterThan(high) {
			res.Action = domain.ActionBuy
			res.Description = fmt.Sprintf("close %s broke above %d-candle high %s", last.Close, s.lookback, high)
			if s.targetPercent.IsPositive() {
				res.TargetPrice = last.Close.Mul(one.Add(pct(s.targetPercent)))
			}
			if s.stopPercent.IsPositive() {
				res.StopPrice = last.Close.Mul(one.Sub(pct(s.stopPercent)))
			}
		} else {
			res.Description = "no breakout"
		}
		return res, nil
	}

	if last.Close.LessThan(low) {
		res.Action = domain.ActionSell
		res.Description = fmt.Sprintf("close %s lost the %d-candle low %s", last.Close, s.lookback, low)
	} else {
		res.Description = "riding the breakout"
	}
	return res, nil
}

// SignalScore combines three components: breakout distance over the prior
// swing high (up to 50), volume versus its average (up to 30) and bullish
// body strength (up to 20).
func (s *BreakoutHunter) SignalScore(candles []domain.Candle) decimal.Decimal {
	if len(candles) < s.MinLookback() {
		return decimal.Zero
	}

	last := candles[len(candles)-1]
	window := candles[:len(candles)-1]
	high, _ := indicator.RecentSwing(window, s.lookback)
	if !last.Close.GreaterThan(high) {
		return decimal.Zero
	}

	score := decimal.Zero

	// Breakout distance: 1% above the swing high is worth the full 50.
	dist := last.Close.Sub(high).Div(high).Mul(decimal.NewFromInt(100))
	distScore := dist.Mul(decimal.NewFromInt(50))
	if distScore.GreaterThan(decimal.NewFromInt(50)) {
		distScore = decimal.NewFromInt(50)
	}
	score = score.Add(distScore)

	// Volume confirmation against the lookback average.
	avgVol := decimal.Zero
	for _, c := range window[len(window)-s.lookback:] {
		avgVol = avgVol.Add(c.Volume)
	}
	avgVol = avgVol.Div(decimal.NewFromInt(int64(s.lookback)))
	if avgVol.IsPositive() {
		ratio := last.Volume.Div(avgVol)
		switch {
		case ratio.GreaterThanOrEqual(decimal.NewFromInt(2)):
			score = score.Add(decimal.NewFromInt(30))
		case ratio.GreaterThanOrEqual(decimal.NewFromFloat(1.5)):
			score = score.Add(decimal.NewFromInt(20))
		case ratio.GreaterThanOrEqual(decimal.NewFromFloat(1.2)):
			score = score.Add(decimal.NewFromInt(10))
		}
	}

	// Candle body: a strong bullish close adds conviction.
	if last.Close.GreaterThan(last.Open) {
		rng := last.High.Sub(last.Low)
		if rng.IsPositive() {
			body := last.Close.Sub(last.Open).Div(rng)
			switch {
			case body.GreaterThan(decimal.NewFromFloat(0.7)):
				score = score.Add(decimal.NewFromInt(20))
			case body.GreaterThan(decimal.NewFromFloat(0.5)):
				score = score.Add(decimal.NewFromInt(14))
			case body.GreaterThan(decimal.NewFromFloat(0.3)):
				score = score.Add(decimal.NewFromInt(7))
			}
		}
	}

	if score.GreaterThan(hundredScore) {
		return hundredScore
	}
	return score
}

var hundredScore = decimal.NewFromInt(100)
