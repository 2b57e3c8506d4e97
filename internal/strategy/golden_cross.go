package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
	"github.com/kripteks/tradecore/internal/indicator"
)

// GoldenCross buys when the short SMA crosses above the long SMA and sells
// on the death cross. Targets are wide because the pattern marks long-lived
// trend changes.
type GoldenCross struct {
	shortPeriod int
	longPeriod  int
}

// NewGoldenCross returns a GoldenCross with the classic 50/200 periods.
func NewGoldenCross() *GoldenCross {
	return &GoldenCross{shortPeriod: 50, longPeriod: 200}
}

func (s *GoldenCross) ID() string   { return "golden-cross" }
func (s *GoldenCross) Name() string { return "Golden Cross" }
func (s *GoldenCross) Description() string {
	return "Classic 50/200 moving-average crossover: buys the golden cross, exits on the death cross."
}
func (s *GoldenCross) Category() domain.StrategyCategory { return domain.CategoryBoth }
func (s *GoldenCross) MinLookback() int                  { return s.longPeriod + 1 }

func (s *GoldenCross) SetParameters(params map[string]string) error {
	var err error
	if s.shortPeriod, err = paramInt(params, "shortPeriod", s.shortPeriod); err != nil {
		return err
	}
	if s.longPeriod, err = paramInt(params, "longPeriod", s.longPeriod); err != nil {
		return err
	}
	if s.shortPeriod <= 0 || s.longPeriod <= s.shortPeriod {
		return fmt.Errorf("%w: shortPeriod=%d longPeriod=%d", domain.ErrInvalidParameter, s.shortPeriod, s.longPeriod)
	}
	return nil
}

func (s *GoldenCross) Analyze(candles []domain.Candle, balance, positionQty, entryPrice decimal.Decimal, currentStep int) (domain.StrategyResult, error) {
	if len(candles) < s.MinLookback() {
		return domain.StrategyResult{}, nil
	}

	closes := indicator.Closes(candles)
	short := indicator.SMA(closes, s.shortPeriod)
	long := indicator.SMA(closes, s.longPeriod)
	i := len(candles) - 1
	last := candles[i]

	res := domain.StrategyResult{
		Price: last.Close,
		Time:  last.OpenTime,
		Indicators: map[string]decimal.Decimal{
			fmt.Sprintf("sma%d", s.shortPeriod): short[i],
			fmt.Sprintf("sma%d", s.longPeriod):  long[i],
		},
	}

	if positionQty.IsZero() {
		if indicator.CrossedAbove(short, long, i) {
			res.Action = domain.ActionBuy
			res.TargetPrice = last.Close.Mul(decimal.NewFromFloat(1.10))
			res.StopPrice = last.Close.Mul(decimal.NewFromFloat(0.92))
			res.Description = fmt.Sprintf("golden cross: SMA%d crossed above SMA%d at %s", s.shortPeriod, s.longPeriod, last.Close)
			return res, nil
		}
	} else if indicator.CrossedBelow(short, long, i) {
		res.Action = domain.ActionSell
		res.Description = fmt.Sprintf("death cross: SMA%d dropped below SMA%d at %s", s.shortPeriod, s.longPeriod, last.Close)
		return res, nil
	}

	if short[i].GreaterThan(long[i]) {
		res.Description = "bull regime (post golden cross)"
	} else {
		res.Description = "bear regime"
	}
	return res, nil
}

// SignalScore rates 100 for a cross within the last 3 candles, 85 for a
// running bull regime with price above both averages, 70 for a bull regime
// with price lagging, and 0 otherwise.
func (s *GoldenCross) SignalScore(candles []domain.Candle) decimal.Decimal {
	if len(candles) < s.MinLookback() {
		return decimal.Zero
	}

	closes := indicator.Closes(candles)
	short := indicator.SMA(closes, s.shortPeriod)
	long := indicator.SMA(closes, s.longPeriod)
	i := len(candles) - 1

	for back := 0; back < 3 && i-back >= 1; back++ {
		if indicator.CrossedAbove(short, long, i-back) {
			return decimal.NewFromInt(100)
		}
	}

	if short[i].GreaterThan(long[i]) {
		price := closes[i]
		if price.GreaterThan(short[i]) && price.GreaterThan(long[i]) {
			return decimal.NewFromInt(85)
		}
		return decimal.NewFromInt(70)
	}
	return decimal.Zero
}
