package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
	"github.com/kripteks/tradecore/internal/indicator"
)

// OversoldRecovery buys the recovery out of an oversold dip: RSI must cross
// back above the oversold line while price holds above the trend EMA, so
// only pullbacks inside an uptrend are bought. Exit levels are volatility
// sized from ATR; a sell fires when RSI reaches the overbought line first.
type OversoldRecovery struct {
	rsiPeriod     int
	oversold      decimal.Decimal
	overbought    decimal.Decimal
	emaPeriod     int
	atrPeriod     int
	atrMultiplier decimal.Decimal
}

// NewOversoldRecovery returns an OversoldRecovery with 14/30/70 RSI levels
// and a 100-period trend filter.
func NewOversoldRecovery() *OversoldRecovery {
	return &OversoldRecovery{
		rsiPeriod:     14,
		oversold:      decimal.NewFromInt(30),
		overbought:    decimal.NewFromInt(70),
		emaPeriod:     100,
		atrPeriod:     14,
		atrMultiplier: decimal.NewFromInt(2),
	}
}

func (s *OversoldRecovery) ID() string   { return "oversold-recovery" }
func (s *OversoldRecovery) Name() string { return "Oversold Recovery" }
func (s *OversoldRecovery) Description() string {
	return "Buys when RSI recovers from oversold inside an EMA uptrend, with ATR-sized stop and target; exits when RSI turns overbought."
}
func (s *OversoldRecovery) Category() domain.StrategyCategory { return domain.CategoryBoth }

func (s *OversoldRecovery) MinLookback() int {
	lookback := s.emaPeriod
	if s.rsiPeriod+1 > lookback {
		lookback = s.rsiPeriod + 1
	}
	if s.atrPeriod+1 > lookback {
		lookback = s.atrPeriod + 1
	}
	return lookback + 1
}

func (s *OversoldRecovery) SetParameters(params map[string]string) error {
	var err error
	if s.rsiPeriod, err = paramInt(params, "rsiPeriod", s.rsiPeriod); err != nil {
		return err
	}
	if s.oversold, err = paramDecimal(params, "oversold", s.oversold); err != nil {
		return err
	}
	if s.overbought, err = paramDecimal(params, "overbought", s.overbought); err != nil {
		return err
	}
	if s.emaPeriod, err = paramInt(params, "emaPeriod", s.emaPeriod); err != nil {
		return err
	}
	if s.atrPeriod, err = paramInt(params, "atrPeriod", s.atrPeriod); err != nil {
		return err
	}
	if s.atrMultiplier, err = paramDecimal(params, "atrMultiplier", s.atrMultiplier); err != nil {
		return err
	}
	switch {
	case s.rsiPeriod < 2 || s.emaPeriod < 2 || s.atrPeriod < 1:
		return fmt.Errorf("%w: rsiPeriod=%d emaPeriod=%d atrPeriod=%d", domain.ErrInvalidParameter,
			s.rsiPeriod, s.emaPeriod, s.atrPeriod)
	case !s.oversold.IsPositive() || s.overbought.LessThanOrEqual(s.oversold) || s.overbought.GreaterThanOrEqual(hundredScore):
		return fmt.Errorf("%w: oversold=%s overbought=%s", domain.ErrInvalidParameter, s.oversold, s.overbought)
	case !s.atrMultiplier.IsPositive():
		return fmt.Errorf("%w: atrMultiplier=%s", domain.ErrInvalidParameter, s.atrMultiplier)
	}
	return nil
}

func (s *OversoldRecovery) Analyze(candles []domain.Candle, balance, positionQty, entryPrice decimal.Decimal, currentStep int) (domain.StrategyResult, error) {
	if len(candles) < s.MinLookback() {
		return domain.StrategyResult{}, nil
	}

	closes := indicator.Closes(candles)
	rsi := indicator.RSI(closes, s.rsiPeriod)
	ema := indicator.EMA(closes, s.emaPeriod)
	atr := indicator.ATR(candles, s.atrPeriod)
	i := len(candles) - 1
	last := candles[i]

	res := domain.StrategyResult{
		Price: last.Close,
		Time:  last.OpenTime,
		Indicators: map[string]decimal.Decimal{
			fmt.Sprintf("rsi%d", s.rsiPeriod): rsi[i],
			fmt.Sprintf("ema%d", s.emaPeriod): ema[i],
			fmt.Sprintf("atr%d", s.atrPeriod): atr[i],
		},
	}

	if positionQty.IsZero() {
		recovered := rsi[i-1].LessThanOrEqual(s.oversold) && rsi[i].GreaterThan(s.oversold)
		if recovered && last.Close.GreaterThan(ema[i]) {
			risk := atr[i].Mul(s.atrMultiplier)
			res.Action = domain.ActionBuy
			res.StopPrice = last.Close.Sub(risk)
			res.TargetPrice = last.Close.Add(risk.Mul(rewardRatio))
			res.Description = fmt.Sprintf("RSI recovered above %s in uptrend at %s", s.oversold, last.Close)
			return res, nil
		}
		res.Description = "waiting for an oversold recovery"
		return res, nil
	}

	if rsi[i].GreaterThanOrEqual(s.overbought) {
		res.Action = domain.ActionSell
		res.Description = fmt.Sprintf("RSI %s reached overbought %s", rsi[i].StringFixed(1), s.overbought)
		return res, nil
	}
	res.Description = "holding through the recovery"
	return res, nil
}

// SignalScore rates 100 for a recovery cross within the last 3 candles in
// an uptrend, 70 while RSI is still pinned oversold (setup forming), 40 for
// a plain uptrend, and 0 otherwise.
func (s *OversoldRecovery) SignalScore(candles []domain.Candle) decimal.Decimal {
	if len(candles) < s.MinLookback() {
		return decimal.Zero
	}

	closes := indicator.Closes(candles)
	rsi := indicator.RSI(closes, s.rsiPeriod)
	ema := indicator.EMA(closes, s.emaPeriod)
	i := len(candles) - 1
	uptrend := closes[i].GreaterThan(ema[i])

	if uptrend {
		for back := 0; back < 3 && i-back >= 1; back++ {
			j := i - back
			if rsi[j-1].LessThanOrEqual(s.oversold) && rsi[j].GreaterThan(s.oversold) {
				return decimal.NewFromInt(100)
			}
		}
	}
	if rsi[i].LessThanOrEqual(s.oversold) {
		return decimal.NewFromInt(70)
	}
	if uptrend {
		return decimal.NewFromInt(40)
	}
	return decimal.Zero
}

// rewardRatio is the target distance per unit of stop distance.
var rewardRatio = decimal.NewFromFloat(1.5)
