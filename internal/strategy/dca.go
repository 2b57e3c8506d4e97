package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
)

// Dca opens a position immediately and averages down in steps: every time
// the price falls priceDeviation percent below the volume-weighted entry it
// requests an additional buy scaled by amountScale, up to maxSteps adds.
// The caller owns the step counter and the averaged entry price.
type Dca struct {
	maxSteps          int
	priceDeviation    decimal.Decimal // percent drop per step
	amountScale       decimal.Decimal // stake multiplier per add
	takeProfitPercent decimal.Decimal
}

// NewDca returns a Dca strategy with default martingale parameters.
func NewDca() *Dca {
	return &Dca{
		maxSteps:          5,
		priceDeviation:    decimal.NewFromInt(2),
		amountScale:       decimal.NewFromInt(2),
		takeProfitPercent: decimal.NewFromInt(1),
	}
}

func (s *Dca) ID() string   { return "dca" }
func (s *Dca) Name() string { return "DCA (Martingale)" }
func (s *Dca) Description() string {
	return "Enters immediately and averages down on fixed percentage drops with scaled stakes, targeting a small profit over the averaged entry."
}
func (s *Dca) Category() domain.StrategyCategory { return domain.CategoryTrading }
func (s *Dca) MinLookback() int                  { return 1 }

func (s *Dca) SetParameters(params map[string]string) error {
	var err error
	if s.maxSteps, err = paramInt(params, "dcaCount", s.maxSteps); err != nil {
		return err
	}
	if s.maxSteps < 1 {
		return fmt.Errorf("%w: dcaCount=%d", domain.ErrInvalidParameter, s.maxSteps)
	}
	if s.priceDeviation, err = paramDecimal(params, "priceDeviation", s.priceDeviation); err != nil {
		return err
	}
	if s.amountScale, err = paramDecimal(params, "amountScale", s.amountScale); err != nil {
		return err
	}
	if s.takeProfitPercent, err = paramDecimal(params, "takeProfitPercent", s.takeProfitPercent); err != nil {
		return err
	}
	return nil
}

func (s *Dca) Analyze(candles []domain.Candle, balance, positionQty, entryPrice decimal.Decimal, currentStep int) (domain.StrategyResult, error) {
	if len(candles) < s.MinLookback() {
		return domain.StrategyResult{}, nil
	}
	last := candles[len(candles)-1]
	res := domain.StrategyResult{Price: last.Close, Time: last.OpenTime}

	if positionQty.IsZero() {
		res.Action = domain.ActionBuy
		res.Description = "DCA initial entry"
		// Stake only the first rung so cash remains for the later adds.
		res.SuggestedAmount = balance.Div(s.ladderWeight(s.maxSteps))
		res.TargetPrice = last.Close.Mul(one.Add(pct(s.takeProfitPercent)))
		return res, nil
	}

	if currentStep >= s.maxSteps || !entryPrice.IsPositive() {
		res.Description = "DCA ladder exhausted, waiting for target"
		return res, nil
	}

	deviation := last.Close.Sub(entryPrice).Div(entryPrice).Mul(decimal.NewFromInt(100))
	if deviation.LessThanOrEqual(s.priceDeviation.Neg()) {
		res.Action = domain.ActionBuy
		res.Description = fmt.Sprintf("DCA step %d: %s%% below average entry", currentStep+1, deviation.Abs().StringFixed(2))
		// The next rung scales off the entry stake: invested so far covers
		// the first currentStep weights, the add is the next one.
		invested := positionQty.Mul(entryPrice)
		res.SuggestedAmount = invested.Mul(s.scalePow(currentStep)).Div(s.ladderWeight(currentStep))
		res.TargetPrice = entryPrice.Mul(one.Add(pct(s.takeProfitPercent)))
		return res, nil
	}

	res.Description = "holding, above the next DCA trigger"
	res.TargetPrice = entryPrice.Mul(one.Add(pct(s.takeProfitPercent)))
	return res, nil
}

// ladderWeight is the sum of the first n stake multipliers
// (1 + scale + scale^2 + ...). The full ladder fits a budget of
// entryStake * ladderWeight(maxSteps).
func (s *Dca) ladderWeight(n int) decimal.Decimal {
	w := decimal.Zero
	p := one
	for i := 0; i < n; i++ {
		w = w.Add(p)
		p = p.Mul(s.amountScale)
	}
	return w
}

func (s *Dca) scalePow(n int) decimal.Decimal {
	p := one
	for i := 0; i < n; i++ {
		p = p.Mul(s.amountScale)
	}
	return p
}

// SignalScore is neutral: DCA entries are time-based, not signal-based.
func (s *Dca) SignalScore(candles []domain.Candle) decimal.Decimal {
	if len(candles) < s.MinLookback() {
		return decimal.Zero
	}
	return decimal.NewFromInt(50)
}
