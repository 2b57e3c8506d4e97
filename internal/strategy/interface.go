// Package strategy defines the pluggable trading strategy contract and the
// built-in strategy implementations. A strategy is evaluated identically
// from the backtest ledger and the live engine; that single code path is
// what guarantees backtest/live behavioral parity.
package strategy

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
)

// Strategy is the contract every trading strategy implements.
//
// Analyze must be side-effect-free and deterministic for identical
// arguments. Position state (entry price, DCA step, trailing extremes)
// belongs to the caller and is passed in on every evaluation.
type Strategy interface {
	ID() string
	Name() string
	Description() string
	Category() domain.StrategyCategory

	// MinLookback is the smallest candle window Analyze and SignalScore
	// can work with. Shorter windows are a defined no-signal.
	MinLookback() int

	// SetParameters applies user-supplied overrides. Unknown keys are
	// ignored; missing keys keep their defaults; malformed numeric values
	// fail with domain.ErrInvalidParameter before any evaluation runs.
	SetParameters(params map[string]string) error

	// Analyze evaluates the candle window against the caller's position
	// snapshot and returns a fresh result.
	Analyze(candles []domain.Candle, balance, positionQty, entryPrice decimal.Decimal, currentStep int) (domain.StrategyResult, error)

	// SignalScore rates the current entry condition on a 0..100 scale.
	// It returns zero when the window is shorter than MinLookback.
	SignalScore(candles []domain.Candle) decimal.Decimal
}

// paramInt reads an integer parameter, falling back to def when absent.
func paramInt(params map[string]string, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", domain.ErrInvalidParameter, key, v)
	}
	return n, nil
}

// paramDecimal reads a decimal parameter, falling back to def when absent.
func paramDecimal(params map[string]string, key string, def decimal.Decimal) (decimal.Decimal, error) {
	v, ok := params[key]
	if !ok || v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s=%q", domain.ErrInvalidParameter, key, v)
	}
	return d, nil
}

// lastClose returns the close of the most recent candle.
func lastClose(candles []domain.Candle) decimal.Decimal {
	return candles[len(candles)-1].Close
}

func pct(v decimal.Decimal) decimal.Decimal {
	return v.Div(decimal.NewFromInt(100))
}

var one = decimal.NewFromInt(1)
