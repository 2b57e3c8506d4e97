package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction is the signal a strategy produces for the current candle.
type TradeAction int

const (
	ActionNone TradeAction = iota
	ActionBuy
	ActionSell
)

// String returns the action in lower-case wire form.
func (a TradeAction) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	default:
		return "none"
	}
}

// StrategyCategory declares where a strategy may be used.
type StrategyCategory string

const (
	CategorySimulation StrategyCategory = "simulation"
	CategoryTrading    StrategyCategory = "trading"
	CategoryScanner    StrategyCategory = "scanner"
	CategoryBoth       StrategyCategory = "both"
)

// StrategyResult is the outcome of one strategy evaluation. It is produced
// fresh on every call and carries no cross-call state: entry price, DCA step
// and trailing extremes are owned by the caller (ledger or live bot).
type StrategyResult struct {
	Action          TradeAction
	TargetPrice     decimal.Decimal // take-profit level, zero when unset
	StopPrice       decimal.Decimal // stop-loss level, zero when unset
	SuggestedAmount decimal.Decimal // quote-currency amount hint (DCA adds)
	Price           decimal.Decimal // close price the signal was computed at
	Time            time.Time
	Description     string
	Indicators      map[string]decimal.Decimal
}

// StrategyInfo is catalog metadata for one registered strategy.
type StrategyInfo struct {
	ID          string
	Name        string
	Description string
	Category    StrategyCategory
	MinLookback int
}
