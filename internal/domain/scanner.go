package domain

import "github.com/shopspring/decimal"

// ScanRequest runs a strategy's signal scoring across many symbols.
type ScanRequest struct {
	Symbols    []string
	StrategyID string
	Interval   Interval
	Parameters map[string]string
	MinScore   *decimal.Decimal // post-scoring filter, nil keeps everything
}

// ScanItem is one symbol's scan outcome.
type ScanItem struct {
	Symbol          string
	SignalScore     decimal.Decimal // 0..100
	SuggestedAction TradeAction
	Comment         string
	LastPrice       decimal.Decimal
}
