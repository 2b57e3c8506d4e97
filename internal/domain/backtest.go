package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestRequest describes one simulation run. A run is a pure function of
// the request plus the candle history: identical inputs must produce an
// identical BacktestResult.
type BacktestRequest struct {
	Symbol         string
	StrategyID     string
	Interval       Interval
	Start          time.Time
	End            time.Time
	InitialBalance decimal.Decimal
	CommissionRate decimal.Decimal // e.g. 0.001 = 0.1%
	SlippageRate   decimal.Decimal // e.g. 0.0005 = 0.05%
	Parameters     map[string]string
}

// BacktestTrade is one round trip recorded by the simulation ledger.
type BacktestTrade struct {
	Type       string // exit reason: "signal", "take_profit", "stop_loss", "forced_close"
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Quantity   decimal.Decimal
	Pnl        decimal.Decimal // price P&L before commission
	Commission decimal.Decimal // entry + exit commission
}

// Net returns the trade's P&L after commission.
func (t BacktestTrade) Net() decimal.Decimal {
	return t.Pnl.Sub(t.Commission)
}

// BacktestResult is the fully realized outcome of one run.
type BacktestResult struct {
	ID             string
	Symbol         string
	StrategyID     string
	Interval       Interval
	Start          time.Time
	End            time.Time
	InitialBalance decimal.Decimal
	FinalBalance   decimal.Decimal

	TotalTrades         int
	WinningTrades       int
	LosingTrades        int
	TotalPnl            decimal.Decimal
	TotalPnlPercent     decimal.Decimal
	WinRate             decimal.Decimal
	MaxDrawdown         decimal.Decimal
	TotalCommissionPaid decimal.Decimal

	SharpeRatio          decimal.Decimal
	SortinoRatio         decimal.Decimal
	ProfitFactor         decimal.Decimal
	AverageWin           decimal.Decimal
	AverageLoss          decimal.Decimal
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	Trades  []BacktestTrade
	Candles []Candle // snapshot of the simulated range

	CreatedAt  time.Time
	IsFavorite bool
	Notes      string
}

// OptimizationResult carries the best grid combination found so far plus the
// full backtest of that combination.
type OptimizationResult struct {
	BestParameters map[string]string
	BestPnlPercent decimal.Decimal
	Best           *BacktestResult
	StepsRun       int
	TotalSteps     int
}

// ProgressEvent is pushed after every optimizer grid step.
type ProgressEvent struct {
	SessionID         string
	CurrentStep       int
	TotalSteps        int
	CurrentParameters map[string]string
	CurrentPnlPercent decimal.Decimal
	BestPnlPercent    decimal.Decimal
	Status            string // "running" or "completed"
}

// BatchRequest runs one strategy across many symbols.
type BatchRequest struct {
	Symbols        []string
	StrategyID     string
	Interval       Interval
	Start          time.Time
	End            time.Time
	InitialBalance decimal.Decimal
	CommissionRate decimal.Decimal
	SlippageRate   decimal.Decimal
	Parameters     map[string]string
}

// BatchItem is one symbol's outcome in a batch run. A failed symbol reports
// Success=false with ErrorMessage set; it never aborts the batch.
type BatchItem struct {
	Symbol          string
	TotalPnlPercent decimal.Decimal
	WinRate         decimal.Decimal
	TotalTrades     int
	MaxDrawdown     decimal.Decimal
	ProfitFactor    decimal.Decimal
	SharpeRatio     decimal.Decimal
	Success         bool
	ErrorMessage    string
}
