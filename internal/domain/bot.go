package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BotStatus is the live position state machine state.
type BotStatus string

const (
	BotStopped         BotStatus = "stopped"
	BotWaitingForEntry BotStatus = "waiting_for_entry"
	BotRunning         BotStatus = "running"
	BotPaused          BotStatus = "paused"
	BotCompleted       BotStatus = "completed"
)

// OrderType selects how entry and exit orders are placed.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// Bot is the runtime state of one live trading bot. It is owned exclusively
// by the live engine: only the engine's tick handler mutates it, and every
// mutation is flushed to the BotStore together with any trade it caused.
type Bot struct {
	ID         string
	Symbol     string // "BTC/USDT"
	StrategyID string
	Interval   Interval
	Amount     decimal.Decimal // quote-currency stake
	Params     map[string]string
	OrderType  OrderType

	Status            BotStatus
	EntryPrice        decimal.Decimal
	Quantity          decimal.Decimal // base-currency amount held
	CurrentPnl        decimal.Decimal
	CurrentPnlPercent decimal.Decimal

	TakeProfitPercent decimal.Decimal // zero disables
	StopLossPercent   decimal.Decimal // zero disables

	IsTrailingStop       bool
	TrailingStopDistance decimal.Decimal // percent
	MaxPriceReached      decimal.Decimal // monotonically non-decreasing while running

	CurrentDcaStep int
	Continuous     bool // re-arm to waiting_for_entry after a close

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InPosition reports whether the bot currently holds a position.
func (b *Bot) InPosition() bool {
	return b.Status == BotRunning
}

// ResumeStatus returns the state a paused bot resumes into. A bot paused
// while holding a position must resume as running, otherwise as waiting.
func (b *Bot) ResumeStatus() BotStatus {
	if b.Quantity.IsPositive() {
		return BotRunning
	}
	return BotWaitingForEntry
}
