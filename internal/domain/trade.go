package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeType distinguishes entry and exit fills.
type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// Trade is one executed fill. Trades are created once and never mutated;
// they are appended to a bot's or a backtest run's trade list.
type Trade struct {
	ID        string
	BotID     string
	Symbol    string
	Type      TradeType
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Total     decimal.Decimal // net of fee
	Timestamp time.Time
}
