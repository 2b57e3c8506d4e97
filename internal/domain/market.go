package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketDataSource supplies historical candles and current prices. Transient
// failures surface as ErrMarketDataUnavailable (retryable); unknown symbols
// surface as ErrSymbolNotFound (permanent).
type MarketDataSource interface {
	GetCandles(ctx context.Context, symbol string, interval Interval, rng CandleRange) ([]Candle, error)
	GetLatestCandles(ctx context.Context, symbol string, interval Interval, limit int) ([]Candle, error)
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// OrderExecutor places orders on the exchange. Filled=false with a nil error
// means the order was accepted but not filled (limit orders).
type OrderExecutor interface {
	PlaceBuy(ctx context.Context, symbol string, price, qty decimal.Decimal) (filled bool, err error)
	PlaceSell(ctx context.Context, symbol string, price, qty decimal.Decimal) (filled bool, err error)
}

// ProgressSink receives incremental optimizer/backtest progress. Publishing
// is fire-and-forget; the engine requires no delivery guarantee.
type ProgressSink interface {
	Publish(sessionID string, event ProgressEvent)
}

// NotificationSink is invoked after every state-changing event.
type NotificationSink interface {
	NotifyTrade(ctx context.Context, trade Trade)
	NotifyBotUpdate(ctx context.Context, bot Bot)
}
