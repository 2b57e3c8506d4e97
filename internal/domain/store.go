package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// BotStore persists live bot state. The engine writes through after every
// mutation; a bot update and the trade that caused it are flushed together.
type BotStore interface {
	Create(ctx context.Context, bot Bot) error
	Update(ctx context.Context, bot Bot) error
	GetByID(ctx context.Context, id string) (Bot, error)
	ListActive(ctx context.Context) ([]Bot, error)
	List(ctx context.Context, opts ListOpts) ([]Bot, error)
	Delete(ctx context.Context, id string) error
}

// TradeStore persists executed fills.
type TradeStore interface {
	Insert(ctx context.Context, trade Trade) error
	ListByBot(ctx context.Context, botID string, opts ListOpts) ([]Trade, error)
	GetLastTimestamp(ctx context.Context, botID string) (time.Time, error)
}

// BacktestStore persists completed backtest results for history browsing.
// Trade lists and candle snapshots are archived separately (blob storage);
// the store keeps the scalar metrics.
type BacktestStore interface {
	Save(ctx context.Context, result BacktestResult) error
	GetByID(ctx context.Context, id string) (BacktestResult, error)
	List(ctx context.Context, opts ListOpts) ([]BacktestResult, error)
	SetFavorite(ctx context.Context, id string, favorite bool) error
	Delete(ctx context.Context, id string) error
}
