package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo is metadata about one stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves and enumerates stored objects.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Delete(ctx context.Context, path string) error
}

// RunArchiver stores the heavy parts of a backtest run (the trade list and
// the candle snapshot) outside the relational store. The BacktestStore keeps
// only scalar metrics; the archiver fills Trades and Candles back in on load.
type RunArchiver interface {
	ArchiveRun(ctx context.Context, result BacktestResult) error
	LoadRun(ctx context.Context, id string) ([]BacktestTrade, []Candle, error)
	DeleteRun(ctx context.Context, id string) error
}
