package backtest

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kripteks/tradecore/internal/domain"
)

const defaultBatchConcurrency = 4

// Batch runs one strategy across many symbols on a bounded worker pool. The
// concurrency cap protects the rate-limited market-data API; one symbol's
// failure never aborts the batch.
type Batch struct {
	runner      *Runner
	concurrency int
	logger      *slog.Logger
}

// NewBatch creates a Batch. concurrency <= 0 selects the default pool size.
func NewBatch(runner *Runner, concurrency int, logger *slog.Logger) *Batch {
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	return &Batch{
		runner:      runner,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "batch_runner")),
	}
}

// Run backtests every symbol in the request and returns one item per symbol
// in input order. Failed symbols report Success=false with the error message.
func (b *Batch) Run(ctx context.Context, req domain.BatchRequest) []domain.BatchItem {
	items := make([]domain.BatchItem, len(req.Symbols))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, symbol := range req.Symbols {
		g.Go(func() error {
			items[i] = b.runSymbol(ctx, req, symbol)
			return nil
		})
	}
	// Workers never return errors; failures land in their item.
	_ = g.Wait()
	return items
}

func (b *Batch) runSymbol(ctx context.Context, req domain.BatchRequest, symbol string) domain.BatchItem {
	res, err := b.runner.Run(ctx, domain.BacktestRequest{
		Symbol:         symbol,
		StrategyID:     req.StrategyID,
		Interval:       req.Interval,
		Start:          req.Start,
		End:            req.End,
		InitialBalance: req.InitialBalance,
		CommissionRate: req.CommissionRate,
		SlippageRate:   req.SlippageRate,
		Parameters:     req.Parameters,
	})
	if err != nil {
		b.logger.Warn("batch symbol failed",
			slog.String("symbol", symbol),
			slog.String("strategy", req.StrategyID),
			slog.Any("error", err))
		return domain.BatchItem{Symbol: symbol, ErrorMessage: err.Error()}
	}
	return domain.BatchItem{
		Symbol:          symbol,
		TotalPnlPercent: res.TotalPnlPercent,
		WinRate:         res.WinRate,
		TotalTrades:     res.TotalTrades,
		MaxDrawdown:     res.MaxDrawdown,
		ProfitFactor:    res.ProfitFactor,
		SharpeRatio:     res.SharpeRatio,
		Success:         true,
	}
}
