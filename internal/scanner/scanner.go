// Package scanner scores many symbols against one strategy to surface entry
// candidates. Scans are read-only: no ledger, no orders, just a bounded
// candle window and the strategy's own signal scoring.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/kripteks/tradecore/internal/domain"
	"github.com/kripteks/tradecore/internal/strategy"
)

// notionalBalance is handed to Analyze during scans; scans hold no funds, the
// value only lets sizing-aware strategies produce a meaningful description.
var notionalBalance = decimal.NewFromInt(1000)

const defaultScanConcurrency = 4

// extraCandles is fetched on top of the strategy's minimum lookback so the
// window survives a partially formed head candle.
const extraCandles = 5

// Scanner evaluates a strategy's signal score across symbols concurrently.
type Scanner struct {
	market      domain.MarketDataSource
	registry    *strategy.Registry
	concurrency int
	logger      *slog.Logger
}

// New creates a Scanner. concurrency <= 0 selects the default pool size.
func New(market domain.MarketDataSource, registry *strategy.Registry, concurrency int, logger *slog.Logger) *Scanner {
	if concurrency <= 0 {
		concurrency = defaultScanConcurrency
	}
	return &Scanner{
		market:      market,
		registry:    registry,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "scanner")),
	}
}

// Scan scores every requested symbol and returns the survivors sorted by
// score descending. Scoring happens for all symbols first and the MinScore
// cut is applied afterwards, so the full distribution is observable at debug
// level. Per-symbol failures are logged and skipped, never fatal.
func (s *Scanner) Scan(ctx context.Context, req domain.ScanRequest) ([]domain.ScanItem, error) {
	if len(req.Symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols to scan", domain.ErrInvalidParameter)
	}
	// Probe the strategy once up front so a bad id or bad parameters fail
	// the whole request instead of every symbol individually.
	probe, err := s.registry.New(req.StrategyID)
	if err != nil {
		return nil, err
	}
	if err := probe.SetParameters(req.Parameters); err != nil {
		return nil, err
	}
	window := probe.MinLookback() + extraCandles

	var (
		mu    sync.Mutex
		items []domain.ScanItem
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, symbol := range req.Symbols {
		g.Go(func() error {
			item, err := s.scanSymbol(ctx, req, symbol, window)
			if err != nil {
				s.logger.Warn("symbol scan failed",
					slog.String("symbol", symbol),
					slog.String("strategy", req.StrategyID),
					slog.Any("error", err))
				return nil
			}
			mu.Lock()
			items = append(items, item)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SignalScore.GreaterThan(items[j].SignalScore)
	})

	if req.MinScore == nil {
		return items, nil
	}
	filtered := items[:0]
	for _, item := range items {
		if item.SignalScore.GreaterThanOrEqual(*req.MinScore) {
			filtered = append(filtered, item)
		} else {
			s.logger.Debug("below minimum score",
				slog.String("symbol", item.Symbol),
				slog.String("score", item.SignalScore.StringFixed(1)))
		}
	}
	return filtered, nil
}

// scanSymbol fetches one bounded window and runs the score plus a flat-state
// Analyze for the suggested action and comment.
func (s *Scanner) scanSymbol(ctx context.Context, req domain.ScanRequest, symbol string, window int) (domain.ScanItem, error) {
	// Fresh instance per symbol: Analyze is stateless by contract, but the
	// configured parameters live on the instance.
	strat, err := s.registry.New(req.StrategyID)
	if err != nil {
		return domain.ScanItem{}, err
	}
	if err := strat.SetParameters(req.Parameters); err != nil {
		return domain.ScanItem{}, err
	}

	candles, err := s.market.GetLatestCandles(ctx, symbol, req.Interval, window)
	if err != nil {
		return domain.ScanItem{}, fmt.Errorf("fetch candles: %w", err)
	}

	item := domain.ScanItem{
		Symbol:      symbol,
		SignalScore: strat.SignalScore(candles),
	}
	if len(candles) > 0 {
		item.LastPrice = candles[len(candles)-1].Close
	}

	res, err := strat.Analyze(candles, notionalBalance, decimal.Zero, decimal.Zero, 0)
	if err != nil {
		// Score stands on its own; a failing Analyze only loses the comment.
		s.logger.Debug("analyze failed during scan",
			slog.String("symbol", symbol), slog.Any("error", err))
		return item, nil
	}
	item.SuggestedAction = res.Action
	item.Comment = res.Description
	return item, nil
}
