package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kripteks/tradecore/internal/domain"
	"github.com/kripteks/tradecore/internal/strategy"
)

// Runner executes one backtest per request: it validates the request,
// resolves the candle window (with indicator warm-up prepended before the
// requested range), instantiates a fresh strategy and drives the ledger.
type Runner struct {
	market   domain.MarketDataSource
	registry *strategy.Registry
	logger   *slog.Logger
}

// NewRunner creates a Runner on the given market-data source and registry.
func NewRunner(market domain.MarketDataSource, registry *strategy.Registry, logger *slog.Logger) *Runner {
	return &Runner{
		market:   market,
		registry: registry,
		logger:   logger.With(slog.String("component", "backtest_runner")),
	}
}

// Run executes the request and returns a fully realized result. Every run
// uses a fresh strategy instance; no state is shared across runs.
func (r *Runner) Run(ctx context.Context, req domain.BacktestRequest) (*domain.BacktestResult, error) {
	strat, err := r.newStrategy(req)
	if err != nil {
		return nil, err
	}
	candles, first, err := r.window(ctx, req, strat.MinLookback())
	if err != nil {
		return nil, err
	}
	return r.simulate(req, strat, candles, first)
}

// newStrategy validates the request and builds a configured strategy for it.
func (r *Runner) newStrategy(req domain.BacktestRequest) (strategy.Strategy, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	strat, err := r.registry.New(req.StrategyID)
	if err != nil {
		return nil, err
	}
	if err := strat.SetParameters(req.Parameters); err != nil {
		return nil, err
	}
	return strat, nil
}

func validate(req domain.BacktestRequest) error {
	switch {
	case req.Symbol == "":
		return fmt.Errorf("%w: symbol is required", domain.ErrInvalidParameter)
	case !req.Interval.Known():
		return fmt.Errorf("%w: unknown interval %q", domain.ErrInvalidParameter, req.Interval)
	case !req.End.After(req.Start):
		return fmt.Errorf("%w: end %s not after start %s", domain.ErrInvalidParameter,
			req.End.Format(time.RFC3339), req.Start.Format(time.RFC3339))
	case !req.InitialBalance.IsPositive():
		return fmt.Errorf("%w: initial balance must be positive", domain.ErrInvalidParameter)
	case req.CommissionRate.IsNegative() || req.SlippageRate.IsNegative():
		return fmt.Errorf("%w: commission and slippage rates cannot be negative", domain.ErrInvalidParameter)
	}
	return nil
}

// window fetches the candle range extended backwards by the strategy's
// minimum lookback and returns the index of the first candle inside the
// requested range.
func (r *Runner) window(ctx context.Context, req domain.BacktestRequest, lookback int) ([]domain.Candle, int, error) {
	warmupStart := req.Start.Add(-time.Duration(lookback) * req.Interval.Duration())
	candles, err := r.market.GetCandles(ctx, req.Symbol, req.Interval, domain.CandleRange{
		Start: warmupStart,
		End:   req.End,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("fetch candles for %s: %w", req.Symbol, err)
	}

	first := 0
	for first < len(candles) && candles[first].OpenTime.Before(req.Start) {
		first++
	}
	if first == len(candles) {
		return nil, 0, fmt.Errorf("%w: no candles for %s %s in range", domain.ErrInsufficientData,
			req.Symbol, req.Interval)
	}
	return candles, first, nil
}

// simulate replays the candles through the ledger and assembles the result.
func (r *Runner) simulate(req domain.BacktestRequest, strat strategy.Strategy, candles []domain.Candle, first int) (*domain.BacktestResult, error) {
	led := newLedger(req.InitialBalance, req.CommissionRate, req.SlippageRate)
	start := time.Now()

	if err := replay(strat, candles, first, led, r.logger); err != nil {
		return nil, fmt.Errorf("simulate %s/%s: %w", req.Symbol, req.StrategyID, err)
	}

	res := &domain.BacktestResult{
		ID:                  uuid.NewString(),
		Symbol:              req.Symbol,
		StrategyID:          req.StrategyID,
		Interval:            req.Interval,
		Start:               req.Start,
		End:                 req.End,
		InitialBalance:      req.InitialBalance,
		FinalBalance:        led.balance,
		TotalCommissionPaid: led.totalCommission,
		Trades:              led.trades,
		Candles:             candles[first:],
		CreatedAt:           time.Now().UTC(),
	}
	computeMetrics(res, req.InitialBalance)

	r.logger.Debug("backtest complete",
		slog.String("symbol", req.Symbol),
		slog.String("strategy", req.StrategyID),
		slog.Int("trades", res.TotalTrades),
		slog.String("pnl_percent", res.TotalPnlPercent.StringFixed(2)),
		slog.Duration("elapsed", time.Since(start)))
	return res, nil
}
