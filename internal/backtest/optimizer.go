package backtest

import (
	"context"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
)

// Optimizer grid-searches strategy parameters by running one backtest per
// combination of the supplied value lists. Combinations are enumerated in a
// stable order (sorted key names, values in the given order), and ties on
// PnL keep the first combination found.
type Optimizer struct {
	runner   *Runner
	progress domain.ProgressSink
	logger   *slog.Logger
}

// NewOptimizer creates an Optimizer publishing per-step progress to sink.
func NewOptimizer(runner *Runner, sink domain.ProgressSink, logger *slog.Logger) *Optimizer {
	return &Optimizer{
		runner:   runner,
		progress: sink,
		logger:   logger.With(slog.String("component", "optimizer")),
	}
}

// Optimize runs the request once per grid combination. The candle window is
// fetched a single time and shared across steps; every step still gets a
// fresh strategy instance. Cancellation is cooperative and checked between
// steps, so a cancelled call returns the partial result accumulated so far
// together with the context error.
func (o *Optimizer) Optimize(ctx context.Context, sessionID string, req domain.BacktestRequest, grid map[string][]string) (*domain.OptimizationResult, error) {
	combos := expandGrid(grid)
	out := &domain.OptimizationResult{TotalSteps: len(combos)}
	if len(combos) == 0 {
		return out, nil
	}

	// Fetch the candle window once and share it across steps. The warm-up
	// is sized from the first combination; strategies whose lookback grows
	// past it simply see fewer warm-up candles.
	baseStrat, err := o.runner.newStrategy(withParams(req, combos[0]))
	if err != nil {
		return nil, err
	}
	candles, first, err := o.runner.window(ctx, req, baseStrat.MinLookback())
	if err != nil {
		return nil, err
	}

	for i, combo := range combos {
		if err := ctx.Err(); err != nil {
			o.logger.Info("optimization cancelled",
				slog.String("session", sessionID),
				slog.Int("steps_run", out.StepsRun))
			return out, err
		}

		stepPnl := decimal.Zero
		res, err := o.runStep(req, combo, candles, first)
		if err != nil {
			// One bad combination never aborts the search.
			o.logger.Warn("grid step failed",
				slog.String("session", sessionID),
				slog.Any("parameters", combo),
				slog.Any("error", err))
		} else {
			stepPnl = res.TotalPnlPercent
			if out.Best == nil || stepPnl.GreaterThan(out.BestPnlPercent) {
				out.Best = res
				out.BestPnlPercent = stepPnl
				out.BestParameters = combo
			}
		}
		out.StepsRun++

		status := "running"
		if i == len(combos)-1 {
			status = "completed"
		}
		o.progress.Publish(sessionID, domain.ProgressEvent{
			SessionID:         sessionID,
			CurrentStep:       i + 1,
			TotalSteps:        len(combos),
			CurrentParameters: combo,
			CurrentPnlPercent: stepPnl,
			BestPnlPercent:    out.BestPnlPercent,
			Status:            status,
		})
	}
	return out, nil
}

func (o *Optimizer) runStep(req domain.BacktestRequest, combo map[string]string, candles []domain.Candle, first int) (*domain.BacktestResult, error) {
	stepReq := withParams(req, combo)
	strat, err := o.runner.newStrategy(stepReq)
	if err != nil {
		return nil, err
	}
	return o.runner.simulate(stepReq, strat, candles, first)
}

// withParams overlays the combination onto the request's base parameters.
func withParams(req domain.BacktestRequest, combo map[string]string) domain.BacktestRequest {
	merged := make(map[string]string, len(req.Parameters)+len(combo))
	for k, v := range req.Parameters {
		merged[k] = v
	}
	for k, v := range combo {
		merged[k] = v
	}
	req.Parameters = merged
	return req
}

// expandGrid enumerates the Cartesian product of the grid in a stable order:
// keys sorted alphabetically, values in their given order, rightmost key
// varying fastest.
func expandGrid(grid map[string][]string) []map[string]string {
	keys := make([]string, 0, len(grid))
	for k, vs := range grid {
		if len(vs) == 0 {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	total := 1
	for _, k := range keys {
		total *= len(grid[k])
	}

	combos := make([]map[string]string, 0, total)
	idx := make([]int, len(keys))
	for {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = grid[k][idx[i]]
		}
		combos = append(combos, combo)

		// Advance the odometer, rightmost digit first.
		i := len(keys) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(grid[keys[i]]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return combos
		}
	}
}
