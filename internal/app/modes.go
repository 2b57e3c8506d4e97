package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/kripteks/tradecore/internal/backtest"
	"github.com/kripteks/tradecore/internal/domain"
	"github.com/kripteks/tradecore/internal/engine"
	"github.com/kripteks/tradecore/internal/market"
	"github.com/kripteks/tradecore/internal/scanner"
	"github.com/kripteks/tradecore/internal/server"
	"github.com/kripteks/tradecore/internal/server/handler"
	"github.com/kripteks/tradecore/internal/server/ws"
	"github.com/kripteks/tradecore/internal/strategy"
)

// RunArgs carries mode-specific parameters parsed from the command line.
// Serve mode ignores them entirely.
type RunArgs struct {
	Symbol     string
	Symbols    []string
	StrategyID string
	Interval   string
	Days       int
	Balance    string
	Commission string
	Slippage   string
	Params     map[string]string
	MinScore   string
}

// multiSink fans a notification out to every sink in the slice.
type multiSink []domain.NotificationSink

func (m multiSink) NotifyTrade(ctx context.Context, trade domain.Trade) {
	for _, s := range m {
		s.NotifyTrade(ctx, trade)
	}
}

func (m multiSink) NotifyBotUpdate(ctx context.Context, bot domain.Bot) {
	for _, s := range m {
		s.NotifyBotUpdate(ctx, bot)
	}
}

// marketSource builds the shared Binance market data client, wired through
// the rate limiter and price cache when Redis is enabled.
func (a *App) marketSource(deps *Dependencies) *market.Binance {
	opts := []market.Option{market.WithBaseURL(a.cfg.Binance.BaseURL)}
	if deps.PriceCache != nil {
		opts = append(opts, market.WithPriceCache(deps.PriceCache))
	}
	return market.NewBinance(deps.RateLimiter, a.logger, opts...)
}

// ServeMode runs the headless API server: backtesting, optimization, batch
// runs, scanning, and (when enabled) the live bot engine. It blocks until
// the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode", slog.Int("port", a.cfg.Server.Port))

	registry := strategy.Default()
	source := a.marketSource(deps)

	hub := ws.NewHub(a.logger)
	runner := backtest.NewRunner(source, registry, a.logger)
	optimizer := backtest.NewOptimizer(runner, hub, a.logger)
	batch := backtest.NewBatch(runner, a.cfg.Backtest.BatchConcurrency, a.logger)
	scan := scanner.New(source, registry, a.cfg.Scanner.Concurrency, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	// Live bot engine. Validation guarantees Postgres is enabled here.
	var botEngine *engine.Engine
	if a.cfg.Engine.Enabled {
		exitPriority := make([]engine.ExitReason, 0, len(a.cfg.Engine.ExitPriority))
		for _, reason := range a.cfg.Engine.ExitPriority {
			exitPriority = append(exitPriority, engine.ExitReason(reason))
		}
		botEngine = engine.New(
			deps.BotStore,
			deps.TradeStore,
			source,
			market.NewPaperExecutor(a.logger),
			multiSink{deps.Notifier, hub},
			registry,
			engine.Options{
				TickInterval: a.cfg.Engine.TickInterval.Duration,
				Concurrency:  a.cfg.Engine.Concurrency,
				ExitPriority: exitPriority,
			},
			a.logger,
		)
		botEngine.Start(ctx)
		defer botEngine.Stop()
	}

	// With the HTTP API disabled, serve mode is a headless engine daemon.
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http api disabled")
		return g.Wait()
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(),
		Backtest: handler.NewBacktestHandler(
			runner, optimizer, batch, deps.BacktestStore, deps.Archiver, a.logger),
		Bots: handler.NewBotHandler(
			deps.BotStore, deps.TradeStore, botControl(botEngine), registry, a.logger),
		Scanner:  handler.NewScannerHandler(scan, a.logger),
		Strategy: handler.NewStrategyHandler(registry),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// botControl adapts a possibly-nil engine to the handler interface. A typed
// nil pointer inside a non-nil interface would defeat the handler's guard.
func botControl(e *engine.Engine) handler.BotControl {
	if e == nil {
		return nil
	}
	return e
}

// BacktestMode runs a single backtest from command-line arguments and prints
// the result as JSON. The run is persisted when Postgres is enabled.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies, args RunArgs) error {
	req, err := backtestRequest(args)
	if err != nil {
		return err
	}

	registry := strategy.Default()
	runner := backtest.NewRunner(a.marketSource(deps), registry, a.logger)

	result, err := runner.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("app: backtest: %w", err)
	}

	if deps.BacktestStore != nil {
		if err := deps.BacktestStore.Save(ctx, *result); err != nil {
			a.logger.WarnContext(ctx, "save backtest failed",
				slog.String("id", result.ID), slog.String("error", err.Error()))
		}
	}
	if deps.Archiver != nil {
		if err := deps.Archiver.ArchiveRun(ctx, *result); err != nil {
			a.logger.WarnContext(ctx, "archive run failed",
				slog.String("id", result.ID), slog.String("error", err.Error()))
		}
	}

	return printJSON(result)
}

// ScanMode scans the given symbols once and prints the ranked results.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies, args RunArgs) error {
	if len(args.Symbols) == 0 {
		return fmt.Errorf("app: scan: at least one symbol is required")
	}
	if args.StrategyID == "" {
		return fmt.Errorf("app: scan: strategy is required")
	}

	req := domain.ScanRequest{
		Symbols:    args.Symbols,
		StrategyID: args.StrategyID,
		Interval:   scanInterval(args.Interval),
		Parameters: args.Params,
	}
	if args.MinScore != "" {
		min, err := decimal.NewFromString(args.MinScore)
		if err != nil {
			return fmt.Errorf("app: scan: invalid min score %q: %w", args.MinScore, err)
		}
		req.MinScore = &min
	}

	registry := strategy.Default()
	scan := scanner.New(a.marketSource(deps), registry, a.cfg.Scanner.Concurrency, a.logger)

	items, err := scan.Scan(ctx, req)
	if err != nil {
		return fmt.Errorf("app: scan: %w", err)
	}
	return printJSON(items)
}

// backtestRequest assembles a domain request from CLI arguments, applying the
// same defaults the HTTP API uses.
func backtestRequest(args RunArgs) (domain.BacktestRequest, error) {
	var req domain.BacktestRequest
	if args.Symbol == "" {
		return req, fmt.Errorf("app: backtest: symbol is required")
	}
	if args.StrategyID == "" {
		return req, fmt.Errorf("app: backtest: strategy is required")
	}

	days := args.Days
	if days <= 0 {
		days = 30
	}
	end := time.Now().UTC()

	req = domain.BacktestRequest{
		Symbol:     args.Symbol,
		StrategyID: args.StrategyID,
		Interval:   scanInterval(args.Interval),
		Start:      end.AddDate(0, 0, -days),
		End:        end,
		Parameters: args.Params,
	}

	var err error
	if req.InitialBalance, err = decimalArg(args.Balance, "10000"); err != nil {
		return req, fmt.Errorf("app: backtest: invalid balance %q: %w", args.Balance, err)
	}
	if req.CommissionRate, err = decimalArg(args.Commission, "0.001"); err != nil {
		return req, fmt.Errorf("app: backtest: invalid commission %q: %w", args.Commission, err)
	}
	if req.SlippageRate, err = decimalArg(args.Slippage, "0.0005"); err != nil {
		return req, fmt.Errorf("app: backtest: invalid slippage %q: %w", args.Slippage, err)
	}
	return req, nil
}

func decimalArg(value, fallback string) (decimal.Decimal, error) {
	if value == "" {
		value = fallback
	}
	return decimal.NewFromString(value)
}

func scanInterval(value string) domain.Interval {
	if value == "" {
		return domain.Interval1h
	}
	return domain.Interval(value)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
