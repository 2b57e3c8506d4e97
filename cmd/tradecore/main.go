// Command tradecore is the entry point for the trading engine. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and runs the configured mode: "serve" (API server), "backtest" (one-shot
// simulation), or "scan" (one-shot multi-symbol scan).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kripteks/tradecore/internal/app"
	"github.com/kripteks/tradecore/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "config.toml", "path to configuration file")
		symbol     = flag.String("symbol", "", "trading pair for backtest mode, e.g. BTCUSDT")
		symbols    = flag.String("symbols", "", "comma-separated pairs for scan mode")
		strategyID = flag.String("strategy", "", "strategy id for backtest and scan modes")
		interval   = flag.String("interval", "1h", "candle interval")
		days       = flag.Int("days", 30, "backtest lookback in days")
		balance    = flag.String("balance", "", "backtest initial balance")
		commission = flag.String("commission", "", "backtest commission rate, e.g. 0.001")
		slippage   = flag.String("slippage", "", "backtest slippage rate, e.g. 0.0005")
		params     = flag.String("params", "", "strategy parameters as k=v,k=v")
		minScore   = flag.String("min-score", "", "scan mode minimum signal score")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("tradecore starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)
	logger.Debug("configuration loaded", slog.Any("config", config.RedactedConfig(cfg)))

	args := app.RunArgs{
		Symbol:     *symbol,
		Symbols:    splitList(*symbols),
		StrategyID: *strategyID,
		Interval:   *interval,
		Days:       *days,
		Balance:    *balance,
		Commission: *commission,
		Slippage:   *slippage,
		Params:     parseParams(*params),
		MinScore:   *minScore,
	}

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx, args); err != nil {
		// context.Canceled is expected on clean shutdown.
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("tradecore stopped")
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseParams turns "period=14,threshold=70" into a parameter map. Malformed
// entries are skipped rather than rejected; strategies validate their own
// parameters.
func parseParams(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
