// Package engine runs live trading bots. One global ticker drives all active
// bots; each bot's state is owned exclusively by its own tick execution, so
// no two ticks for the same bot ever overlap.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kripteks/tradecore/internal/domain"
	"github.com/kripteks/tradecore/internal/strategy"
)

// ExitReason identifies one link of the exit priority chain.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitSignal       ExitReason = "signal"
)

// DefaultExitPriority is the order exit conditions are checked within one
// tick: the hard stop outranks everything, the strategy's own sell signal
// comes last.
var DefaultExitPriority = []ExitReason{ExitStopLoss, ExitTakeProfit, ExitTrailingStop, ExitSignal}

// maxConsecutiveFailures is the order-failure streak that auto-pauses a bot
// so it stops hammering the exchange.
const maxConsecutiveFailures = 3

// Options tune the engine's scheduler.
type Options struct {
	TickInterval time.Duration // default 30s
	Concurrency  int           // bots processed in parallel per tick, default 4
	ExitPriority []ExitReason  // default DefaultExitPriority
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = 30 * time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if len(o.ExitPriority) == 0 {
		o.ExitPriority = DefaultExitPriority
	}
	return o
}

// Engine schedules and executes all active bots on a single ticker.
type Engine struct {
	bots     domain.BotStore
	trades   domain.TradeStore
	market   domain.MarketDataSource
	orders   domain.OrderExecutor
	notify   domain.NotificationSink
	registry *strategy.Registry
	opts     Options
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc // bots mid-tick, by id
	failures map[string]int                // consecutive order failures, by id
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates an Engine. Start must be called before it ticks.
func New(bots domain.BotStore, trades domain.TradeStore, market domain.MarketDataSource,
	orders domain.OrderExecutor, notify domain.NotificationSink,
	registry *strategy.Registry, opts Options, logger *slog.Logger) *Engine {
	return &Engine{
		bots:     bots,
		trades:   trades,
		market:   market,
		orders:   orders,
		notify:   notify,
		registry: registry,
		opts:     opts.withDefaults(),
		logger:   logger.With(slog.String("component", "bot_engine")),
		inflight: map[string]context.CancelFunc{},
		failures: map[string]int{},
	}
}

// Start launches the tick loop. It returns immediately; Stop shuts the loop
// down and waits for in-flight ticks.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.opts.TickInterval)
		defer ticker.Stop()
		e.logger.Info("engine started", slog.Duration("tick", e.opts.TickInterval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.tick(ctx)
			}
		}
	}()
}

// Stop halts the scheduler and waits for the loop to drain.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.logger.Info("engine stopped")
}

// tick fans out over all active bots on a bounded pool. A bot whose previous
// tick is still in flight is skipped, keeping per-bot processing strictly
// sequential.
func (e *Engine) tick(ctx context.Context) {
	active, err := e.bots.ListActive(ctx)
	if err != nil {
		e.logger.Error("list active bots", slog.Any("error", err))
		return
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for _, bot := range active {
		botCtx, ok := e.claim(ctx, bot.ID)
		if !ok {
			continue
		}
		g.Go(func() error {
			defer e.release(bot.ID)
			e.processBot(botCtx, bot)
			return nil
		})
	}
	_ = g.Wait()
}

// claim marks a bot as in flight and returns a per-bot context that StopBot
// can cancel. ok is false when the bot is already being processed.
func (e *Engine) claim(ctx context.Context, id string) (context.Context, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[id]; busy {
		return nil, false
	}
	botCtx, cancel := context.WithCancel(ctx)
	e.inflight[id] = cancel
	return botCtx, true
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	if cancel, ok := e.inflight[id]; ok {
		cancel()
		delete(e.inflight, id)
	}
	e.mu.Unlock()
}

// StartBot arms a stored bot. Paused bots resume into the state they were
// paused in; everything else starts waiting for an entry.
func (e *Engine) StartBot(ctx context.Context, id string) error {
	bot, err := e.bots.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch bot.Status {
	case domain.BotRunning, domain.BotWaitingForEntry:
		return nil // already live
	case domain.BotPaused:
		bot.Status = bot.ResumeStatus()
	default:
		bot.Status = domain.BotWaitingForEntry
	}
	e.mu.Lock()
	delete(e.failures, id)
	e.mu.Unlock()
	return e.flush(ctx, &bot)
}

// StopBot force-transitions a bot to stopped and cancels its in-flight tick.
// Idempotent: stopping a stopped bot is a no-op.
func (e *Engine) StopBot(ctx context.Context, id string) error {
	e.mu.Lock()
	if cancel, ok := e.inflight[id]; ok {
		cancel()
	}
	e.mu.Unlock()

	bot, err := e.bots.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if bot.Status == domain.BotStopped {
		return nil
	}
	bot.Status = domain.BotStopped
	return e.flush(ctx, &bot)
}

// StopAllBots stops every non-stopped bot. Per-bot failures are collected,
// not fatal.
func (e *Engine) StopAllBots(ctx context.Context) error {
	active, err := e.bots.ListActive(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, bot := range active {
		if err := e.StopBot(ctx, bot.ID); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", bot.ID, err))
		}
	}
	return errors.Join(errs...)
}

// PauseBot suspends ticking without touching the position.
func (e *Engine) PauseBot(ctx context.Context, id string) error {
	bot, err := e.bots.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if bot.Status != domain.BotRunning && bot.Status != domain.BotWaitingForEntry {
		return nil
	}
	bot.Status = domain.BotPaused
	return e.flush(ctx, &bot)
}

// flush persists a mutated bot and pushes the update notification. Every
// state change goes through here.
func (e *Engine) flush(ctx context.Context, bot *domain.Bot) error {
	bot.UpdatedAt = time.Now().UTC()
	if err := e.bots.Update(ctx, *bot); err != nil {
		return fmt.Errorf("persist bot %s: %w", bot.ID, err)
	}
	e.notify.NotifyBotUpdate(ctx, *bot)
	return nil
}
