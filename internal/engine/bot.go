package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
)

// candleSlack is fetched on top of the strategy's minimum lookback so a
// short exchange response still leaves a full window.
const candleSlack = 5

var one = decimal.NewFromInt(1)

func pct(v decimal.Decimal) decimal.Decimal {
	return v.Div(decimal.NewFromInt(100))
}

// processBot runs one tick of one bot's state machine. Errors never escape:
// a failing tick leaves the bot in its current state and logs why.
func (e *Engine) processBot(ctx context.Context, bot domain.Bot) {
	log := e.logger.With(slog.String("bot", bot.ID), slog.String("symbol", bot.Symbol))

	strat, err := e.registry.New(bot.StrategyID)
	if err != nil {
		log.Error("unknown strategy, pausing bot", slog.String("strategy", bot.StrategyID))
		bot.Status = domain.BotPaused
		e.flushLogged(ctx, &bot, log)
		return
	}
	if err := strat.SetParameters(bot.Params); err != nil {
		log.Error("bad strategy parameters, pausing bot", slog.Any("error", err))
		bot.Status = domain.BotPaused
		e.flushLogged(ctx, &bot, log)
		return
	}

	candles, err := e.market.GetLatestCandles(ctx, bot.Symbol, bot.Interval, strat.MinLookback()+candleSlack)
	if err != nil {
		// Transient market trouble: stay in state, try again next tick.
		log.Warn("candle fetch failed", slog.Any("error", err))
		return
	}
	price, err := e.market.GetCurrentPrice(ctx, bot.Symbol)
	if err != nil {
		log.Warn("price fetch failed", slog.Any("error", err))
		return
	}

	res, err := strat.Analyze(candles, bot.Amount, bot.Quantity, bot.EntryPrice, bot.CurrentDcaStep)
	if err != nil {
		// A failing evaluation is a no-signal tick.
		log.Warn("strategy evaluation failed", slog.Any("error", err))
		res = domain.StrategyResult{}
	}

	switch bot.Status {
	case domain.BotWaitingForEntry:
		if res.Action == domain.ActionBuy {
			e.enter(ctx, &bot, price, log)
		}
	case domain.BotRunning:
		e.running(ctx, &bot, res, price, log)
	}
}

// enter places the opening buy with the bot's configured stake.
func (e *Engine) enter(ctx context.Context, bot *domain.Bot, price decimal.Decimal, log *slog.Logger) {
	if !price.IsPositive() || !bot.Amount.IsPositive() {
		return
	}
	qty := bot.Amount.Div(price)
	if !e.placeOrder(ctx, bot, domain.TradeBuy, price, qty, log) {
		return
	}

	bot.EntryPrice = price
	bot.Quantity = qty
	bot.Status = domain.BotRunning
	bot.MaxPriceReached = price
	bot.CurrentDcaStep = 1
	bot.CurrentPnl = decimal.Zero
	bot.CurrentPnlPercent = decimal.Zero
	log.Info("entered position",
		slog.String("price", price.String()),
		slog.String("qty", qty.String()))
	e.flushLogged(ctx, bot, log)
}

// running recomputes PnL, advances the trailing extreme and walks the exit
// priority chain; a buy signal while running is a DCA add.
func (e *Engine) running(ctx context.Context, bot *domain.Bot, res domain.StrategyResult, price decimal.Decimal, log *slog.Logger) {
	bot.CurrentPnl = price.Sub(bot.EntryPrice).Mul(bot.Quantity)
	if bot.EntryPrice.IsPositive() {
		bot.CurrentPnlPercent = price.Sub(bot.EntryPrice).Div(bot.EntryPrice).Mul(decimal.NewFromInt(100))
	}
	if bot.IsTrailingStop && price.GreaterThan(bot.MaxPriceReached) {
		bot.MaxPriceReached = price
	}

	if reason, hit := e.exitCondition(bot, res, price); hit {
		e.exit(ctx, bot, price, reason, log)
		return
	}

	if res.Action == domain.ActionBuy && res.SuggestedAmount.IsPositive() {
		e.dcaAdd(ctx, bot, res.SuggestedAmount, price, log)
		return
	}

	// Nothing actionable this tick; still flush the refreshed PnL.
	e.flushLogged(ctx, bot, log)
}

// exitCondition walks the configured priority chain and returns the first
// condition the current price breaches.
func (e *Engine) exitCondition(bot *domain.Bot, res domain.StrategyResult, price decimal.Decimal) (ExitReason, bool) {
	for _, reason := range e.opts.ExitPriority {
		switch reason {
		case ExitStopLoss:
			if bot.StopLossPercent.IsPositive() &&
				price.LessThanOrEqual(bot.EntryPrice.Mul(one.Sub(pct(bot.StopLossPercent)))) {
				return ExitStopLoss, true
			}
		case ExitTakeProfit:
			if bot.TakeProfitPercent.IsPositive() &&
				price.GreaterThanOrEqual(bot.EntryPrice.Mul(one.Add(pct(bot.TakeProfitPercent)))) {
				return ExitTakeProfit, true
			}
		case ExitTrailingStop:
			if bot.IsTrailingStop && bot.TrailingStopDistance.IsPositive() &&
				bot.MaxPriceReached.IsPositive() &&
				price.LessThanOrEqual(bot.MaxPriceReached.Mul(one.Sub(pct(bot.TrailingStopDistance)))) {
				return ExitTrailingStop, true
			}
		case ExitSignal:
			if res.Action == domain.ActionSell {
				return ExitSignal, true
			}
		}
	}
	return "", false
}

// exit closes the position. Continuous bots re-arm for the next entry;
// one-shot bots complete.
func (e *Engine) exit(ctx context.Context, bot *domain.Bot, price decimal.Decimal, reason ExitReason, log *slog.Logger) {
	if !e.placeOrder(ctx, bot, domain.TradeSell, price, bot.Quantity, log) {
		return
	}
	log.Info("closed position",
		slog.String("reason", string(reason)),
		slog.String("price", price.String()),
		slog.String("pnl", bot.CurrentPnl.String()))

	bot.Quantity = decimal.Zero
	bot.EntryPrice = decimal.Zero
	bot.MaxPriceReached = decimal.Zero
	bot.CurrentDcaStep = 0
	if bot.Continuous {
		bot.Status = domain.BotWaitingForEntry
	} else {
		bot.Status = domain.BotCompleted
	}
	e.flushLogged(ctx, bot, log)
}

// dcaAdd buys the suggested quote amount on top of the open position and
// recomputes the volume-weighted average entry. State stays running.
func (e *Engine) dcaAdd(ctx context.Context, bot *domain.Bot, amount, price decimal.Decimal, log *slog.Logger) {
	addQty := amount.Div(price)
	if !addQty.IsPositive() {
		return
	}
	if !e.placeOrder(ctx, bot, domain.TradeBuy, price, addQty, log) {
		return
	}

	newQty := bot.Quantity.Add(addQty)
	bot.EntryPrice = bot.EntryPrice.Mul(bot.Quantity).Add(price.Mul(addQty)).Div(newQty)
	bot.Quantity = newQty
	bot.CurrentDcaStep++
	if bot.IsTrailingStop && price.GreaterThan(bot.MaxPriceReached) {
		bot.MaxPriceReached = price
	}
	log.Info("dca add",
		slog.Int("step", bot.CurrentDcaStep),
		slog.String("price", price.String()),
		slog.String("avg_entry", bot.EntryPrice.String()))
	e.flushLogged(ctx, bot, log)
}

// placeOrder routes one fill through the executor, records the trade and
// maintains the consecutive-failure escalation. It reports whether the order
// filled; on failure the bot keeps its current state (or auto-pauses after
// the failure streak).
func (e *Engine) placeOrder(ctx context.Context, bot *domain.Bot, side domain.TradeType, price, qty decimal.Decimal, log *slog.Logger) bool {
	var (
		filled bool
		err    error
	)
	if side == domain.TradeBuy {
		filled, err = e.orders.PlaceBuy(ctx, bot.Symbol, price, qty)
	} else {
		filled, err = e.orders.PlaceSell(ctx, bot.Symbol, price, qty)
	}
	if err != nil || !filled {
		log.Error("order not filled",
			slog.String("side", string(side)),
			slog.Any("error", err))
		e.recordFailure(ctx, bot, log)
		return false
	}

	e.mu.Lock()
	delete(e.failures, bot.ID)
	e.mu.Unlock()

	trade := domain.Trade{
		ID:        uuid.NewString(),
		BotID:     bot.ID,
		Symbol:    bot.Symbol,
		Type:      side,
		Price:     price,
		Quantity:  qty,
		Total:     price.Mul(qty),
		Timestamp: time.Now().UTC(),
	}
	if err := e.trades.Insert(ctx, trade); err != nil {
		// The fill happened; a persistence hiccup must not desync state.
		log.Error("trade persist failed", slog.Any("error", err))
	}
	e.notify.NotifyTrade(ctx, trade)
	return true
}

// recordFailure bumps the bot's consecutive-failure streak and auto-pauses
// it once the streak reaches the cap.
func (e *Engine) recordFailure(ctx context.Context, bot *domain.Bot, log *slog.Logger) {
	e.mu.Lock()
	e.failures[bot.ID]++
	n := e.failures[bot.ID]
	e.mu.Unlock()

	if n < maxConsecutiveFailures {
		return
	}
	log.Warn("auto-pausing after repeated order failures", slog.Int("failures", n))
	bot.Status = domain.BotPaused
	e.flushLogged(ctx, bot, log)
}

func (e *Engine) flushLogged(ctx context.Context, bot *domain.Bot, log *slog.Logger) {
	if err := e.flush(ctx, bot); err != nil {
		log.Error("bot flush failed", slog.Any("error", err))
	}
}
