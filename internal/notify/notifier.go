// Package notify delivers operator alerts for live-bot events. Alerts are
// dispatched to every registered sender (Telegram, Discord) and can be
// filtered by event type so operators receive only what they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kripteks/tradecore/internal/domain"
)

// Event types accepted by the filter configuration.
const (
	EventTrade     = "trade"
	EventBotStatus = "bot_status"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier implements domain.NotificationSink by formatting events into
// short text alerts and fanning them out to all senders. Delivery is best
// effort: sender failures are logged, never propagated to the engine.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types; empty allows all
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders. Only events whose
// type appears in events are forwarded; an empty list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// NotifyTrade alerts on an executed fill.
func (n *Notifier) NotifyTrade(ctx context.Context, trade domain.Trade) {
	title := fmt.Sprintf("Trade: %s %s", strings.ToUpper(string(trade.Type)), trade.Symbol)
	message := fmt.Sprintf("Price: %s\nQuantity: %s\nTotal: %s\nBot: %s",
		trade.Price, trade.Quantity, trade.Total, trade.BotID)
	n.dispatch(ctx, EventTrade, title, message)
}

// NotifyBotUpdate alerts on a bot state change.
func (n *Notifier) NotifyBotUpdate(ctx context.Context, bot domain.Bot) {
	title := fmt.Sprintf("Bot %s: %s", bot.Symbol, bot.Status)
	message := fmt.Sprintf("Strategy: %s\nPnL: %s (%s%%)\nBot: %s",
		bot.StrategyID, bot.CurrentPnl, bot.CurrentPnlPercent, bot.ID)
	n.dispatch(ctx, EventBotStatus, title, message)
}

func (n *Notifier) dispatch(ctx context.Context, event, title, message string) {
	if len(n.senders) == 0 {
		return
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return
	}

	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
}

var _ domain.NotificationSink = (*Notifier)(nil)
