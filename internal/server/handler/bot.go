package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
	"github.com/kripteks/tradecore/internal/strategy"
)

// BotControl is the slice of the live engine the bot handler drives.
type BotControl interface {
	StartBot(ctx context.Context, id string) error
	StopBot(ctx context.Context, id string) error
	PauseBot(ctx context.Context, id string) error
}

// BotHandler serves live-bot CRUD and lifecycle endpoints.
type BotHandler struct {
	bots     domain.BotStore
	trades   domain.TradeStore
	engine   BotControl
	registry *strategy.Registry
	logger   *slog.Logger
}

// NewBotHandler creates a BotHandler.
func NewBotHandler(bots domain.BotStore, trades domain.TradeStore, engine BotControl,
	registry *strategy.Registry, logger *slog.Logger) *BotHandler {
	return &BotHandler{
		bots:     bots,
		trades:   trades,
		engine:   engine,
		registry: registry,
		logger:   logger,
	}
}

// available reports whether the live-bot subsystem is wired. When the engine
// is disabled in configuration these endpoints answer 503.
func (h *BotHandler) available(w http.ResponseWriter) bool {
	if h.bots == nil || h.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "live bots are disabled")
		return false
	}
	return true
}

// createBotRequest is the JSON body for bot creation.
type createBotRequest struct {
	Symbol               string            `json:"symbol"`
	StrategyID           string            `json:"strategy_id"`
	Interval             string            `json:"interval"`
	Amount               decimal.Decimal   `json:"amount"`
	Parameters           map[string]string `json:"parameters"`
	OrderType            string            `json:"order_type"`
	TakeProfitPercent    decimal.Decimal   `json:"take_profit_percent"`
	StopLossPercent      decimal.Decimal   `json:"stop_loss_percent"`
	IsTrailingStop       bool              `json:"is_trailing_stop"`
	TrailingStopDistance decimal.Decimal   `json:"trailing_stop_distance"`
	Continuous           bool              `json:"continuous"`
}

// Create validates and persists a new bot in the stopped state. The strategy
// parameters are checked up front so a bad bot never reaches the engine.
// POST /api/bots
func (h *BotHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var body createBotRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	if !domain.Interval(body.Interval).Known() {
		writeError(w, http.StatusBadRequest, "unknown interval: "+body.Interval)
		return
	}
	if !body.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	strat, err := h.registry.New(body.StrategyID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown strategy: "+body.StrategyID)
		return
	}
	if err := strat.SetParameters(body.Parameters); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	orderType := domain.OrderType(body.OrderType)
	if orderType == "" {
		orderType = domain.OrderMarket
	}

	now := time.Now().UTC()
	bot := domain.Bot{
		ID:                   uuid.NewString(),
		Symbol:               body.Symbol,
		StrategyID:           body.StrategyID,
		Interval:             domain.Interval(body.Interval),
		Amount:               body.Amount,
		Params:               body.Parameters,
		OrderType:            orderType,
		Status:               domain.BotStopped,
		TakeProfitPercent:    body.TakeProfitPercent,
		StopLossPercent:      body.StopLossPercent,
		IsTrailingStop:       body.IsTrailingStop,
		TrailingStopDistance: body.TrailingStopDistance,
		Continuous:           body.Continuous,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if bot.Params == nil {
		bot.Params = map[string]string{}
	}

	if err := h.bots.Create(r.Context(), bot); err != nil {
		h.logger.ErrorContext(r.Context(), "create bot failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create bot")
		return
	}
	writeJSON(w, http.StatusCreated, bot)
}

// List returns all bots.
// GET /api/bots?limit=50&offset=0
func (h *BotHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	bots, err := h.bots.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list bots failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list bots")
		return
	}
	if bots == nil {
		bots = []domain.Bot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bots": bots})
}

// Get returns one bot by ID.
// GET /api/bots/{id}
func (h *BotHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	id := pathParam(r, "id")

	bot, err := h.bots.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bot not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get bot failed",
			slog.String("bot_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get bot")
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

// Delete removes a stopped bot. Running bots must be stopped first.
// DELETE /api/bots/{id}
func (h *BotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	id := pathParam(r, "id")

	bot, err := h.bots.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bot not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get bot failed",
			slog.String("bot_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to delete bot")
		return
	}
	if bot.Status == domain.BotRunning || bot.Status == domain.BotWaitingForEntry {
		writeError(w, http.StatusConflict, "stop the bot before deleting it")
		return
	}

	if err := h.bots.Delete(r.Context(), id); err != nil {
		h.logger.ErrorContext(r.Context(), "delete bot failed",
			slog.String("bot_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to delete bot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// Start arms the bot for entry (or resumes a paused one).
// POST /api/bots/{id}/start
func (h *BotHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	h.lifecycle(w, r, "start", h.engine.StartBot)
}

// Stop halts the bot. Any held position stays open.
// POST /api/bots/{id}/stop
func (h *BotHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	h.lifecycle(w, r, "stop", h.engine.StopBot)
}

// Pause suspends evaluation without touching the position.
// POST /api/bots/{id}/pause
func (h *BotHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	h.lifecycle(w, r, "pause", h.engine.PauseBot)
}

func (h *BotHandler) lifecycle(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, string) error) {
	id := pathParam(r, "id")

	if err := fn(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bot not found")
			return
		}
		h.logger.ErrorContext(r.Context(), op+" bot failed",
			slog.String("bot_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to "+op+" bot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": op, "id": id})
}

// ListTrades returns a bot's fills, newest first.
// GET /api/bots/{id}/trades
func (h *BotHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	id := pathParam(r, "id")

	trades, err := h.trades.ListByBot(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades failed",
			slog.String("bot_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}
