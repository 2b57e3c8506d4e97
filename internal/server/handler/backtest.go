package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
)

// BacktestRunner runs a single simulation.
type BacktestRunner interface {
	Run(ctx context.Context, req domain.BacktestRequest) (*domain.BacktestResult, error)
}

// GridOptimizer runs a parameter grid search, streaming progress per step.
type GridOptimizer interface {
	Optimize(ctx context.Context, sessionID string, req domain.BacktestRequest, grid map[string][]string) (*domain.OptimizationResult, error)
}

// BatchRunner runs one strategy across many symbols.
type BatchRunner interface {
	Run(ctx context.Context, req domain.BatchRequest) []domain.BatchItem
}

// BacktestHandler serves simulation, optimization, batch, and history
// endpoints.
type BacktestHandler struct {
	runner    BacktestRunner
	optimizer GridOptimizer
	batch     BatchRunner
	store     domain.BacktestStore
	archiver  domain.RunArchiver
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]context.CancelFunc // running optimizer sessions
}

// NewBacktestHandler creates a BacktestHandler. The store and archiver may
// be nil when persistence is disabled; runs then return results without
// being saved.
func NewBacktestHandler(runner BacktestRunner, optimizer GridOptimizer, batch BatchRunner,
	store domain.BacktestStore, archiver domain.RunArchiver, logger *slog.Logger) *BacktestHandler {
	return &BacktestHandler{
		runner:    runner,
		optimizer: optimizer,
		batch:     batch,
		store:     store,
		archiver:  archiver,
		logger:    logger,
		sessions:  make(map[string]context.CancelFunc),
	}
}

// backtestRequest is the JSON body for run and optimize endpoints.
type backtestRequest struct {
	Symbol         string              `json:"symbol"`
	StrategyID     string              `json:"strategy_id"`
	Interval       string              `json:"interval"`
	Start          time.Time           `json:"start"`
	End            time.Time           `json:"end"`
	InitialBalance decimal.Decimal     `json:"initial_balance"`
	CommissionRate decimal.Decimal     `json:"commission_rate"`
	SlippageRate   decimal.Decimal     `json:"slippage_rate"`
	Parameters     map[string]string   `json:"parameters"`
	Grid           map[string][]string `json:"grid,omitempty"`
	Symbols        []string            `json:"symbols,omitempty"`
}

func (b backtestRequest) toDomain() domain.BacktestRequest {
	return domain.BacktestRequest{
		Symbol:         b.Symbol,
		StrategyID:     b.StrategyID,
		Interval:       domain.Interval(b.Interval),
		Start:          b.Start,
		End:            b.End,
		InitialBalance: b.InitialBalance,
		CommissionRate: b.CommissionRate,
		SlippageRate:   b.SlippageRate,
		Parameters:     b.Parameters,
	}
}

// Run executes one backtest synchronously and persists the outcome.
// POST /api/backtests
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	var body backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.runner.Run(r.Context(), body.toDomain())
	if err != nil {
		h.writeRunError(w, r, "backtest", err)
		return
	}

	h.persist(r.Context(), result)
	writeJSON(w, http.StatusOK, result)
}

// Optimize starts a grid search in the background and returns its session
// ID. Progress streams over the WebSocket hub; the finished best run is
// persisted like a normal backtest.
// POST /api/backtests/optimize
func (h *BacktestHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var body backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.Grid) == 0 {
		writeError(w, http.StatusBadRequest, "grid is required")
		return
	}

	sessionID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	h.sessions[sessionID] = cancel
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.sessions, sessionID)
			h.mu.Unlock()
			cancel()
		}()

		result, err := h.optimizer.Optimize(ctx, sessionID, body.toDomain(), body.Grid)
		if err != nil {
			h.logger.Error("optimization ended early",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
		if result != nil && result.Best != nil {
			h.persist(context.Background(), result.Best)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sessionID})
}

// CancelOptimize stops a running optimization session.
// DELETE /api/backtests/optimize/{session_id}
func (h *BacktestHandler) CancelOptimize(w http.ResponseWriter, r *http.Request) {
	sessionID := pathParam(r, "session_id")

	h.mu.Lock()
	cancel, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	cancel()

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "cancelled",
		"session_id": sessionID,
	})
}

// RunBatch executes one strategy across many symbols.
// POST /api/backtests/batch
func (h *BacktestHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	var body backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.Symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols is required")
		return
	}

	items := h.batch.Run(r.Context(), domain.BatchRequest{
		Symbols:        body.Symbols,
		StrategyID:     body.StrategyID,
		Interval:       domain.Interval(body.Interval),
		Start:          body.Start,
		End:            body.End,
		InitialBalance: body.InitialBalance,
		CommissionRate: body.CommissionRate,
		SlippageRate:   body.SlippageRate,
		Parameters:     body.Parameters,
	})
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

// List returns persisted backtest history, newest first.
// GET /api/backtests?limit=50&offset=0
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "backtest history is disabled")
		return
	}

	results, err := h.store.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list backtests failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list backtests")
		return
	}
	if results == nil {
		results = []domain.BacktestResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backtests": results})
}

// Get returns one persisted run with its archived trades and candles.
// GET /api/backtests/{id}
func (h *BacktestHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "backtest history is disabled")
		return
	}
	id := pathParam(r, "id")

	result, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "backtest not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get backtest failed",
			slog.String("id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get backtest")
		return
	}

	if h.archiver != nil {
		trades, candles, err := h.archiver.LoadRun(r.Context(), id)
		if err != nil {
			// Metrics are still useful without the snapshot.
			h.logger.WarnContext(r.Context(), "load run snapshot failed",
				slog.String("id", id), slog.String("error", err.Error()))
		} else {
			result.Trades = trades
			result.Candles = candles
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// SetFavorite flags or unflags a run in the history.
// PUT /api/backtests/{id}/favorite
func (h *BacktestHandler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "backtest history is disabled")
		return
	}
	id := pathParam(r, "id")

	var body struct {
		Favorite bool `json:"favorite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.store.SetFavorite(r.Context(), id, body.Favorite); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "backtest not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "set favorite failed",
			slog.String("id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to update backtest")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "favorite": body.Favorite})
}

// Delete removes a run and its archived snapshot.
// DELETE /api/backtests/{id}
func (h *BacktestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "backtest history is disabled")
		return
	}
	id := pathParam(r, "id")

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "backtest not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "delete backtest failed",
			slog.String("id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to delete backtest")
		return
	}
	if h.archiver != nil {
		if err := h.archiver.DeleteRun(r.Context(), id); err != nil {
			h.logger.WarnContext(r.Context(), "delete run snapshot failed",
				slog.String("id", id), slog.String("error", err.Error()))
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// persist saves the scalar metrics and archives the heavy snapshot. Both
// are best effort; the caller already has the full result in hand.
func (h *BacktestHandler) persist(ctx context.Context, result *domain.BacktestResult) {
	if h.store != nil {
		if err := h.store.Save(ctx, *result); err != nil {
			h.logger.ErrorContext(ctx, "save backtest failed",
				slog.String("id", result.ID), slog.String("error", err.Error()))
		}
	}
	if h.archiver != nil {
		if err := h.archiver.ArchiveRun(ctx, *result); err != nil {
			h.logger.ErrorContext(ctx, "archive run failed",
				slog.String("id", result.ID), slog.String("error", err.Error()))
		}
	}
}

func (h *BacktestHandler) writeRunError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidParameter), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientData), errors.Is(err, domain.ErrSymbolNotFound):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	default:
		h.logger.ErrorContext(r.Context(), op+" failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to run "+op)
	}
}
