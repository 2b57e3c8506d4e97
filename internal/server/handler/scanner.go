package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
)

// SymbolScanner scores a strategy across many symbols.
type SymbolScanner interface {
	Scan(ctx context.Context, req domain.ScanRequest) ([]domain.ScanItem, error)
}

// ScannerHandler serves the multi-symbol scan endpoint.
type ScannerHandler struct {
	scanner SymbolScanner
	logger  *slog.Logger
}

// NewScannerHandler creates a ScannerHandler.
func NewScannerHandler(scanner SymbolScanner, logger *slog.Logger) *ScannerHandler {
	return &ScannerHandler{scanner: scanner, logger: logger}
}

type scanRequest struct {
	Symbols    []string          `json:"symbols"`
	StrategyID string            `json:"strategy_id"`
	Interval   string            `json:"interval"`
	Parameters map[string]string `json:"parameters"`
	MinScore   *decimal.Decimal  `json:"min_score,omitempty"`
}

// Scan scores the strategy on every symbol and returns items sorted by
// score, best first.
// POST /api/scan
func (h *ScannerHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var body scanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	items, err := h.scanner.Scan(r.Context(), domain.ScanRequest{
		Symbols:    body.Symbols,
		StrategyID: body.StrategyID,
		Interval:   domain.Interval(body.Interval),
		Parameters: body.Parameters,
		MinScore:   body.MinScore,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidParameter), errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "rate limited")
		default:
			h.logger.ErrorContext(r.Context(), "scan failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to scan symbols")
		}
		return
	}
	if items == nil {
		items = []domain.ScanItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}
