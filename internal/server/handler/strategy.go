package handler

import (
	"net/http"

	"github.com/kripteks/tradecore/internal/domain"
	"github.com/kripteks/tradecore/internal/strategy"
)

// StrategyHandler serves the strategy catalog.
type StrategyHandler struct {
	registry *strategy.Registry
}

// NewStrategyHandler creates a StrategyHandler.
func NewStrategyHandler(registry *strategy.Registry) *StrategyHandler {
	return &StrategyHandler{registry: registry}
}

// List returns the registered strategies, optionally filtered by category.
// GET /api/strategies?category=scanner
func (h *StrategyHandler) List(w http.ResponseWriter, r *http.Request) {
	var infos []domain.StrategyInfo
	if cat := r.URL.Query().Get("category"); cat != "" {
		infos = h.registry.ByCategory(domain.StrategyCategory(cat))
	} else {
		infos = h.registry.Describe()
	}
	if infos == nil {
		infos = []domain.StrategyInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategies": infos})
}
