package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kripteks/tradecore/internal/domain"
)

// Constructor builds a fresh strategy instance. Every backtest run, scan and
// live bot gets its own instance so no parameter state is shared.
type Constructor func() Strategy

// Registry maps strategy identifiers to constructors. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Default returns a Registry with every built-in strategy registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(func() Strategy { return NewMarketBuy() })
	r.Register(func() Strategy { return NewSma111Breakout() })
	r.Register(func() Strategy { return NewSma111BuySell() })
	r.Register(func() Strategy { return NewGoldenCross() })
	r.Register(func() Strategy { return NewBreakoutHunter() })
	r.Register(func() Strategy { return NewOversoldRecovery() })
	r.Register(func() Strategy { return NewDca() })
	return r
}

// Register adds a constructor under the ID reported by a probe instance.
// Registering the same ID twice replaces the earlier constructor.
func (r *Registry) Register(ctor Constructor) {
	id := ctor().ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[id] = ctor
}

// New builds a fresh instance of the strategy registered under id. Unknown
// ids fail with domain.ErrNotFound; there is no fallback strategy, so a
// misconfigured id surfaces immediately instead of silently trading a
// different algorithm.
func (r *Registry) New(id string) (Strategy, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy %q: %w", id, domain.ErrNotFound)
	}
	return ctor(), nil
}

// IDs returns all registered strategy ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.ctors))
	for id := range r.ctors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Describe returns catalog metadata for every registered strategy, sorted
// by id.
func (r *Registry) Describe() []domain.StrategyInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]domain.StrategyInfo, 0, len(r.ctors))
	for _, ctor := range r.ctors {
		s := ctor()
		infos = append(infos, domain.StrategyInfo{
			ID:          s.ID(),
			Name:        s.Name(),
			Description: s.Description(),
			Category:    s.Category(),
			MinLookback: s.MinLookback(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// ByCategory returns metadata for strategies usable in the given category.
// Strategies declared CategoryBoth match every category.
func (r *Registry) ByCategory(cat domain.StrategyCategory) []domain.StrategyInfo {
	all := r.Describe()
	out := make([]domain.StrategyInfo, 0, len(all))
	for _, info := range all {
		if info.Category == cat || info.Category == domain.CategoryBoth || cat == domain.CategoryBoth {
			out = append(out, info)
		}
	}
	return out
}
