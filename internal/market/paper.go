package market

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
)

// PaperExecutor fills every well-formed order instantly without touching an
// exchange. It is the default executor; live order routing plugs in behind
// the same interface.
type PaperExecutor struct {
	logger *slog.Logger
}

// NewPaperExecutor creates a PaperExecutor.
func NewPaperExecutor(logger *slog.Logger) *PaperExecutor {
	return &PaperExecutor{logger: logger.With(slog.String("component", "paper_executor"))}
}

func (p *PaperExecutor) PlaceBuy(ctx context.Context, symbol string, price, qty decimal.Decimal) (bool, error) {
	return p.place(ctx, symbol, "buy", price, qty)
}

func (p *PaperExecutor) PlaceSell(ctx context.Context, symbol string, price, qty decimal.Decimal) (bool, error) {
	return p.place(ctx, symbol, "sell", price, qty)
}

func (p *PaperExecutor) place(ctx context.Context, symbol, side string, price, qty decimal.Decimal) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrContextDone, err)
	}
	if !price.IsPositive() || !qty.IsPositive() {
		return false, fmt.Errorf("%w: %s %s x %s", domain.ErrOrderRejected, side, qty, price)
	}
	p.logger.Info("paper fill",
		slog.String("symbol", symbol),
		slog.String("side", side),
		slog.String("price", price.String()),
		slog.String("qty", qty.String()))
	return true, nil
}

var _ domain.OrderExecutor = (*PaperExecutor)(nil)
