package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kripteks/tradecore/internal/domain"
)

const tradeCols = `id, bot_id, symbol, type, price, quantity, total, ts`

// TradeStore persists executed fills in the trades table.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

func (s *TradeStore) Insert(ctx context.Context, trade domain.Trade) error {
	const q = `
		INSERT INTO trades (` + tradeCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, q,
		trade.ID, trade.BotID, trade.Symbol, string(trade.Type),
		trade.Price, trade.Quantity, trade.Total, trade.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("trade store: insert %s: %w", trade.ID, err)
	}
	return nil
}

func (s *TradeStore) ListByBot(ctx context.Context, botID string, opts domain.ListOpts) ([]domain.Trade, error) {
	q := `SELECT ` + tradeCols + ` FROM trades WHERE bot_id = $1`
	args := []any{botID}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		q += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		q += fmt.Sprintf(" AND ts < $%d", len(args))
	}
	q += " ORDER BY ts DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("trade store: list by bot %s: %w", botID, err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			trade     domain.Trade
			tradeType string
		)
		err := rows.Scan(
			&trade.ID, &trade.BotID, &trade.Symbol, &tradeType,
			&trade.Price, &trade.Quantity, &trade.Total, &trade.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("trade store: scan row: %w", err)
		}
		trade.Type = domain.TradeType(tradeType)
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trade store: iterate rows: %w", err)
	}
	return trades, nil
}

// GetLastTimestamp returns the timestamp of the bot's most recent fill.
func (s *TradeStore) GetLastTimestamp(ctx context.Context, botID string) (time.Time, error) {
	const q = `SELECT ts FROM trades WHERE bot_id = $1 ORDER BY ts DESC LIMIT 1`
	var ts time.Time
	if err := s.pool.QueryRow(ctx, q, botID).Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, fmt.Errorf("trade store: last timestamp for %s: %w", botID, domain.ErrNotFound)
		}
		return time.Time{}, fmt.Errorf("trade store: last timestamp for %s: %w", botID, err)
	}
	return ts, nil
}

var _ domain.TradeStore = (*TradeStore)(nil)
