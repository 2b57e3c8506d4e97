package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kripteks/tradecore/internal/domain"
)

const botCols = `id, symbol, strategy_id, interval, amount, params, order_type,
	status, entry_price, quantity, current_pnl, current_pnl_percent,
	take_profit_percent, stop_loss_percent,
	is_trailing_stop, trailing_stop_distance, max_price_reached,
	current_dca_step, continuous, created_at, updated_at`

// BotStore persists live bot state in the bots table.
type BotStore struct {
	pool *pgxpool.Pool
}

// NewBotStore creates a BotStore backed by the given pool.
func NewBotStore(pool *pgxpool.Pool) *BotStore {
	return &BotStore{pool: pool}
}

func (s *BotStore) Create(ctx context.Context, bot domain.Bot) error {
	const q = `
		INSERT INTO bots (` + botCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21)`
	_, err := s.pool.Exec(ctx, q,
		bot.ID, bot.Symbol, bot.StrategyID, string(bot.Interval), bot.Amount,
		bot.Params, string(bot.OrderType),
		string(bot.Status), bot.EntryPrice, bot.Quantity, bot.CurrentPnl,
		bot.CurrentPnlPercent,
		bot.TakeProfitPercent, bot.StopLossPercent,
		bot.IsTrailingStop, bot.TrailingStopDistance, bot.MaxPriceReached,
		bot.CurrentDcaStep, bot.Continuous, bot.CreatedAt, bot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("bot store: create %s: %w", bot.ID, err)
	}
	return nil
}

func (s *BotStore) Update(ctx context.Context, bot domain.Bot) error {
	const q = `
		UPDATE bots SET
			symbol = $2, strategy_id = $3, interval = $4, amount = $5,
			params = $6, order_type = $7, status = $8, entry_price = $9,
			quantity = $10, current_pnl = $11, current_pnl_percent = $12,
			take_profit_percent = $13, stop_loss_percent = $14,
			is_trailing_stop = $15, trailing_stop_distance = $16,
			max_price_reached = $17, current_dca_step = $18, continuous = $19,
			updated_at = $20
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q,
		bot.ID, bot.Symbol, bot.StrategyID, string(bot.Interval), bot.Amount,
		bot.Params, string(bot.OrderType), string(bot.Status), bot.EntryPrice,
		bot.Quantity, bot.CurrentPnl, bot.CurrentPnlPercent,
		bot.TakeProfitPercent, bot.StopLossPercent,
		bot.IsTrailingStop, bot.TrailingStopDistance,
		bot.MaxPriceReached, bot.CurrentDcaStep, bot.Continuous,
		bot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("bot store: update %s: %w", bot.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bot store: update %s: %w", bot.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *BotStore) GetByID(ctx context.Context, id string) (domain.Bot, error) {
	const q = `SELECT ` + botCols + ` FROM bots WHERE id = $1`
	bot, err := scanBot(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bot{}, fmt.Errorf("bot store: get %s: %w", id, domain.ErrNotFound)
		}
		return domain.Bot{}, fmt.Errorf("bot store: get %s: %w", id, err)
	}
	return bot, nil
}

// ListActive returns bots the engine should tick: waiting for entry or
// holding a position.
func (s *BotStore) ListActive(ctx context.Context) ([]domain.Bot, error) {
	const q = `
		SELECT ` + botCols + ` FROM bots
		WHERE status IN ($1, $2)
		ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, q,
		string(domain.BotWaitingForEntry), string(domain.BotRunning))
	if err != nil {
		return nil, fmt.Errorf("bot store: list active: %w", err)
	}
	defer rows.Close()
	return scanBotRows(rows)
}

func (s *BotStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Bot, error) {
	q := `SELECT ` + botCols + ` FROM bots ORDER BY created_at DESC`
	args := []any{}
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
		return nil, fmt.Errorf("bot store: list: %w", err)
	}
	defer rows.Close()
	return scanBotRows(rows)
}

func (s *BotStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("bot store: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bot store: delete %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanBot(row pgx.Row) (domain.Bot, error) {
	var (
		bot       domain.Bot
		interval  string
		orderType string
		status    string
	)
	err := row.Scan(
		&bot.ID, &bot.Symbol, &bot.StrategyID, &interval, &bot.Amount,
		&bot.Params, &orderType,
		&status, &bot.EntryPrice, &bot.Quantity, &bot.CurrentPnl,
		&bot.CurrentPnlPercent,
		&bot.TakeProfitPercent, &bot.StopLossPercent,
		&bot.IsTrailingStop, &bot.TrailingStopDistance, &bot.MaxPriceReached,
		&bot.CurrentDcaStep, &bot.Continuous, &bot.CreatedAt, &bot.UpdatedAt,
	)
	if err != nil {
		return domain.Bot{}, err
	}
	bot.Interval = domain.Interval(interval)
	bot.OrderType = domain.OrderType(orderType)
	bot.Status = domain.BotStatus(status)
	return bot, nil
}

func scanBotRows(rows pgx.Rows) ([]domain.Bot, error) {
	var bots []domain.Bot
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("bot store: scan row: %w", err)
		}
		bots = append(bots, bot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bot store: iterate rows: %w", err)
	}
	return bots, nil
}

var _ domain.BotStore = (*BotStore)(nil)
