package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kripteks/tradecore/internal/domain"
)

const backtestCols = `id, symbol, strategy_id, interval, start_time, end_time,
	initial_balance, final_balance,
	total_trades, winning_trades, losing_trades, total_pnl, total_pnl_percent,
	win_rate, max_drawdown, total_commission_paid,
	sharpe_ratio, sortino_ratio, profit_factor, average_win, average_loss,
	max_consecutive_wins, max_consecutive_losses,
	is_favorite, notes, created_at`

// BacktestStore persists the scalar outcome of completed runs. Trade lists
// and candle snapshots are archived to blob storage, not here.
type BacktestStore struct {
	pool *pgxpool.Pool
}

// NewBacktestStore creates a BacktestStore backed by the given pool.
func NewBacktestStore(pool *pgxpool.Pool) *BacktestStore {
	return &BacktestStore{pool: pool}
}

func (s *BacktestStore) Save(ctx context.Context, result domain.BacktestResult) error {
	const q = `
		INSERT INTO backtests (` + backtestCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`
	_, err := s.pool.Exec(ctx, q,
		result.ID, result.Symbol, result.StrategyID, string(result.Interval),
		result.Start, result.End,
		result.InitialBalance, result.FinalBalance,
		result.TotalTrades, result.WinningTrades, result.LosingTrades,
		result.TotalPnl, result.TotalPnlPercent,
		result.WinRate, result.MaxDrawdown, result.TotalCommissionPaid,
		result.SharpeRatio, result.SortinoRatio, result.ProfitFactor,
		result.AverageWin, result.AverageLoss,
		result.MaxConsecutiveWins, result.MaxConsecutiveLosses,
		result.IsFavorite, result.Notes, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("backtest store: save %s: %w", result.ID, err)
	}
	return nil
}

func (s *BacktestStore) GetByID(ctx context.Context, id string) (domain.BacktestResult, error) {
	const q = `SELECT ` + backtestCols + ` FROM backtests WHERE id = $1`
	result, err := scanBacktest(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BacktestResult{}, fmt.Errorf("backtest store: get %s: %w", id, domain.ErrNotFound)
		}
		return domain.BacktestResult{}, fmt.Errorf("backtest store: get %s: %w", id, err)
	}
	return result, nil
}

func (s *BacktestStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.BacktestResult, error) {
	q := `SELECT ` + backtestCols + ` FROM backtests`
	args := []any{}
	where := ""
	if opts.Since != nil {
		args = append(args, *opts.Since)
		where = fmt.Sprintf(" WHERE created_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		if where == "" {
			where = fmt.Sprintf(" WHERE created_at < $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND created_at < $%d", len(args))
		}
	}
	q += where + " ORDER BY created_at DESC"
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
		return nil, fmt.Errorf("backtest store: list: %w", err)
	}
	defer rows.Close()

	var results []domain.BacktestResult
	for rows.Next() {
		result, err := scanBacktest(rows)
		if err != nil {
			return nil, fmt.Errorf("backtest store: scan row: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("backtest store: iterate rows: %w", err)
	}
	return results, nil
}

func (s *BacktestStore) SetFavorite(ctx context.Context, id string, favorite bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE backtests SET is_favorite = $2 WHERE id = $1`, id, favorite)
	if err != nil {
		return fmt.Errorf("backtest store: set favorite %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("backtest store: set favorite %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *BacktestStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM backtests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("backtest store: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("backtest store: delete %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanBacktest(row pgx.Row) (domain.BacktestResult, error) {
	var (
		result   domain.BacktestResult
		interval string
	)
	err := row.Scan(
		&result.ID, &result.Symbol, &result.StrategyID, &interval,
		&result.Start, &result.End,
		&result.InitialBalance, &result.FinalBalance,
		&result.TotalTrades, &result.WinningTrades, &result.LosingTrades,
		&result.TotalPnl, &result.TotalPnlPercent,
		&result.WinRate, &result.MaxDrawdown, &result.TotalCommissionPaid,
		&result.SharpeRatio, &result.SortinoRatio, &result.ProfitFactor,
		&result.AverageWin, &result.AverageLoss,
		&result.MaxConsecutiveWins, &result.MaxConsecutiveLosses,
		&result.IsFavorite, &result.Notes, &result.CreatedAt,
	)
	if err != nil {
		return domain.BacktestResult{}, err
	}
	result.Interval = domain.Interval(interval)
	return result, nil
}

var _ domain.BacktestStore = (*BacktestStore)(nil)
