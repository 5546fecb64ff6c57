package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

// TickStore implements domain.TickStore. Ticks arrive in batches from the
// engine loop, so writes go through pgx's CopyFrom fast path.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore creates a TickStore backed by the given connection pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

var tickColumns = []string{
	"run_id", "tick_index", "ts", "price",
	"portfolio_value", "accumulated_return", "road_height",
	"rsi", "atr", "volatility", "trend", "drawdown", "regime",
}

// InsertBatch bulk-inserts a batch of ticks for a run.
func (s *TickStore) InsertBatch(ctx context.Context, runID string, ticks []domain.BacktestTick) error {
	if len(ticks) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(ticks))
	for _, t := range ticks {
		rows = append(rows, []any{
			runID, t.Index, t.Timestamp, t.Price,
			t.PortfolioValue, t.AccumulatedReturn, t.RoadHeight,
			t.Indicators.RSI, t.Indicators.ATR, t.Indicators.Volatility,
			t.Indicators.Trend, t.Indicators.Drawdown, string(t.Regime),
		})
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"ticks"},
		tickColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert %d ticks for run %s: %w", len(ticks), runID, err)
	}
	return nil
}

// ListByRun returns a run's ticks from sinceIndex onward in index order.
func (s *TickStore) ListByRun(ctx context.Context, runID string, sinceIndex int, limit int) ([]domain.BacktestTick, error) {
	query := `
		SELECT tick_index, ts, price,
		       portfolio_value, accumulated_return, road_height,
		       rsi, atr, volatility, trend, drawdown, regime
		FROM ticks
		WHERE run_id = $1 AND tick_index >= $2
		ORDER BY tick_index ASC`
	args := []any{runID, sinceIndex}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ticks for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []domain.BacktestTick
	for rows.Next() {
		var t domain.BacktestTick
		var regime string
		if err := rows.Scan(
			&t.Index, &t.Timestamp, &t.Price,
			&t.PortfolioValue, &t.AccumulatedReturn, &t.RoadHeight,
			&t.Indicators.RSI, &t.Indicators.ATR, &t.Indicators.Volatility,
			&t.Indicators.Trend, &t.Indicators.Drawdown, &regime,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan tick: %w", err)
		}
		t.Regime = domain.Regime(regime)
		t.Indicators.Regime = t.Regime
		out = append(out, t)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.TickStore = (*TickStore)(nil)
