package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

// JournalStore implements domain.JournalStore: the append-only record of
// closed positions per run.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a JournalStore backed by the given connection pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Insert appends one closed position to the run's journal.
func (s *JournalStore) Insert(ctx context.Context, runID string, cp domain.ClosedPosition) error {
	const query = `
		INSERT INTO closed_positions (
			id, run_id, direction, instrument, is_hedge,
			entry_price, entry_index, entry_time,
			exit_price, exit_index,
			size_fraction, size_in_dollars, leverage, beta,
			realized_pnl, realized_pnl_percent, holding_period
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10,
			$11, $12, $13, $14,
			$15, $16, $17
		)`

	var beta *float64
	if cp.IsHedge {
		beta = &cp.Beta
	}

	_, err := s.pool.Exec(ctx, query,
		cp.ID, runID, string(cp.Direction), string(cp.Instrument), cp.IsHedge,
		cp.EntryPrice, cp.EntryIndex, cp.EntryTime,
		cp.ExitPrice, cp.ExitIndex,
		cp.Size, cp.SizeInDollars, cp.Leverage, beta,
		cp.RealizedPnL, cp.RealizedPnLPercent, cp.HoldingPeriod,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert closed position %s: %w", cp.ID, err)
	}
	return nil
}

// ListByRun returns a run's closed positions in exit order.
func (s *JournalStore) ListByRun(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.ClosedPosition, error) {
	query := `
		SELECT id, direction, instrument, is_hedge,
		       entry_price, entry_index, entry_time,
		       exit_price, exit_index,
		       size_fraction, size_in_dollars, leverage, beta,
		       realized_pnl, realized_pnl_percent, holding_period
		FROM closed_positions
		WHERE run_id = $1
		ORDER BY exit_index ASC, created_at ASC`
	args := []any{runID}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []domain.ClosedPosition
	for rows.Next() {
		var cp domain.ClosedPosition
		var direction, instrument string
		var beta *float64
		if err := rows.Scan(
			&cp.ID, &direction, &instrument, &cp.IsHedge,
			&cp.EntryPrice, &cp.EntryIndex, &cp.EntryTime,
			&cp.ExitPrice, &cp.ExitIndex,
			&cp.Size, &cp.SizeInDollars, &cp.Leverage, &beta,
			&cp.RealizedPnL, &cp.RealizedPnLPercent, &cp.HoldingPeriod,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan closed position: %w", err)
		}
		cp.Direction = domain.Direction(direction)
		cp.Instrument = domain.Instrument(instrument)
		if beta != nil {
			cp.Beta = *beta
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.JournalStore = (*JournalStore)(nil)
