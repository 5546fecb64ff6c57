package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a RunStore backed by the given connection pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

const runSelectCols = `id, dataset_key, initial_capital, final_equity,
	total_realized_pnl, max_drawdown, tick_count, status, archive_key,
	started_at, finished_at`

func scanRun(row pgx.Row) (domain.Run, error) {
	var r domain.Run
	var status string
	err := row.Scan(
		&r.ID, &r.DatasetKey, &r.InitialCapital, &r.FinalEquity,
		&r.TotalRealizedPnL, &r.MaxDrawdown, &r.TickCount, &status,
		&r.ArchiveKey, &r.StartedAt, &r.FinishedAt,
	)
	if err != nil {
		return domain.Run{}, err
	}
	r.Status = domain.RunStatus(status)
	return r, nil
}

// Create inserts a new run.
func (s *RunStore) Create(ctx context.Context, run domain.Run) error {
	const query = `
		INSERT INTO runs (
			id, dataset_key, initial_capital, final_equity,
			total_realized_pnl, max_drawdown, tick_count, status,
			archive_key, started_at, finished_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`

	_, err := s.pool.Exec(ctx, query,
		run.ID, run.DatasetKey, run.InitialCapital, run.FinalEquity,
		run.TotalRealizedPnL, run.MaxDrawdown, run.TickCount, string(run.Status),
		run.ArchiveKey, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create run %s: %w", run.ID, err)
	}
	return nil
}

// Finish marks a run as finished and records its final figures.
func (s *RunStore) Finish(ctx context.Context, id string, finalEquity, totalRealizedPnL, maxDrawdown float64, tickCount int) error {
	const query = `
		UPDATE runs SET
			status             = 'finished',
			final_equity       = $2,
			total_realized_pnl = $3,
			max_drawdown       = $4,
			tick_count         = $5,
			finished_at        = NOW(),
			updated_at         = NOW()
		WHERE id = $1 AND status = 'active'`

	tag, err := s.pool.Exec(ctx, query, id, finalEquity, totalRealizedPnL, maxDrawdown, tickCount)
	if err != nil {
		return fmt.Errorf("postgres: finish run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetArchiveKey records the S3 object key of an archived run.
func (s *RunStore) SetArchiveKey(ctx context.Context, id string, key string) error {
	const query = `
		UPDATE runs SET
			status      = 'archived',
			archive_key = $2,
			updated_at  = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, key)
	if err != nil {
		return fmt.Errorf("postgres: set archive key for run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single run.
func (s *RunStore) GetByID(ctx context.Context, id string) (domain.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runSelectCols+` FROM runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Run{}, domain.ErrNotFound
		}
		return domain.Run{}, fmt.Errorf("postgres: get run %s: %w", id, err)
	}
	return r, nil
}

// List returns runs newest-first with pagination.
func (s *RunStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Run, error) {
	query := `SELECT ` + runSelectCols + ` FROM runs ORDER BY started_at DESC`
	args := []any{}
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
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Compile-time interface check.
var _ domain.RunStore = (*RunStore)(nil)
