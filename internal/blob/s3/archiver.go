package s3blob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

// tickPageSize bounds each tick query while draining a run's history.
const tickPageSize = 5000

// RunArchive is the document uploaded for a finished run: the run header,
// its full tick series, and its closed-position journal.
type RunArchive struct {
	Run        domain.Run              `json:"run"`
	Ticks      []domain.BacktestTick   `json:"ticks"`
	Journal    []domain.ClosedPosition `json:"journal"`
	ArchivedAt time.Time               `json:"archivedAt"`
}

// Archiver drains a finished run from the primary stores into a single S3
// object and records the archive key on the run. The database rows are left
// in place; pruning them is a separate, explicit step.
type Archiver struct {
	writer  domain.BlobWriter
	runs    domain.RunStore
	ticks   domain.TickStore
	journal domain.JournalStore
	logger  *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, runs domain.RunStore, ticks domain.TickStore, journal domain.JournalStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  writer,
		runs:    runs,
		ticks:   ticks,
		journal: journal,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// archiveKey builds the object key for a run archive, partitioned by the
// month the run started.
//
//	archive/runs/2026-08/<runID>.json
func archiveKey(run domain.Run) string {
	return fmt.Sprintf("archive/runs/%s/%s.json", run.StartedAt.Format("2006-01"), run.ID)
}

// ArchiveRun uploads one finished run and marks it archived. Active runs are
// rejected; already-archived runs are re-uploaded idempotently.
func (a *Archiver) ArchiveRun(ctx context.Context, runID string) (string, error) {
	run, err := a.runs.GetByID(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s: %w", runID, err)
	}
	if run.Status == domain.RunStatusActive {
		return "", fmt.Errorf("s3blob: archive run %s: run is still active", runID)
	}

	ticks, err := a.drainTicks(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s: %w", runID, err)
	}

	journal, err := a.journal.ListByRun(ctx, runID, domain.ListOpts{})
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s: list journal: %w", runID, err)
	}

	doc := RunArchive{
		Run:        run,
		Ticks:      ticks,
		Journal:    journal,
		ArchivedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s: marshal: %w", runID, err)
	}

	key := archiveKey(run)
	if err := a.writer.Put(ctx, key, "application/json", data); err != nil {
		return "", fmt.Errorf("s3blob: archive run %s: %w", runID, err)
	}
	if err := a.runs.SetArchiveKey(ctx, runID, key); err != nil {
		return "", fmt.Errorf("s3blob: archive run %s: %w", runID, err)
	}

	a.logger.Info("run archived",
		slog.String("run_id", runID),
		slog.String("key", key),
		slog.Int("ticks", len(ticks)),
		slog.Int("closed_positions", len(journal)),
	)
	return key, nil
}

// ArchiveFinished archives every run currently in the finished state and
// returns the number archived. Failures on individual runs are logged and
// skipped so one bad run does not block the sweep.
func (a *Archiver) ArchiveFinished(ctx context.Context) (int, error) {
	runs, err := a.runs.List(ctx, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("s3blob: list runs for archival: %w", err)
	}

	archived := 0
	for _, run := range runs {
		if run.Status != domain.RunStatusFinished {
			continue
		}
		if _, err := a.ArchiveRun(ctx, run.ID); err != nil {
			a.logger.Error("archive failed",
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		archived++
	}
	return archived, nil
}

func (a *Archiver) drainTicks(ctx context.Context, runID string) ([]domain.BacktestTick, error) {
	var all []domain.BacktestTick
	since := 0
	for {
		page, err := a.ticks.ListByRun(ctx, runID, since, tickPageSize)
		if err != nil {
			return nil, fmt.Errorf("list ticks from %d: %w", since, err)
		}
		all = append(all, page...)
		if len(page) < tickPageSize {
			return all, nil
		}
		since = page[len(page)-1].Index + 1
	}
}
