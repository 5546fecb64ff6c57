package domain

import (
	"context"
	"time"
)

// RunStatus tracks the lifecycle of a simulation run.
type RunStatus string

const (
	RunStatusActive   RunStatus = "active"
	RunStatusFinished RunStatus = "finished"
	RunStatusArchived RunStatus = "archived"
)

// Run is one recorded simulation session: a single timeline over a single
// dataset, from reset to the last processed tick.
type Run struct {
	ID               string
	DatasetKey       string
	InitialCapital   float64
	FinalEquity      float64
	TotalRealizedPnL float64
	MaxDrawdown      float64
	TickCount        int
	Status           RunStatus
	StartedAt        time.Time
	FinishedAt       *time.Time
	ArchiveKey       *string // S3 object key once archived
}

// ListOpts carries pagination for history queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// RunStore persists simulation runs.
type RunStore interface {
	Create(ctx context.Context, run Run) error
	Finish(ctx context.Context, id string, finalEquity, totalRealizedPnL, maxDrawdown float64, tickCount int) error
	SetArchiveKey(ctx context.Context, id string, key string) error
	GetByID(ctx context.Context, id string) (Run, error)
	List(ctx context.Context, opts ListOpts) ([]Run, error)
}

// JournalStore persists the closed-position journal of a run.
type JournalStore interface {
	Insert(ctx context.Context, runID string, cp ClosedPosition) error
	ListByRun(ctx context.Context, runID string, opts ListOpts) ([]ClosedPosition, error)
}

// TickStore persists per-tick records for later replay and archival.
type TickStore interface {
	InsertBatch(ctx context.Context, runID string, ticks []BacktestTick) error
	ListByRun(ctx context.Context, runID string, sinceIndex int, limit int) ([]BacktestTick, error)
}

// SnapshotCache holds the latest portfolio snapshot per run for cheap reads
// by the API layer.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, runID string, state PortfolioState, tickIndex int) error
	GetSnapshot(ctx context.Context, runID string) (PortfolioState, int, error)
}

// StreamMessage is one entry read back from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus is the pub/sub fabric between the simulation service and the
// WebSocket hub that feeds the rendering client.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter bounds request rates per key. Used by the HTTP middleware to
// cap command traffic per client.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SessionLock guards single-writer access to a run's state (the engine
// assumes serialized commands; see the concurrency notes in the README).
type SessionLock interface {
	Acquire(ctx context.Context, runID string, ttl time.Duration) (release func(), err error)
}

// BlobWriter stores an object and returns nothing; BlobReader fetches one.
// Implemented by the S3 package for dataset input and run archival.
type BlobWriter interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
}

// BlobReader reads an object in full.
type BlobReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}
