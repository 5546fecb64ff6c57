package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

// snapshotTTL bounds how long a stale snapshot survives after a run stops
// advancing. The service refreshes the key on every tick batch.
const snapshotTTL = 30 * time.Minute

// SnapshotCache implements domain.SnapshotCache using a Redis hash per run.
//
// Key schema:
//
//	snapshot:{runID} - hash with fields "state" (JSON portfolio) and "tick"
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func snapshotKey(runID string) string { return "snapshot:" + runID }

// SetSnapshot stores the latest portfolio state for a run.
func (sc *SnapshotCache) SetSnapshot(ctx context.Context, runID string, state domain.PortfolioState, tickIndex int) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot for run %s: %w", runID, err)
	}

	key := snapshotKey(runID)
	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "state", data, "tick", tickIndex)
	pipe.Expire(ctx, key, snapshotTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot for run %s: %w", runID, err)
	}
	return nil
}

// GetSnapshot retrieves the latest cached portfolio state and tick index for
// a run. It returns domain.ErrNotFound when no snapshot exists.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context, runID string) (domain.PortfolioState, int, error) {
	vals, err := sc.rdb.HMGet(ctx, snapshotKey(runID), "state", "tick").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PortfolioState{}, 0, domain.ErrNotFound
		}
		return domain.PortfolioState{}, 0, fmt.Errorf("redis: get snapshot for run %s: %w", runID, err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return domain.PortfolioState{}, 0, domain.ErrNotFound
	}

	raw, ok := vals[0].(string)
	if !ok {
		return domain.PortfolioState{}, 0, fmt.Errorf("redis: snapshot for run %s has unexpected type", runID)
	}

	var state domain.PortfolioState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return domain.PortfolioState{}, 0, fmt.Errorf("redis: unmarshal snapshot for run %s: %w", runID, err)
	}

	tickIndex := 0
	if s, ok := vals[1].(string); ok {
		if n, err := strconv.Atoi(s); err == nil {
			tickIndex = n
		}
	}
	return state, tickIndex, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
