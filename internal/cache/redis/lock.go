package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

// unlockLua deletes a lock key only when its value matches the holder's
// token, so one holder cannot release another's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// SessionLock implements domain.SessionLock using SETNX with a TTL. The
// engine requires serialized commands per run; when several API replicas
// share one Redis, this lock makes one of them the writer.
type SessionLock struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewSessionLock creates a SessionLock backed by the given Client.
func NewSessionLock(c *Client) *SessionLock {
	return &SessionLock{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func sessionLockKey(runID string) string {
	return "lock:session:" + runID
}

// Acquire obtains the writer lock for a run. On success it returns a release
// function that is safe to call more than once. It returns domain.ErrLockHeld
// when another holder owns the lock.
func (sl *SessionLock) Acquire(ctx context.Context, runID string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	key := sessionLockKey(runID)

	ok, err := sl.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire session lock %s: %w", runID, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true

		// Background context so release works even after the caller's
		// context is cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sl.unlockSc.Run(unlockCtx, sl.rdb, []string{key}, token).Err()
	}
	return release, nil
}

// Compile-time interface check.
var _ domain.SessionLock = (*SessionLock)(nil)
