package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinicore/clinic-platform/pkg/logging"
)

// ErrNotAcquired is returned when the lock stays held past the retry budget.
var ErrNotAcquired = errors.New("lock not acquired")

const (
	acquireAttempts = 4
	acquireBackoff  = 50 * time.Millisecond
)

// releaseScript deletes the key only when the caller still owns it, so an
// expired-and-reacquired lock is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker provides Redis-backed advisory locks keyed by slot or appointment.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewLocker builds a locker. ttl caps how long an orphaned lock can block others.
func NewLocker(client *redis.Client, ttl time.Duration, logger *logging.Logger) *Locker {
	if client == nil {
		panic("locking: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{client: client, ttl: ttl, logger: logger}
}

// Acquire takes the lock, retrying briefly, and returns a release func.
// Callers release with a non-cancelled context so a finished request still
// frees the lock.
func (l *Locker) Acquire(ctx context.Context, key string) (func(context.Context), error) {
	value := uuid.NewString()
	redisKey := "lock:" + key

	for attempt := 0; attempt < acquireAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(acquireBackoff << (attempt - 1)):
			}
		}
		ok, err := l.client.SetNX(ctx, redisKey, value, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("locking: setnx %s: %w", key, err)
		}
		if ok {
			return func(releaseCtx context.Context) {
				if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, value).Err(); err != nil && !errors.Is(err, redis.Nil) {
					l.logger.Warn("lock release failed", "key", key, "error", err)
				}
			}, nil
		}
	}

	l.logger.Debug("lock contended", "key", key)
	return nil, fmt.Errorf("locking: %w: %s", ErrNotAcquired, key)
}
