package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTickLockTTL bounds how long a crashed holder keeps the lock.
const DefaultTickLockTTL = 10 * time.Minute

// releaseScript deletes the lock only if it is still owned by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockClient is the subset of go-redis the lock needs. *redis.Client
// satisfies it.
type LockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// TickLock is a distributed try-lock for periodic jobs. A tick that cannot
// take the lock is skipped by the caller.
type TickLock struct {
	rdb    LockClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewTickLock creates a TickLock. A non-positive ttl uses DefaultTickLockTTL.
func NewTickLock(rdb LockClient, ttl time.Duration, logger *slog.Logger) *TickLock {
	if ttl <= 0 {
		ttl = DefaultTickLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TickLock{rdb: rdb, ttl: ttl, logger: logger}
}

// TryAcquire takes the lock for name. When acquired is false another holder
// owns it and release is a no-op.
func (l *TickLock) TryAcquire(ctx context.Context, name string) (release func(), acquired bool, err error) {
	if name == "" {
		return func() {}, false, ErrKeyEmpty
	}

	key := LockKey(name)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return func() {}, false, nil
	}

	release = func() {
		// Release must run even when the tick context was cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := releaseScript.Run(releaseCtx, l.rdb, []string{key}, token).Err(); err != nil {
			l.logger.Warn("failed to release tick lock", "key", key, "error", err)
		}
	}
	return release, true, nil
}
