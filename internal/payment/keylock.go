package payment

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyLocker guards an idempotency key while the first request carrying it
// is still running, so a retry arriving mid-flight is rejected instead of
// charging twice.
type KeyLocker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisKeyLocker implements KeyLocker with SET NX and a TTL.
type RedisKeyLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewKeyLocker returns a Redis-backed locker, or a no-op locker when rdb is
// nil.  Without Redis the database unique constraint remains the only guard.
func NewKeyLocker(rdb *redis.Client, ttl time.Duration) KeyLocker {
	if rdb == nil {
		return NoopKeyLocker{}
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisKeyLocker{rdb: rdb, ttl: ttl, prefix: "idem"}
}

func (l *RedisKeyLocker) Acquire(ctx context.Context, key string) (bool, error) {
	return l.rdb.SetNX(ctx, l.prefix+":"+key, "1", l.ttl).Result()
}

func (l *RedisKeyLocker) Release(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, l.prefix+":"+key).Err()
}

// NoopKeyLocker always grants the lock.
type NoopKeyLocker struct{}

func (NoopKeyLocker) Acquire(context.Context, string) (bool, error) { return true, nil }
func (NoopKeyLocker) Release(context.Context, string) error         { return nil }
