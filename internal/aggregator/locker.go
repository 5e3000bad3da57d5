package aggregator

import (
	"context"
	"errors"
	"sync"
	"time"

	"draftlab/analytics/internal/cache"
)

// Locker serializes aggregation runs. Acquire fails with ErrRunInProgress
// when another run holds the lock.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

type mutexLocker struct {
	mu sync.Mutex
}

func (l *mutexLocker) Acquire(ctx context.Context) (func(context.Context) error, error) {
	if !l.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	return func(context.Context) error {
		l.mu.Unlock()
		return nil
	}, nil
}

// DefaultLockTTL bounds how long a crashed holder can block other runs
const DefaultLockTTL = 2 * time.Hour

// RedisLocker serializes runs across processes with a Redis SET NX key
type RedisLocker struct {
	cache *cache.RedisCache
	key   string
	ttl   time.Duration
}

// NewRedisLocker creates a lock on key; ttl <= 0 uses DefaultLockTTL
func NewRedisLocker(c *cache.RedisCache, key string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{cache: c, key: key, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context) (func(context.Context) error, error) {
	release, err := l.cache.Lock(ctx, l.key, l.ttl)
	if errors.Is(err, cache.ErrLocked) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, err
	}
	return release, nil
}
