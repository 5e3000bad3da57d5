package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"draftlab/analytics/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrMiss is returned by GetJSON when the key does not exist
var ErrMiss = errors.New("cache miss")

// ErrLocked is returned by Lock when another holder owns the key
var ErrLocked = errors.New("lock is held")

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache is a JSON cache and lock service backed by Redis
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("Successfully connected to redis")

	return &RedisCache{client: client}, nil
}

// GetJSON decodes the value at key into dest
func (r *RedisCache) GetJSON(ctx context.Context, key string, dest any) error {
	start := time.Now()
	defer func() { metrics.RecordCacheOperation("get", time.Since(start).Seconds()) }()

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RecordCacheMiss("redis")
			return ErrMiss
		}
		return fmt.Errorf("failed to get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	metrics.RecordCacheHit("redis")
	return nil
}

// SetJSON encodes value and stores it with ttl
func (r *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	start := time.Now()
	defer func() { metrics.RecordCacheOperation("set", time.Since(start).Seconds()) }()

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys
func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix
func (r *RedisCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var removed int
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", iter.Val(), err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan %s: %w", prefix, err)
	}
	return removed, nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes key with SET NX for ttl. The returned func releases it only if
// this holder still owns it.
func (r *RedisCache) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		if err := unlockScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}, nil
}

// Health pings redis
func (r *RedisCache) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// CacheKey builds a deterministic key from prefix and filters
func CacheKey(prefix string, filters map[string]any) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(prefix)
	for _, k := range keys {
		raw, _ := json.Marshal(filters[k])
		sb.WriteString(":")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.Write(raw)
	}
	return sb.String()
}
