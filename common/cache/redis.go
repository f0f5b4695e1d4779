package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/pixelbay/mediahost/common/metrics"
)

// Store is the counter-store surface the Redis cache needs. The common
// redis client satisfies it.
type Store interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetWithExpiry(ctx context.Context, key string, value []byte, expiry time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZCard(ctx context.Context, key string) (int64, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRem(ctx context.Context, key string, members ...interface{}) error
}

// RedisCache stores entries as plain keys with TTLs and tracks recency in
// a sorted set scored by last-access time. Redis expires entries on its
// own; the sorted set exists only to pick eviction victims when the entry
// budget is exceeded, so a stale recency record is harmless.
type RedisCache struct {
	store      Store
	keyPrefix  string
	maxEntries int64
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewRedisCache creates a shared cache under the given key prefix
func NewRedisCache(store Store, keyPrefix string, maxEntries int64, m *metrics.Metrics) *RedisCache {
	return &RedisCache{
		store:      store,
		keyPrefix:  keyPrefix,
		maxEntries: maxEntries,
		metrics:    m,
		now:        time.Now,
	}
}

// Get returns the cached value and touches its recency score. The hit is
// counted as soon as the value is found; the recency update is
// best-effort and never turns a hit into anything else.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	full := c.entryKey(key)
	val, found, err := c.store.GetBytes(ctx, full)
	if err != nil {
		return nil, false, err
	}
	if !found {
		c.metrics.CacheMiss()
		return nil, false, nil
	}

	c.metrics.CacheHit()
	_ = c.store.ZAdd(ctx, c.lruKey(), float64(c.now().UnixNano()), full)
	return val, true, nil
}

// Set stores a value with TTL and evicts the least recently used entries
// beyond the configured budget
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	full := c.entryKey(key)
	if err := c.store.SetWithExpiry(ctx, full, value, ttl); err != nil {
		return err
	}
	if err := c.store.ZAdd(ctx, c.lruKey(), float64(c.now().UnixNano()), full); err != nil {
		return err
	}
	return c.evict(ctx)
}

// Delete removes a key and its recency record
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	full := c.entryKey(key)
	if err := c.store.Delete(ctx, full); err != nil {
		return err
	}
	return c.store.ZRem(ctx, c.lruKey(), full)
}

// Close is a no-op; the underlying client is shared
func (c *RedisCache) Close() error {
	return nil
}

func (c *RedisCache) evict(ctx context.Context) error {
	if c.maxEntries <= 0 {
		return nil
	}
	count, err := c.store.ZCard(ctx, c.lruKey())
	if err != nil {
		return err
	}
	excess := count - c.maxEntries
	if excess <= 0 {
		return nil
	}

	victims, err := c.store.ZRange(ctx, c.lruKey(), 0, excess-1)
	if err != nil {
		return err
	}
	if len(victims) == 0 {
		return nil
	}

	if err := c.store.Delete(ctx, victims...); err != nil {
		return err
	}
	members := make([]interface{}, len(victims))
	for i, v := range victims {
		members[i] = v
	}
	return c.store.ZRem(ctx, c.lruKey(), members...)
}

func (c *RedisCache) entryKey(key string) string {
	return fmt.Sprintf("%s:%s", c.keyPrefix, key)
}

func (c *RedisCache) lruKey() string {
	return fmt.Sprintf("%s:lru", c.keyPrefix)
}
