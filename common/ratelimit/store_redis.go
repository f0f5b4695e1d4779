package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed token_bucket.lua
var tokenBucketScript string

//go:embed sliding_window.lua
var slidingWindowScript string

// RedisStore implements CounterStore against a shared Redis. Both
// operations run as server-side scripts so the read-compute-write cycle
// is atomic with respect to every other node and goroutine.
type RedisStore struct {
	redis         *redis.Client
	tokenBucket   *redis.Script
	slidingWindow *redis.Script
	now           func() time.Time
}

// NewRedisStore creates a Redis-backed counter store with embedded scripts
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{
		redis:         redisClient,
		tokenBucket:   redis.NewScript(tokenBucketScript),
		slidingWindow: redis.NewScript(slidingWindowScript),
		now:           time.Now,
	}
}

// WithClock overrides the wall clock, for tests
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

// ConsumeTokenBucket executes the refill-and-consume script
func (s *RedisStore) ConsumeTokenBucket(ctx context.Context, key string, capacity, refillPerMinute, cost int64, ttl time.Duration) (bool, int64, error) {
	result, err := s.tokenBucket.Run(ctx, s.redis, []string{key},
		capacity, refillPerMinute, s.now().Unix(), cost, int64(ttl.Seconds())).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: token bucket script: %v", ErrStoreUnavailable, err)
	}

	allowed, remaining, err := parsePair(result)
	if err != nil {
		return false, 0, fmt.Errorf("token bucket script: %w", err)
	}
	return allowed, remaining, nil
}

// ConsumeSlidingWindow executes the sliding-window admission script
func (s *RedisStore) ConsumeSlidingWindow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	now := s.now().Unix()
	windowStart := now - int64(window.Seconds())

	result, err := s.slidingWindow.Run(ctx, s.redis, []string{key},
		now, windowStart, limit, int64(window.Seconds())).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: sliding window script: %v", ErrStoreUnavailable, err)
	}

	allowed, count, err := parsePair(result)
	if err != nil {
		return false, 0, fmt.Errorf("sliding window script: %w", err)
	}
	return allowed, count, nil
}

// Reset deletes the bucket; a missing bucket is equivalent to a full one
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: reset %s: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// parsePair decodes the {flag, value} array both scripts return
func parsePair(result interface{}) (bool, int64, error) {
	arr, ok := result.([]interface{})
	if !ok || len(arr) != 2 {
		return false, 0, fmt.Errorf("unexpected script result format: %v", result)
	}
	flag, ok := arr[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected script result format: %v", result)
	}
	value, ok := arr[1].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected script result format: %v", result)
	}
	return flag == 1, value, nil
}
