package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Client wraps redis.Client with the counter-store operations the
// limiter, quota engine and cache need. All mutation of contended keys
// goes through scripts or single commands; read-then-write sequences are
// not exposed.
type Client struct {
	redis  *redis.Client
	logger Logger
}

// NewClient creates a new counter-store client wrapper
func NewClient(redisClient *redis.Client, logger Logger) *Client {
	return &Client{
		redis:  redisClient,
		logger: logger,
	}
}

// GetUnderlying returns the underlying redis.Client for script execution
func (c *Client) GetUnderlying() *redis.Client {
	return c.redis
}

// Health verifies the store is reachable
func (c *Client) Health(ctx context.Context) error {
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("counter store unreachable: %w", err)
	}
	return nil
}

// Get retrieves a string value by key
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		c.logger.Debug("redis GET key not found", "key", key)
		return "", false, nil
	}
	if err != nil {
		c.logger.Error("redis GET failed", "key", key, "error", err)
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, true, nil
}

// GetBytes retrieves a binary value by key
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		c.logger.Error("redis GET failed", "key", key, "error", err)
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, true, nil
}

// SetWithExpiry sets a key with expiration
func (c *Client) SetWithExpiry(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	err := c.redis.Set(ctx, key, value, expiry).Err()
	if err != nil {
		c.logger.Error("redis SET failed", "key", key, "error", err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	c.logger.Debug("redis SET", "key", key, "expiry", expiry)
	return nil
}

// Delete removes keys
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	err := c.redis.Del(ctx, keys...).Err()
	if err != nil {
		c.logger.Error("redis DEL failed", "keys", keys, "error", err)
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	c.logger.Debug("redis DEL", "keys", keys)
	return nil
}

// Count reads an integer counter; a missing key reads as zero
func (c *Client) Count(ctx context.Context, key string) (int64, error) {
	val, err := c.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		c.logger.Error("redis GET counter failed", "key", key, "error", err)
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	return val, nil
}

// IncrementWithTTL atomically increments a counter, setting its TTL only
// when the key has none yet (first write of a period). Returns the new
// value. INCRBY and EXPIRE NX run in one pipeline round-trip.
func (c *Client) IncrementWithTTL(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	pipe := c.redis.TxPipeline()
	incr := pipe.IncrBy(ctx, key, amount)
	pipe.ExpireNX(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("redis INCRBY failed", "key", key, "error", err)
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}

	val, err := incr.Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	c.logger.Debug("redis INCRBY", "key", key, "amount", amount, "value", val)
	return val, nil
}

// Reset deletes a counter key
func (c *Client) Reset(ctx context.Context, key string) error {
	return c.Delete(ctx, key)
}

// ZAdd adds a member to a sorted set with the given score
func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	err := c.redis.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	if err != nil {
		c.logger.Error("redis ZADD failed", "key", key, "error", err)
		return fmt.Errorf("failed to zadd to %s: %w", key, err)
	}
	return nil
}

// ZCard returns the cardinality of a sorted set
func (c *Client) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := c.redis.ZCard(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis ZCARD failed", "key", key, "error", err)
		return 0, fmt.Errorf("failed to zcard %s: %w", key, err)
	}
	return n, nil
}

// ZRange returns members by rank, oldest scores first
func (c *Client) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members, err := c.redis.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		c.logger.Error("redis ZRANGE failed", "key", key, "error", err)
		return nil, fmt.Errorf("failed to zrange %s: %w", key, err)
	}
	return members, nil
}

// ZRem removes members from a sorted set
func (c *Client) ZRem(ctx context.Context, key string, members ...interface{}) error {
	err := c.redis.ZRem(ctx, key, members...).Err()
	if err != nil {
		c.logger.Error("redis ZREM failed", "key", key, "error", err)
		return fmt.Errorf("failed to zrem from %s: %w", key, err)
	}
	return nil
}

// ZRemRangeByScore removes members with scores in [min, max]
func (c *Client) ZRemRangeByScore(ctx context.Context, key, min, max string) error {
	err := c.redis.ZRemRangeByScore(ctx, key, min, max).Err()
	if err != nil {
		c.logger.Error("redis ZREMRANGEBYSCORE failed", "key", key, "error", err)
		return fmt.Errorf("failed to zremrangebyscore %s: %w", key, err)
	}
	return nil
}
