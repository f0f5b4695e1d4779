// Package cache provides the TTL + LRU byte cache used for transform
// results and hot metadata. Two implementations share one interface: an
// in-process cache for single-node deployments and a Redis-backed cache
// whose recency ordering survives restarts.
package cache

import (
	"context"
	"time"
)

// Cache is a bounded byte cache with per-entry TTLs. Get reports a miss
// for expired or evicted entries; Set on an existing key replaces the
// value and restarts the TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
