package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements CounterStore with a mutex-guarded map. It keeps
// the same arithmetic as the Redis scripts, so a single-node deployment
// (or a test) gets identical decisions. One mutex guards all keys; every
// operation is a few map lookups and integer math, so contention stays
// negligible next to the I/O the Redis store would do.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets map[string]*bucketState
	windows map[string]*windowState
}

type bucketState struct {
	tokens     int64
	lastRefill time.Time
	expiresAt  time.Time
}

type windowState struct {
	events []time.Time
}

// NewMemoryStore creates an in-process counter store. A nil clock uses
// the wall clock.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:     now,
		buckets: make(map[string]*bucketState),
		windows: make(map[string]*windowState),
	}
}

// ConsumeTokenBucket refills and consumes under the store mutex
func (s *MemoryStore) ConsumeTokenBucket(ctx context.Context, key string, capacity, refillPerMinute, cost int64, ttl time.Duration) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	b, ok := s.buckets[key]
	if !ok || now.After(b.expiresAt) {
		// Missing or expired bucket reads as full
		b = &bucketState{tokens: capacity, lastRefill: now}
		s.buckets[key] = b
	}

	elapsed := int64(now.Sub(b.lastRefill).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	refill := elapsed * refillPerMinute / 60
	if refill > 0 {
		b.tokens = min64(capacity, b.tokens+refill)
		b.lastRefill = now
	}

	allowed := false
	if b.tokens >= cost {
		b.tokens -= cost
		allowed = true
	}
	b.expiresAt = now.Add(ttl)

	return allowed, b.tokens, nil
}

// ConsumeSlidingWindow admits an event if fewer than limit fall inside
// the trailing window
func (s *MemoryStore) ConsumeSlidingWindow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-window)

	w, ok := s.windows[key]
	if !ok {
		w = &windowState{}
		s.windows[key] = w
	}

	kept := w.events[:0]
	for _, t := range w.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.events = kept

	if int64(len(w.events)) < limit {
		w.events = append(w.events, now)
		return true, int64(len(w.events)), nil
	}
	return false, int64(len(w.events)), nil
}

// Reset deletes a bucket or window
func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.buckets, key)
	delete(s.windows, key)
	return nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
