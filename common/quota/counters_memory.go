package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryCounters implements Counters with a mutex-guarded map for
// single-node deployments and tests. TTLs follow the same rule as the
// Redis client: applied on the first write of a period, untouched by
// later increments.
type MemoryCounters struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*counterEntry
}

type counterEntry struct {
	value     int64
	expiresAt time.Time
}

// NewMemoryCounters creates an in-process counter set. A nil clock uses
// the wall clock.
func NewMemoryCounters(now func() time.Time) *MemoryCounters {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounters{
		now:     now,
		entries: make(map[string]*counterEntry),
	}
}

// IncrementWithTTL atomically increments, starting a fresh period if the
// previous one expired
func (m *MemoryCounters) IncrementWithTTL(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.entries[key]
	if !ok || now.After(e.expiresAt) {
		e = &counterEntry{expiresAt: now.Add(ttl)}
		m.entries[key] = e
	}
	e.value += amount
	return e.value, nil
}

// Count reads a counter; missing or expired counters read as zero
func (m *MemoryCounters) Count(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || m.now().After(e.expiresAt) {
		return 0, nil
	}
	return e.value, nil
}

// Reset deletes a counter
func (m *MemoryCounters) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}
