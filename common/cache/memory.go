package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/pixelbay/mediahost/common/metrics"
)

// MemoryCache is an in-process LRU cache with per-entry TTLs. Expired
// entries are dropped lazily on read and swept periodically so abandoned
// keys do not pin memory until eviction reaches them.
type MemoryCache struct {
	mu         sync.Mutex
	maxEntries int
	now        func() time.Time
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	metrics    *metrics.Metrics
	stop       chan struct{}
	stopOnce   sync.Once
}

type memEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates a cache holding at most maxEntries values. The
// sweep interval controls how often expired entries are reclaimed; zero
// disables the sweeper.
func NewMemoryCache(maxEntries int, sweepInterval time.Duration, m *metrics.Metrics) *MemoryCache {
	c := &MemoryCache{
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		metrics:    m,
		stop:       make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.sweep(sweepInterval)
	}
	return c
}

// WithClock overrides the wall clock, for tests
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

// Get returns the cached value and refreshes its recency
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.metrics.CacheMiss()
		return nil, false, nil
	}
	entry := el.Value.(*memEntry)
	if c.now().After(entry.expiresAt) {
		c.removeLocked(el)
		c.metrics.CacheMiss()
		return nil, false, nil
	}

	c.order.MoveToFront(el)
	c.metrics.CacheHit()
	return entry.value, true, nil
}

// Set stores a value, evicting least-recently-used entries over capacity
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*memEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return nil
	}

	el := c.order.PushFront(&memEntry{key: key, value: value, expiresAt: expiresAt})
	c.entries[key] = el

	for c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
	return nil
}

// Delete removes a key; deleting an absent key is not an error
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

// Len reports the current entry count
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close stops the background sweeper
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryCache) removeLocked(el *list.Element) {
	entry := el.Value.(*memEntry)
	c.order.Remove(el)
	delete(c.entries, entry.key)
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for el := c.order.Back(); el != nil; {
				prev := el.Prev()
				if entry := el.Value.(*memEntry); now.After(entry.expiresAt) {
					c.removeLocked(el)
				}
				el = prev
			}
			c.mu.Unlock()
		}
	}
}
