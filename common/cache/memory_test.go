package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(maxEntries int) (*MemoryCache, *fakeClock) {
	clock := newFakeClock()
	c := NewMemoryCache(maxEntries, 0, nil).WithClock(clock.Now)
	return c, clock
}

func TestMemoryCache_SetGet(t *testing.T) {
	c, _ := newTestCache(10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	val, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), val)

	_, found, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c, clock := newTestCache(10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	clock.Advance(61 * time.Second)

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found, "expired entries read as misses")
}

func TestMemoryCache_SetRestartsTTL(t *testing.T) {
	c, clock := newTestCache(10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v1"), time.Minute))
	clock.Advance(45 * time.Second)
	require.NoError(t, c.Set(ctx, "k", []byte("v2"), time.Minute))
	clock.Advance(45 * time.Second)

	val, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found, "the replace restarted the TTL")
	assert.Equal(t, []byte("v2"), val)
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	c, _ := newTestCache(3)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute))
	}

	// Touch k0 so k1 becomes the eviction victim
	_, found, err := c.Get(ctx, "k0")
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, c.Set(ctx, "k3", []byte("v"), time.Minute))

	_, found, _ = c.Get(ctx, "k1")
	assert.False(t, found, "least recently used entry is evicted")
	_, found, _ = c.Get(ctx, "k0")
	assert.True(t, found)
	_, found, _ = c.Get(ctx, "k3")
	assert.True(t, found)
	assert.Equal(t, 3, c.Len())
}

func TestMemoryCache_Delete(t *testing.T) {
	c, _ := newTestCache(10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "k"), "deleting an absent key is not an error")

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c, _ := newTestCache(64)
	defer c.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", n%8)
			for j := 0; j < 50; j++ {
				_ = c.Set(ctx, key, []byte("v"), time.Minute)
				_, _, _ = c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 8)
}
