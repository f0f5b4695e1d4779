package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelbay/mediahost/common/models"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

func testLimits() models.RateLimits {
	return models.RateLimits{
		RequestsPerMinute: 5,
		RequestsPerHour:   100,
		RequestsPerDay:    1000,
	}
}

func TestCheck_AllWindowsMustAllow(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(NewMemoryStore(clock.Now), nopLogger{}, time.Hour).WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := limiter.Check(ctx, "key-1", testLimits(), 1)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d under every window", i)
	}

	res, err := limiter.Check(ctx, "key-1", testLimits(), 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, WindowMinute, res.Window, "the minute bucket empties first")
	assert.Equal(t, int64(5), res.Limit)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestCheck_IndependentSubjects(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(NewMemoryStore(clock.Now), nopLogger{}, time.Hour).WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.Check(ctx, "key-a", testLimits(), 1)
		require.NoError(t, err)
	}
	denied, err := limiter.Check(ctx, "key-a", testLimits(), 1)
	require.NoError(t, err)
	require.False(t, denied.Allowed)

	other, err := limiter.Check(ctx, "key-b", testLimits(), 1)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "key-b has its own buckets")
}

func TestCheck_SurfacesMostRestrictiveWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(NewMemoryStore(clock.Now), nopLogger{}, time.Hour).WithClock(clock.Now)
	ctx := context.Background()

	res, err := limiter.Check(ctx, "key-1", testLimits(), 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	// 4 of 5 left on the minute window vs 99 of 100 on the hour
	assert.Equal(t, WindowMinute, res.Window)
	assert.Equal(t, int64(4), res.Remaining)
	assert.Len(t, res.Windows, 3)
}

func TestCheck_DeniedBucketRecoversAfterRefill(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(NewMemoryStore(clock.Now), nopLogger{}, time.Hour).WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.Check(ctx, "key-1", testLimits(), 1)
		require.NoError(t, err)
	}
	res, err := limiter.Check(ctx, "key-1", testLimits(), 1)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	clock.Advance(res.RetryAfter)

	res, err = limiter.Check(ctx, "key-1", testLimits(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "waiting the advertised RetryAfter restores admission")
}

func TestCheck_StoreErrorPropagates(t *testing.T) {
	limiter := NewLimiter(failingStore{}, nopLogger{}, time.Hour)

	res, err := limiter.Check(context.Background(), "key-1", testLimits(), 1)
	assert.Error(t, err)
	assert.Nil(t, res, "the limiter never converts errors into decisions")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestAllowPublic_CountsPerIP(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(NewMemoryStore(clock.Now), nopLogger{}, time.Hour).WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := limiter.AllowPublic(ctx, "203.0.113.9", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, _, err := limiter.AllowPublic(ctx, "203.0.113.9", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, _, err = limiter.AllowPublic(ctx, "203.0.113.10", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "other IPs are unaffected")
}

func TestReset_RestoresOneWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(NewMemoryStore(clock.Now), nopLogger{}, time.Hour).WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.Check(ctx, "key-1", testLimits(), 1)
		require.NoError(t, err)
	}
	res, err := limiter.Check(ctx, "key-1", testLimits(), 1)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	require.NoError(t, limiter.Reset(ctx, "key-1", WindowMinute))

	res, err = limiter.Check(ctx, "key-1", testLimits(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

type failingStore struct{}

func (failingStore) ConsumeTokenBucket(context.Context, string, int64, int64, int64, time.Duration) (bool, int64, error) {
	return false, 0, ErrStoreUnavailable
}

func (failingStore) ConsumeSlidingWindow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	return false, 0, ErrStoreUnavailable
}

func (failingStore) Reset(context.Context, string) error {
	return ErrStoreUnavailable
}
