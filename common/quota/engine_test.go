package quota

import (
	"context"
	"fmt"
	"sync"
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

// stubSource serves authoritative counts from fields
type stubSource struct {
	images  int64
	storage int64
	err     error
}

func (s *stubSource) ImageCount(context.Context, string) (int64, error) {
	return s.images, s.err
}

func (s *stubSource) StorageBytes(context.Context, string) (int64, error) {
	return s.storage, s.err
}

// failingCounters errors on every read
type failingCounters struct{ Counters }

func (failingCounters) Count(context.Context, string) (int64, error) {
	return 0, fmt.Errorf("counter store down")
}

func testEngine(source *stubSource) (*Engine, *MemoryCounters) {
	counters := NewMemoryCounters(nil)
	return NewEngine(counters, source, DefaultPeriods(), nopLogger{}), counters
}

func testSubjectLimits() models.SubjectLimits {
	return models.SubjectLimits{
		DailyLimit:        10,
		MonthlyLimit:      100,
		MaxImages:         100,
		MaxImageSizeBytes: 10 << 20,
		RateLimits:        models.RateLimits{RequestsPerMinute: 60, RequestsPerHour: 1000, RequestsPerDay: 10000},
	}
}

func TestCheckQuota_AllowsWithinLimits(t *testing.T) {
	engine, _ := testEngine(&stubSource{images: 5, storage: 50 << 20})

	res, err := engine.CheckQuota(context.Background(), "key-1", "owner-1", 1<<20, testSubjectLimits())
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Empty(t, res.Violations)
	assert.Equal(t, int64(5), res.Usage.ImageCount)
}

func TestCheckQuota_FileSizeViolation(t *testing.T) {
	engine, _ := testEngine(&stubSource{})
	limits := testSubjectLimits()

	res, err := engine.CheckQuota(context.Background(), "key-1", "owner-1", limits.MaxImageSizeBytes+1, limits)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, FileSizeExceeded, res.Violations[0].Kind)
	assert.Equal(t, limits.MaxImageSizeBytes+1, res.Violations[0].Current)
	assert.Equal(t, limits.MaxImageSizeBytes, res.Violations[0].Limit)
}

func TestCheckQuota_StorageCountsRequestedBytes(t *testing.T) {
	// 900 MB used, 200 MB requested, 1 GB ceiling: the projected total
	// violates even though current usage alone does not
	limits := testSubjectLimits()
	limits.MaxImages = 100
	limits.MaxImageSizeBytes = 1 << 30 / 100 // 1 GB aggregate

	engine, _ := testEngine(&stubSource{storage: 900 << 20})

	res, err := engine.CheckQuota(context.Background(), "key-1", "owner-1", 200<<20, limits)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	var storageViolation *Violation
	for i := range res.Violations {
		if res.Violations[i].Kind == StorageExceeded {
			storageViolation = &res.Violations[i]
		}
	}
	require.NotNil(t, storageViolation)
	assert.Equal(t, int64(1100<<20), storageViolation.Current, "current includes the requested bytes")
}

func TestCheckQuota_DailyLimitBoundary(t *testing.T) {
	engine, counters := testEngine(&stubSource{})
	limits := testSubjectLimits()
	ctx := context.Background()

	// At exactly the limit the next upload is denied (>= comparison)
	_, err := counters.IncrementWithTTL(ctx, counterKey("key-1", CounterDailyUploads), limits.DailyLimit, time.Hour)
	require.NoError(t, err)

	res, err := engine.CheckQuota(ctx, "key-1", "owner-1", 1, limits)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, DailyUploadsExceeded, res.Violations[0].Kind)
}

func TestCheckQuota_CollectsAllViolations(t *testing.T) {
	engine, counters := testEngine(&stubSource{images: 200, storage: 1 << 40})
	limits := testSubjectLimits()
	ctx := context.Background()

	_, err := counters.IncrementWithTTL(ctx, counterKey("key-1", CounterDailyUploads), limits.DailyLimit, time.Hour)
	require.NoError(t, err)

	res, err := engine.CheckQuota(ctx, "key-1", "owner-1", limits.MaxImageSizeBytes+1, limits)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Len(t, res.Violations, 4, "every failed check reports independently")
}

func TestCheckQuota_IsReadOnly(t *testing.T) {
	engine, counters := testEngine(&stubSource{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := engine.CheckQuota(ctx, "key-1", "owner-1", 1, testSubjectLimits())
		require.NoError(t, err)
	}

	val, err := counters.Count(ctx, counterKey("key-1", CounterDailyUploads))
	require.NoError(t, err)
	assert.Equal(t, int64(0), val, "checks never consume quota")
}

func TestCheckQuota_CounterErrorDegradesToZero(t *testing.T) {
	counters := failingCounters{}
	engine := NewEngine(counters, &stubSource{}, DefaultPeriods(), nopLogger{})

	res, err := engine.CheckQuota(context.Background(), "key-1", "owner-1", 1, testSubjectLimits())
	require.NoError(t, err, "fast-counter outages must not block uploads")
	assert.True(t, res.Allowed)
}

func TestCheckQuota_SourceErrorPropagates(t *testing.T) {
	engine, _ := testEngine(&stubSource{err: fmt.Errorf("db down")})

	_, err := engine.CheckQuota(context.Background(), "key-1", "owner-1", 1, testSubjectLimits())
	assert.Error(t, err, "authoritative source errors surface so callers fail closed")
}

func TestRecordUpload_IncrementsAllCounters(t *testing.T) {
	engine, counters := testEngine(&stubSource{})
	ctx := context.Background()

	require.NoError(t, engine.RecordUpload(ctx, "key-1", 1024))
	require.NoError(t, engine.RecordUpload(ctx, "key-1", 2048))

	cases := map[string]int64{
		CounterDailyUploads:   2,
		CounterMonthlyUploads: 2,
		CounterDailyBytes:     3072,
		CounterMonthlyBytes:   3072,
	}
	for kind, want := range cases {
		val, err := counters.Count(ctx, counterKey("key-1", kind))
		require.NoError(t, err)
		assert.Equal(t, want, val, kind)
	}
}

func TestRecordDownload_IncrementsBandwidthCounters(t *testing.T) {
	engine, counters := testEngine(&stubSource{})
	ctx := context.Background()

	require.NoError(t, engine.RecordDownload(ctx, "key-1", 4096))
	require.NoError(t, engine.RecordDownload(ctx, "key-1", 1024))

	for _, kind := range []string{CounterDailyBandwidth, CounterMonthlyBandwidth} {
		val, err := counters.Count(ctx, counterKey("key-1", kind))
		require.NoError(t, err)
		assert.Equal(t, int64(5120), val, kind)
	}

	uploads, err := counters.Count(ctx, counterKey("key-1", CounterDailyUploads))
	require.NoError(t, err)
	assert.Equal(t, int64(0), uploads, "downloads never touch upload counters")
}

func TestRecordDownload_PeriodTTLs(t *testing.T) {
	clock := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	counters := NewMemoryCounters(func() time.Time { return now() })
	engine := NewEngine(counters, &stubSource{}, DefaultPeriods(), nopLogger{})
	ctx := context.Background()

	require.NoError(t, engine.RecordDownload(ctx, "key-1", 100))

	// Past the daily period the daily counter resets; the monthly one keeps
	// accumulating under its longer TTL
	clock = clock.Add(25 * time.Hour)
	daily, err := engine.UsageCounter(ctx, "key-1", CounterDailyBandwidth)
	require.NoError(t, err)
	assert.Equal(t, int64(0), daily)

	monthly, err := engine.UsageCounter(ctx, "key-1", CounterMonthlyBandwidth)
	require.NoError(t, err)
	assert.Equal(t, int64(100), monthly)
}

func TestRecordUpload_Concurrent(t *testing.T) {
	engine, counters := testEngine(&stubSource{})
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, engine.RecordUpload(ctx, "key-1", 10))
		}()
	}
	wg.Wait()

	val, err := counters.Count(ctx, counterKey("key-1", CounterDailyUploads))
	require.NoError(t, err)
	assert.Equal(t, int64(n), val, "no increments lost under concurrency")
}

func TestCounterPeriodRollover(t *testing.T) {
	clock := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	counters := NewMemoryCounters(func() time.Time { return now() })
	engine := NewEngine(counters, &stubSource{}, DefaultPeriods(), nopLogger{})
	ctx := context.Background()

	require.NoError(t, engine.RecordUpload(ctx, "key-1", 1))

	// Later increments must not extend the period
	clock = clock.Add(23 * time.Hour)
	require.NoError(t, engine.RecordUpload(ctx, "key-1", 1))

	clock = clock.Add(2 * time.Hour) // 25h after first write
	val, err := engine.UsageCounter(ctx, "key-1", CounterDailyUploads)
	require.NoError(t, err)
	assert.Equal(t, int64(0), val, "daily counter rolls over 24h after its first write")
}

func TestResetCounter(t *testing.T) {
	engine, _ := testEngine(&stubSource{})
	ctx := context.Background()

	require.NoError(t, engine.RecordUpload(ctx, "key-1", 1))
	require.NoError(t, engine.ResetCounter(ctx, "key-1", CounterDailyUploads))

	val, err := engine.UsageCounter(ctx, "key-1", CounterDailyUploads)
	require.NoError(t, err)
	assert.Equal(t, int64(0), val)

	monthly, err := engine.UsageCounter(ctx, "key-1", CounterMonthlyUploads)
	require.NoError(t, err)
	assert.Equal(t, int64(1), monthly, "reset touches only the named counter")
}

func TestQuotaStatus(t *testing.T) {
	engine, _ := testEngine(&stubSource{images: 25, storage: 100 << 20})
	limits := testSubjectLimits()
	ctx := context.Background()

	require.NoError(t, engine.RecordUpload(ctx, "key-1", 1<<20))

	status, err := engine.QuotaStatus(ctx, "key-1", "owner-1", limits)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.DailyUploads.Used)
	assert.Equal(t, limits.DailyLimit, status.DailyUploads.Limit)
	assert.Equal(t, 10, status.DailyUploads.Percentage)
	assert.Equal(t, int64(25), status.ImageCount.Used)
	assert.Equal(t, 25, status.ImageCount.Percentage)
}
