package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelbay/mediahost/common/models"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

// scriptedGenerator fails a configurable number of attempts per job
// before succeeding
type scriptedGenerator struct {
	mu         sync.Mutex
	failures   int
	attempts   map[uuid.UUID]int
	concurrent int64
	peak       int64
	block      time.Duration
	panicOnce  bool
}

func newScriptedGenerator(failures int) *scriptedGenerator {
	return &scriptedGenerator{
		failures: failures,
		attempts: make(map[uuid.UUID]int),
	}
}

func (g *scriptedGenerator) Generate(ctx context.Context, job *models.ProcessingJob) ([]models.ArtifactVariant, error) {
	cur := atomic.AddInt64(&g.concurrent, 1)
	defer atomic.AddInt64(&g.concurrent, -1)
	for {
		peak := atomic.LoadInt64(&g.peak)
		if cur <= peak || atomic.CompareAndSwapInt64(&g.peak, peak, cur) {
			break
		}
	}

	if g.block > 0 {
		time.Sleep(g.block)
	}

	g.mu.Lock()
	g.attempts[job.ID]++
	attempt := g.attempts[job.ID]
	g.mu.Unlock()

	if g.panicOnce && attempt == 1 {
		panic("codec exploded")
	}
	if attempt <= g.failures {
		return nil, fmt.Errorf("attempt %d failed", attempt)
	}

	return []models.ArtifactVariant{
		{Kind: models.VariantThumbnail, Width: 256, Format: "webp", Path: "out/thumb_256.webp"},
	}, nil
}

func (g *scriptedGenerator) attemptCount(id uuid.UUID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts[id]
}

type recordingSink struct {
	mu       sync.Mutex
	persists int
	err      error
}

func (s *recordingSink) PersistVariants(ctx context.Context, job *models.ProcessingJob, variants []models.ArtifactVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.persists++
	return nil
}

func testConfig() Config {
	return Config{
		Workers:        2,
		QueueSize:      16,
		MaxRetries:     3,
		BaseRetryDelay: 5 * time.Millisecond,
	}
}

func validParams() models.JobParams {
	return models.JobParams{
		SourcePath:     "/tmp/source.jpg",
		ThumbnailSizes: []uint{256},
	}
}

func waitTerminal(t *testing.T, p *Pool, id uuid.UUID) models.ProcessingJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := p.Job(id)
		require.NoError(t, err)
		if job.Status == models.JobCompleted ||
			(job.Status == models.JobFailed && job.CompletedAt != nil) {
			return job
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return models.ProcessingJob{}
}

func TestPool_SuccessfulJob(t *testing.T) {
	gen := newScriptedGenerator(0)
	sink := &recordingSink{}
	pool := NewPool(testConfig(), gen, sink, nopLogger{}, nil)
	pool.Start(context.Background())

	id, err := pool.Enqueue(context.Background(), "key-1", uuid.New(), validParams())
	require.NoError(t, err)

	job := waitTerminal(t, pool, id)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 0, job.RetryCount)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMessage)
	assert.Equal(t, 1, sink.persists)

	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_RetriesThenSucceeds(t *testing.T) {
	// Fails twice, succeeds on the third attempt: completed with
	// retry_count 2
	gen := newScriptedGenerator(2)
	pool := NewPool(testConfig(), gen, &recordingSink{}, nopLogger{}, nil)
	pool.Start(context.Background())

	id, err := pool.Enqueue(context.Background(), "key-1", uuid.New(), validParams())
	require.NoError(t, err)

	job := waitTerminal(t, pool, id)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 2, job.RetryCount)
	assert.Equal(t, 3, gen.attemptCount(id))

	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_ExhaustsRetries(t *testing.T) {
	// Always failing: maxRetries+1 attempts total, then terminal failed
	gen := newScriptedGenerator(100)
	pool := NewPool(testConfig(), gen, &recordingSink{}, nopLogger{}, nil)
	pool.Start(context.Background())

	id, err := pool.Enqueue(context.Background(), "key-1", uuid.New(), validParams())
	require.NoError(t, err)

	job := waitTerminal(t, pool, id)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, 3, job.RetryCount)
	assert.Equal(t, 4, gen.attemptCount(id), "initial attempt plus three retries")
	assert.Contains(t, job.ErrorMessage, "failed")

	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_PanicFailsJobNotWorker(t *testing.T) {
	gen := newScriptedGenerator(0)
	gen.panicOnce = true
	pool := NewPool(testConfig(), gen, &recordingSink{}, nopLogger{}, nil)
	pool.Start(context.Background())

	id, err := pool.Enqueue(context.Background(), "key-1", uuid.New(), validParams())
	require.NoError(t, err)

	// The panicking attempt is retried and succeeds; the worker survived
	job := waitTerminal(t, pool, id)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 1, job.RetryCount)

	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_PersistFailureRetries(t *testing.T) {
	gen := newScriptedGenerator(0)
	sink := &recordingSink{err: fmt.Errorf("db down")}
	pool := NewPool(testConfig(), gen, sink, nopLogger{}, nil)
	pool.Start(context.Background())

	id, err := pool.Enqueue(context.Background(), "key-1", uuid.New(), validParams())
	require.NoError(t, err)

	job := waitTerminal(t, pool, id)
	assert.Equal(t, models.JobFailed, job.Status, "persistence failures go through the retry path")
	assert.Equal(t, 3, job.RetryCount)

	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_InvalidParamsTerminalImmediately(t *testing.T) {
	pool := NewPool(testConfig(), newScriptedGenerator(0), &recordingSink{}, nopLogger{}, nil)
	pool.Start(context.Background())

	id, err := pool.Enqueue(context.Background(), "key-1", uuid.New(), models.JobParams{})
	assert.ErrorIs(t, err, ErrInvalidJobParameters)

	job, err := pool.Job(id)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, 0, job.RetryCount, "invalid parameters are never retried")
	assert.NotEmpty(t, job.ErrorMessage)

	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_QueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1
	gen := newScriptedGenerator(0)
	gen.block = 50 * time.Millisecond
	pool := NewPool(cfg, gen, &recordingSink{}, nopLogger{}, nil)
	pool.Start(context.Background())

	// First fills the worker, second fills the queue; eventually a
	// submission bounces
	var sawFull bool
	for i := 0; i < 8; i++ {
		_, err := pool.Enqueue(context.Background(), "key-1", uuid.New(), validParams())
		if err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			sawFull = true
			break
		}
	}
	assert.True(t, sawFull, "a bounded queue must reject at capacity")

	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_ConcurrencyBoundedByWorkers(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 2
	gen := newScriptedGenerator(0)
	gen.block = 20 * time.Millisecond
	pool := NewPool(cfg, gen, &recordingSink{}, nopLogger{}, nil)
	pool.Start(context.Background())

	ids := make([]uuid.UUID, 0, 8)
	for i := 0; i < 8; i++ {
		id, err := pool.Enqueue(context.Background(), "key-1", uuid.New(), validParams())
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitTerminal(t, pool, id)
	}

	assert.LessOrEqual(t, atomic.LoadInt64(&gen.peak), int64(2),
		"no more jobs in flight than workers")

	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_ShutdownDrainsInFlight(t *testing.T) {
	gen := newScriptedGenerator(0)
	gen.block = 30 * time.Millisecond
	sink := &recordingSink{}
	pool := NewPool(testConfig(), gen, sink, nopLogger{}, nil)
	pool.Start(context.Background())

	ids := make([]uuid.UUID, 0, 4)
	for i := 0; i < 4; i++ {
		id, err := pool.Enqueue(context.Background(), "key-1", uuid.New(), validParams())
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, pool.Shutdown(context.Background()))

	for _, id := range ids {
		job, err := pool.Job(id)
		require.NoError(t, err)
		assert.Equal(t, models.JobCompleted, job.Status, "drain finishes queued work")
	}

	_, err := pool.Enqueue(context.Background(), "key-1", uuid.New(), validParams())
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestPool_ConcurrentEnqueueDuringShutdown(t *testing.T) {
	// Submissions racing Shutdown must either be accepted and drained or
	// rejected with ErrShuttingDown; none may slip past the closed check
	// and send on the closed queue.
	for round := 0; round < 20; round++ {
		gen := newScriptedGenerator(0)
		pool := NewPool(testConfig(), gen, &recordingSink{}, nopLogger{}, nil)
		pool.Start(context.Background())

		var wg sync.WaitGroup
		var accepted sync.Map
		start := make(chan struct{})
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 16; j++ {
					id, err := pool.Enqueue(context.Background(), "key-1", uuid.New(), validParams())
					switch {
					case errors.Is(err, ErrShuttingDown):
						return
					case errors.Is(err, ErrQueueFull):
						continue
					default:
						if !assert.NoError(t, err) {
							return
						}
						accepted.Store(id, struct{}{})
					}
				}
			}()
		}

		close(start)
		require.NoError(t, pool.Shutdown(context.Background()))
		wg.Wait()

		accepted.Range(func(key, _ interface{}) bool {
			job, err := pool.Job(key.(uuid.UUID))
			require.NoError(t, err)
			assert.Equal(t, models.JobCompleted, job.Status, "accepted submissions drain")
			return true
		})
	}
}

func TestPool_ShutdownWaitsForScheduledRetries(t *testing.T) {
	gen := newScriptedGenerator(1)
	pool := NewPool(testConfig(), gen, &recordingSink{}, nopLogger{}, nil)
	pool.Start(context.Background())

	id, err := pool.Enqueue(context.Background(), "key-1", uuid.New(), validParams())
	require.NoError(t, err)

	// Give the first attempt time to fail and schedule its retry
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, pool.Shutdown(context.Background()))

	job, err := pool.Job(id)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status, "retries scheduled before shutdown still run")
}

func TestPool_JobNotFound(t *testing.T) {
	pool := NewPool(testConfig(), newScriptedGenerator(0), &recordingSink{}, nopLogger{}, nil)
	_, err := pool.Job(uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to models.JobStatus
		ok       bool
	}{
		{models.JobQueued, models.JobProcessing, true},
		{models.JobProcessing, models.JobCompleted, true},
		{models.JobProcessing, models.JobFailed, true},
		{models.JobFailed, models.JobRetrying, true},
		{models.JobRetrying, models.JobProcessing, true},
		{models.JobCompleted, models.JobProcessing, false},
		{models.JobCompleted, models.JobFailed, false},
		{models.JobQueued, models.JobCompleted, false},
		{models.JobRetrying, models.JobCompleted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}
