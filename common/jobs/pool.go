// Package jobs runs the in-process background pipeline: a bounded queue
// feeding a fixed pool of workers, with retry scheduling and a monotonic
// per-job state machine. Jobs live in memory only; a restart drops queued
// and in-flight work, and callers resubmit.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pixelbay/mediahost/common/metrics"
	"github.com/pixelbay/mediahost/common/models"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

var (
	// ErrInvalidJobParameters marks a submission no worker could act on;
	// the job is recorded as failed and never dispatched or retried
	ErrInvalidJobParameters = errors.New("invalid job parameters")
	// ErrQueueFull is returned when the queue is at capacity
	ErrQueueFull = errors.New("processing queue full")
	// ErrShuttingDown is returned for submissions after shutdown began
	ErrShuttingDown = errors.New("processing pool shutting down")
	// ErrJobNotFound is returned for lookups of unknown job IDs
	ErrJobNotFound = errors.New("job not found")
)

// Generator produces the variant artifacts for one job
type Generator interface {
	Generate(ctx context.Context, job *models.ProcessingJob) ([]models.ArtifactVariant, error)
}

// ResultSink persists the variants of a completed job. Persistence
// failures fail the attempt and go through the normal retry path.
type ResultSink interface {
	PersistVariants(ctx context.Context, job *models.ProcessingJob, variants []models.ArtifactVariant) error
}

// Config holds pool sizing and retry policy
type Config struct {
	Workers        int
	QueueSize      int
	MaxRetries     int
	BaseRetryDelay time.Duration
}

// Pool owns the queue, the workers and every job record. At most
// Config.Workers jobs are in the processing state at any moment.
type Pool struct {
	cfg     Config
	gen     Generator
	sink    ResultSink
	logger  Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.RWMutex
	jobs   map[uuid.UUID]*models.ProcessingJob
	closed bool

	queue   chan uuid.UUID
	pending sync.WaitGroup // jobs not yet terminal
	workers *errgroup.Group
}

// NewPool creates a pool; call Start before submitting
func NewPool(cfg Config, gen Generator, sink ResultSink, logger Logger, m *metrics.Metrics) *Pool {
	return &Pool{
		cfg:     cfg,
		gen:     gen,
		sink:    sink,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		jobs:    make(map[uuid.UUID]*models.ProcessingJob),
		queue:   make(chan uuid.UUID, cfg.QueueSize),
	}
}

// WithClock overrides the wall clock, for tests
func (p *Pool) WithClock(now func() time.Time) *Pool {
	p.now = now
	return p
}

// Start launches the worker goroutines
func (p *Pool) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	p.workers = g
	for i := 0; i < p.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			p.logger.Debug("worker started", "worker", worker)
			for id := range p.queue {
				p.metrics.SetQueueDepth(len(p.queue))
				p.runJob(gctx, id)
			}
			p.logger.Debug("worker stopped", "worker", worker)
			return nil
		})
	}
	p.logger.Info("processing pool started",
		"workers", p.cfg.Workers,
		"queue_size", p.cfg.QueueSize,
		"max_retries", p.cfg.MaxRetries)
}

// Enqueue validates and queues one variant-generation job. Invalid
// parameters produce a terminal failed job record and
// ErrInvalidJobParameters; a full queue rejects the submission entirely.
func (p *Pool) Enqueue(ctx context.Context, subjectID string, imageID uuid.UUID, params models.JobParams) (uuid.UUID, error) {
	job := &models.ProcessingJob{
		ID:        uuid.New(),
		SubjectID: subjectID,
		ImageID:   imageID,
		Kind:      models.KindVariantGeneration,
		Params:    params,
		Status:    models.JobQueued,
		CreatedAt: p.now(),
	}

	if err := params.Validate(); err != nil {
		now := p.now()
		job.Status = models.JobFailed
		job.ErrorMessage = err.Error()
		job.CompletedAt = &now
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return uuid.Nil, ErrShuttingDown
		}
		p.jobs[job.ID] = job
		p.mu.Unlock()
		p.metrics.JobStatusChanged(string(models.JobFailed))
		p.logger.Warn("job rejected", "job_id", job.ID, "error", err)
		return job.ID, fmt.Errorf("%w: %v", ErrInvalidJobParameters, err)
	}

	// Registering the job and bumping the pending count share the lock
	// Shutdown takes to flip closed, so a submission either observes the
	// shutdown or is counted before the drain wait can complete. Without
	// that, a submission could slip past the closed check and send on the
	// queue after it closed.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return uuid.Nil, ErrShuttingDown
	}
	p.jobs[job.ID] = job
	p.pending.Add(1)
	p.mu.Unlock()

	select {
	case p.queue <- job.ID:
	default:
		p.mu.Lock()
		delete(p.jobs, job.ID)
		p.mu.Unlock()
		p.pending.Done()
		return uuid.Nil, ErrQueueFull
	}

	p.metrics.JobStatusChanged(string(models.JobQueued))
	p.metrics.SetQueueDepth(len(p.queue))
	p.logger.Debug("job enqueued", "job_id", job.ID, "image_id", imageID, "subject_id", subjectID)
	return job.ID, nil
}

// Job returns a copy of one job record
func (p *Pool) Job(id uuid.UUID) (models.ProcessingJob, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	job, ok := p.jobs[id]
	if !ok {
		return models.ProcessingJob{}, ErrJobNotFound
	}
	return *job, nil
}

// Jobs returns copies of every known job record
func (p *Pool) Jobs() []models.ProcessingJob {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.ProcessingJob, 0, len(p.jobs))
	for _, job := range p.jobs {
		out = append(out, *job)
	}
	return out
}

// QueueDepth reports the current backlog
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// Shutdown stops accepting new jobs, waits for every non-terminal job
// (including scheduled retries) to finish, then stops the workers. The
// context bounds the wait; on expiry workers keep draining in the
// background but the call returns the context error.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.logger.Info("processing pool draining")

	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("drain processing pool: %w", ctx.Err())
	}

	close(p.queue)
	if err := p.workers.Wait(); err != nil {
		return fmt.Errorf("stop workers: %w", err)
	}
	p.logger.Info("processing pool stopped")
	return nil
}

func (p *Pool) runJob(ctx context.Context, id uuid.UUID) {
	p.mu.Lock()
	job, ok := p.jobs[id]
	if !ok || !job.Status.CanTransition(models.JobProcessing) {
		p.mu.Unlock()
		return
	}
	started := p.now()
	job.Status = models.JobProcessing
	job.StartedAt = &started
	attempt := *job
	p.mu.Unlock()

	p.metrics.JobStatusChanged(string(models.JobProcessing))
	p.logger.Debug("job started", "job_id", id, "retry_count", attempt.RetryCount)

	variants, err := p.execute(ctx, &attempt)
	if err == nil && p.sink != nil {
		err = p.sink.PersistVariants(ctx, &attempt, variants)
	}
	p.metrics.ObserveProcessing(p.now().Sub(started).Seconds())

	if err != nil {
		p.fail(id, err)
		return
	}
	p.complete(id, len(variants))
}

// execute isolates worker panics: a panicking generation attempt fails
// that job and the worker lives on
func (p *Pool) execute(ctx context.Context, job *models.ProcessingJob) (variants []models.ArtifactVariant, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return p.gen.Generate(ctx, job)
}

func (p *Pool) complete(id uuid.UUID, variantCount int) {
	p.mu.Lock()
	job, ok := p.jobs[id]
	if !ok || !job.Status.CanTransition(models.JobCompleted) {
		p.mu.Unlock()
		return
	}
	now := p.now()
	job.Status = models.JobCompleted
	job.CompletedAt = &now
	job.ErrorMessage = ""
	p.mu.Unlock()

	p.pending.Done()
	p.metrics.JobStatusChanged(string(models.JobCompleted))
	p.logger.Info("job completed", "job_id", id, "variants", variantCount)
}

// fail records the attempt error, then either schedules a retry with a
// linearly growing delay or marks the job terminally failed once the
// retry ceiling is reached.
func (p *Pool) fail(id uuid.UUID, cause error) {
	p.mu.Lock()
	job, ok := p.jobs[id]
	if !ok || !job.Status.CanTransition(models.JobFailed) {
		p.mu.Unlock()
		return
	}
	job.Status = models.JobFailed
	job.ErrorMessage = cause.Error()

	if job.RetryCount < p.cfg.MaxRetries {
		job.RetryCount++
		job.Status = models.JobRetrying
		retryCount := job.RetryCount
		p.mu.Unlock()

		delay := time.Duration(retryCount) * p.cfg.BaseRetryDelay
		p.metrics.JobRetried()
		p.metrics.JobStatusChanged(string(models.JobRetrying))
		p.logger.Warn("job failed, retry scheduled",
			"job_id", id,
			"retry_count", retryCount,
			"max_retries", p.cfg.MaxRetries,
			"delay", delay,
			"error", cause)

		// The timer re-enqueues instead of the worker sleeping, so the
		// worker slot is free for other jobs during the backoff. The job
		// counts as pending until terminal, which keeps the queue open
		// through shutdown; the send blocks rather than drops if the
		// queue is momentarily full.
		time.AfterFunc(delay, func() {
			p.queue <- id
			p.metrics.SetQueueDepth(len(p.queue))
		})
		return
	}

	now := p.now()
	job.CompletedAt = &now
	p.mu.Unlock()

	p.pending.Done()
	p.metrics.JobStatusChanged(string(models.JobFailed))
	p.logger.Error("job failed permanently",
		"job_id", id,
		"retry_count", p.cfg.MaxRetries,
		"error", cause)
}
