package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/pixelbay/mediahost/common/models"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Window is a named time granularity a bucket is defined against
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Windows lists the granularities checked per request, most restrictive first
var Windows = []Window{WindowMinute, WindowHour, WindowDay}

// WindowResult is the outcome for a single (subject, window) bucket
type WindowResult struct {
	Window    Window    `json:"window"`
	Allowed   bool      `json:"allowed"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Result is the combined admission decision across all windows. Limit,
// Remaining and ResetAt describe the most restrictive window so callers
// can emit meaningful headers.
type Result struct {
	Allowed    bool           `json:"allowed"`
	Window     Window         `json:"window"`
	Limit      int64          `json:"limit"`
	Remaining  int64          `json:"remaining"`
	ResetAt    time.Time      `json:"reset_at"`
	RetryAfter time.Duration  `json:"retry_after"`
	Windows    []WindowResult `json:"windows"`
}

// Limiter makes token-bucket admission decisions per (subject, window)
// against a CounterStore. It never converts store failures into denials;
// callers choose fail-open or fail-closed.
type Limiter struct {
	store     CounterStore
	logger    Logger
	bucketTTL time.Duration
	now       func() time.Time
}

// NewLimiter creates a limiter on the given store
func NewLimiter(store CounterStore, logger Logger, bucketTTL time.Duration) *Limiter {
	return &Limiter{
		store:     store,
		logger:    logger,
		bucketTTL: bucketTTL,
		now:       time.Now,
	}
}

// WithClock overrides the wall clock, for tests
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check consumes cost tokens from every window's bucket. All windows must
// allow for the request to proceed; checking stops at the first denial.
func (l *Limiter) Check(ctx context.Context, subjectID string, limits models.RateLimits, cost int64) (*Result, error) {
	result := &Result{Allowed: true}

	for _, window := range Windows {
		capacity, refillPerMinute := windowSpec(window, limits)
		if capacity <= 0 {
			continue
		}

		key := bucketKey(subjectID, window)
		allowed, remaining, err := l.store.ConsumeTokenBucket(ctx, key, capacity, refillPerMinute, cost, l.bucketTTL)
		if err != nil {
			l.logger.Error("rate limit check failed", "key", key, "error", err)
			return nil, fmt.Errorf("rate limit check for %s: %w", key, err)
		}

		wr := WindowResult{
			Window:    window,
			Allowed:   allowed,
			Limit:     capacity,
			Remaining: remaining,
			ResetAt:   l.now().Add(tokenDelay(1, refillPerMinute)),
		}
		result.Windows = append(result.Windows, wr)

		if !allowed {
			deficit := cost - remaining
			result.Allowed = false
			result.Window = window
			result.Limit = capacity
			result.Remaining = remaining
			result.ResetAt = wr.ResetAt
			result.RetryAfter = tokenDelay(deficit, refillPerMinute)

			l.logger.Warn("rate limit exceeded",
				"subject_id", subjectID,
				"window", window,
				"limit", capacity,
				"remaining", remaining,
				"retry_after", result.RetryAfter)
			return result, nil
		}
	}

	// Surface the most restrictive allowed window
	for i, wr := range result.Windows {
		if i == 0 || wr.Remaining < result.Remaining {
			result.Window = wr.Window
			result.Limit = wr.Limit
			result.Remaining = wr.Remaining
			result.ResetAt = wr.ResetAt
		}
	}

	l.logger.Debug("rate limit check passed",
		"subject_id", subjectID,
		"window", result.Window,
		"remaining", result.Remaining)
	return result, nil
}

// AllowPublic admits unauthenticated traffic keyed by client IP using the
// sliding-window operation.
func (l *Limiter) AllowPublic(ctx context.Context, clientIP string, limit int64, window time.Duration) (bool, int64, error) {
	key := fmt.Sprintf("rate_limit:ip:%s:%ds", clientIP, int64(window.Seconds()))
	allowed, count, err := l.store.ConsumeSlidingWindow(ctx, key, limit, window)
	if err != nil {
		l.logger.Error("public rate limit check failed", "key", key, "error", err)
		return false, 0, fmt.Errorf("public rate limit check for %s: %w", key, err)
	}
	if !allowed {
		l.logger.Warn("public rate limit exceeded", "client_ip", clientIP, "count", count, "limit", limit)
	}
	return allowed, count, nil
}

// Reset deletes one (subject, window) bucket. Used by administrative
// resets, never by request traffic.
func (l *Limiter) Reset(ctx context.Context, subjectID string, window Window) error {
	key := bucketKey(subjectID, window)
	if err := l.store.Reset(ctx, key); err != nil {
		return fmt.Errorf("reset rate limit %s: %w", key, err)
	}
	l.logger.Info("rate limit reset", "subject_id", subjectID, "window", window)
	return nil
}

// windowSpec derives bucket capacity and refill rate for a window from
// the subject's configured capacities. Refill is expressed per minute, so
// the hour and day buckets refill at capacity/60 and capacity/1440.
func windowSpec(window Window, limits models.RateLimits) (capacity, refillPerMinute int64) {
	switch window {
	case WindowMinute:
		return limits.RequestsPerMinute, limits.RequestsPerMinute
	case WindowHour:
		return limits.RequestsPerHour, max64(1, limits.RequestsPerHour/60)
	case WindowDay:
		return limits.RequestsPerDay, max64(1, limits.RequestsPerDay/(24*60))
	default:
		return 0, 0
	}
}

// tokenDelay is the time until `tokens` whole tokens accrue at the given
// refill rate
func tokenDelay(tokens, refillPerMinute int64) time.Duration {
	if tokens < 1 {
		tokens = 1
	}
	if refillPerMinute < 1 {
		refillPerMinute = 1
	}
	secs := (tokens*60 + refillPerMinute - 1) / refillPerMinute
	return time.Duration(secs) * time.Second
}

func bucketKey(subjectID string, window Window) string {
	return fmt.Sprintf("rate_limit:%s:%s", subjectID, window)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
