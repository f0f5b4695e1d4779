// Package quota tracks cumulative usage counters per subject and period
// and evaluates requested actions against the subject's configured limits.
//
// CheckQuota is read-only and side-effect-free so callers can run it
// speculatively before acting; RecordUpload/RecordDownload run only after
// the action succeeds. A crash between the two under-counts usage
// (at-least-once, accepted). Strict enforcement would instead reserve
// quota atomically at check time and release on failure.
package quota

import (
	"context"
	"fmt"
	"strings"
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

// Counters is the fast-counter side of the engine: monotonically
// increasing per-period integers with TTL-based rollover. Increments must
// be atomic; the TTL is applied only on the first write of a period.
type Counters interface {
	IncrementWithTTL(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error)
	Count(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// UsageSource supplies the authoritative stored-item counts. These come
// from the persistent record store rather than the fast counters because
// they must reflect deletions.
type UsageSource interface {
	ImageCount(ctx context.Context, ownerID string) (int64, error)
	StorageBytes(ctx context.Context, ownerID string) (int64, error)
}

// Counter kinds
const (
	CounterDailyUploads     = "daily_uploads"
	CounterMonthlyUploads   = "monthly_uploads"
	CounterDailyBytes       = "daily_bytes"
	CounterMonthlyBytes     = "monthly_bytes"
	CounterDailyBandwidth   = "daily_bandwidth"
	CounterMonthlyBandwidth = "monthly_bandwidth"
)

// ViolationKind identifies which limit a request would break
type ViolationKind string

const (
	FileSizeExceeded       ViolationKind = "file_size_exceeded"
	DailyUploadsExceeded   ViolationKind = "daily_uploads_exceeded"
	MonthlyUploadsExceeded ViolationKind = "monthly_uploads_exceeded"
	ImageCountExceeded     ViolationKind = "image_count_exceeded"
	StorageExceeded        ViolationKind = "storage_exceeded"
)

// Violation carries machine-readable context for one failed check
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Current int64         `json:"current_value"`
	Limit   int64         `json:"limit_value"`
	Message string        `json:"message"`
}

// Usage is a snapshot of the values the checks observed
type Usage struct {
	DailyUploads   int64 `json:"daily_uploads"`
	MonthlyUploads int64 `json:"monthly_uploads"`
	ImageCount     int64 `json:"image_count"`
	StorageUsed    int64 `json:"storage_used"`
}

// CheckResult is the outcome of a speculative quota check
type CheckResult struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations"`
	Usage      Usage       `json:"usage"`
}

// Periods configures counter rollover TTLs
type Periods struct {
	Daily   time.Duration
	Monthly time.Duration
	Default time.Duration
}

// DefaultPeriods matches UTC day/month rollover approximations
func DefaultPeriods() Periods {
	return Periods{
		Daily:   24 * time.Hour,
		Monthly: 30 * 24 * time.Hour,
		Default: time.Hour,
	}
}

// Engine evaluates and records usage against subject limits
type Engine struct {
	counters Counters
	source   UsageSource
	periods  Periods
	logger   Logger
}

// NewEngine creates a quota engine
func NewEngine(counters Counters, source UsageSource, periods Periods, logger Logger) *Engine {
	return &Engine{
		counters: counters,
		source:   source,
		periods:  periods,
		logger:   logger,
	}
}

// CheckQuota runs the five admission checks for an upload of
// requestedBytes. Each check is independent; all must pass. Fast-counter
// read errors degrade to zero usage with a warning (rate enforcement is
// best-effort); authoritative source errors propagate so callers can fail
// closed.
func (e *Engine) CheckQuota(ctx context.Context, subjectID, ownerID string, requestedBytes int64, limits models.SubjectLimits) (*CheckResult, error) {
	var violations []Violation

	if requestedBytes > limits.MaxImageSizeBytes {
		violations = append(violations, Violation{
			Kind:    FileSizeExceeded,
			Current: requestedBytes,
			Limit:   limits.MaxImageSizeBytes,
			Message: fmt.Sprintf("file size %d bytes exceeds limit of %d bytes", requestedBytes, limits.MaxImageSizeBytes),
		})
	}

	dailyUploads := e.counterOrZero(ctx, subjectID, CounterDailyUploads)
	if dailyUploads >= limits.DailyLimit {
		violations = append(violations, Violation{
			Kind:    DailyUploadsExceeded,
			Current: dailyUploads,
			Limit:   limits.DailyLimit,
			Message: fmt.Sprintf("daily upload limit of %d exceeded (current: %d)", limits.DailyLimit, dailyUploads),
		})
	}

	monthlyUploads := e.counterOrZero(ctx, subjectID, CounterMonthlyUploads)
	if monthlyUploads >= limits.MonthlyLimit {
		violations = append(violations, Violation{
			Kind:    MonthlyUploadsExceeded,
			Current: monthlyUploads,
			Limit:   limits.MonthlyLimit,
			Message: fmt.Sprintf("monthly upload limit of %d exceeded (current: %d)", limits.MonthlyLimit, monthlyUploads),
		})
	}

	imageCount, err := e.source.ImageCount(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("authoritative image count for %s: %w", ownerID, err)
	}
	if imageCount >= limits.MaxImages {
		violations = append(violations, Violation{
			Kind:    ImageCountExceeded,
			Current: imageCount,
			Limit:   limits.MaxImages,
			Message: fmt.Sprintf("maximum image count of %d exceeded (current: %d)", limits.MaxImages, imageCount),
		})
	}

	storageUsed, err := e.source.StorageBytes(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("authoritative storage bytes for %s: %w", ownerID, err)
	}
	maxStorage := limits.MaxStorageBytes()
	if storageUsed+requestedBytes > maxStorage {
		violations = append(violations, Violation{
			Kind:    StorageExceeded,
			Current: storageUsed + requestedBytes,
			Limit:   maxStorage,
			Message: fmt.Sprintf("storage limit of %d bytes would be exceeded (current: %d + new file: %d = %d)",
				maxStorage, storageUsed, requestedBytes, storageUsed+requestedBytes),
		})
	}

	result := &CheckResult{
		Allowed:    len(violations) == 0,
		Violations: violations,
		Usage: Usage{
			DailyUploads:   dailyUploads,
			MonthlyUploads: monthlyUploads,
			ImageCount:     imageCount,
			StorageUsed:    storageUsed,
		},
	}

	if !result.Allowed {
		kinds := make([]string, len(violations))
		for i, v := range violations {
			kinds[i] = string(v.Kind)
		}
		e.logger.Warn("quota check denied",
			"subject_id", subjectID,
			"violations", strings.Join(kinds, ","))
	}

	return result, nil
}

// RecordUpload increments the upload counters after a successful upload
func (e *Engine) RecordUpload(ctx context.Context, subjectID string, sizeBytes int64) error {
	increments := []struct {
		kind   string
		amount int64
	}{
		{CounterDailyUploads, 1},
		{CounterMonthlyUploads, 1},
		{CounterDailyBytes, sizeBytes},
		{CounterMonthlyBytes, sizeBytes},
	}

	for _, inc := range increments {
		if _, err := e.counters.IncrementWithTTL(ctx, counterKey(subjectID, inc.kind), inc.amount, e.periodTTL(inc.kind)); err != nil {
			return fmt.Errorf("record upload %s: %w", inc.kind, err)
		}
	}

	e.logger.Debug("upload recorded", "subject_id", subjectID, "size_bytes", sizeBytes)
	return nil
}

// RecordDownload increments the bandwidth counters after serving bytes
func (e *Engine) RecordDownload(ctx context.Context, subjectID string, bytesServed int64) error {
	for _, kind := range []string{CounterDailyBandwidth, CounterMonthlyBandwidth} {
		if _, err := e.counters.IncrementWithTTL(ctx, counterKey(subjectID, kind), bytesServed, e.periodTTL(kind)); err != nil {
			return fmt.Errorf("record download %s: %w", kind, err)
		}
	}
	return nil
}

// UsageCounter reads one fast counter; a missing counter reads as zero
func (e *Engine) UsageCounter(ctx context.Context, subjectID, kind string) (int64, error) {
	return e.counters.Count(ctx, counterKey(subjectID, kind))
}

// ResetCounter deletes one usage counter. Administrative only; ordinary
// request processing never resets counters.
func (e *Engine) ResetCounter(ctx context.Context, subjectID, kind string) error {
	if err := e.counters.Reset(ctx, counterKey(subjectID, kind)); err != nil {
		return fmt.Errorf("reset counter %s/%s: %w", subjectID, kind, err)
	}
	e.logger.Info("usage counter reset", "subject_id", subjectID, "kind", kind)
	return nil
}

// Metric is one dimension of a quota status report
type Metric struct {
	Used       int64 `json:"used"`
	Limit      int64 `json:"limit"`
	Percentage int   `json:"percentage"`
}

// Status summarizes a subject's position against every quota dimension
type Status struct {
	DailyUploads     Metric `json:"daily_uploads"`
	MonthlyUploads   Metric `json:"monthly_uploads"`
	ImageCount       Metric `json:"image_count"`
	Storage          Metric `json:"storage"`
	DailyBandwidth   int64  `json:"daily_bandwidth"`
	MonthlyBandwidth int64  `json:"monthly_bandwidth"`
}

// QuotaStatus reports used/limit/percentage for each dimension
func (e *Engine) QuotaStatus(ctx context.Context, subjectID, ownerID string, limits models.SubjectLimits) (*Status, error) {
	imageCount, err := e.source.ImageCount(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("authoritative image count for %s: %w", ownerID, err)
	}
	storageUsed, err := e.source.StorageBytes(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("authoritative storage bytes for %s: %w", ownerID, err)
	}

	return &Status{
		DailyUploads:     metric(e.counterOrZero(ctx, subjectID, CounterDailyUploads), limits.DailyLimit),
		MonthlyUploads:   metric(e.counterOrZero(ctx, subjectID, CounterMonthlyUploads), limits.MonthlyLimit),
		ImageCount:       metric(imageCount, limits.MaxImages),
		Storage:          metric(storageUsed, limits.MaxStorageBytes()),
		DailyBandwidth:   e.counterOrZero(ctx, subjectID, CounterDailyBandwidth),
		MonthlyBandwidth: e.counterOrZero(ctx, subjectID, CounterMonthlyBandwidth),
	}, nil
}

func (e *Engine) counterOrZero(ctx context.Context, subjectID, kind string) int64 {
	val, err := e.counters.Count(ctx, counterKey(subjectID, kind))
	if err != nil {
		e.logger.Warn("usage counter read failed, treating as zero",
			"subject_id", subjectID, "kind", kind, "error", err)
		return 0
	}
	return val
}

func (e *Engine) periodTTL(kind string) time.Duration {
	switch {
	case strings.HasPrefix(kind, "daily_"):
		return e.periods.Daily
	case strings.HasPrefix(kind, "monthly_"):
		return e.periods.Monthly
	default:
		return e.periods.Default
	}
}

func metric(used, limit int64) Metric {
	m := Metric{Used: used, Limit: limit}
	if limit > 0 {
		m.Percentage = int(used * 100 / limit)
	}
	return m
}

func counterKey(subjectID, kind string) string {
	return fmt.Sprintf("usage:%s:%s", subjectID, kind)
}
