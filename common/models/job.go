package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a processing job
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobRetrying   JobStatus = "retrying"
)

// CanTransition reports whether moving to the given status is a legal
// step in the job state machine. Completed is terminal; failed is terminal
// unless the retry ceiling permits another attempt.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobQueued:
		return to == JobProcessing
	case JobProcessing:
		return to == JobCompleted || to == JobFailed
	case JobFailed:
		return to == JobRetrying
	case JobRetrying:
		return to == JobProcessing
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions on
// its own. A failed job is only re-dispatched while retries remain, which
// the pool decides; from the state machine's view failed may still move
// to retrying.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted
}

// JobKind is the type of processing work
type JobKind string

const (
	KindVariantGeneration JobKind = "variant_generation"
)

// OutputFormats selects the full-size re-encodes to produce
type OutputFormats struct {
	WebP bool `json:"webp"`
	AVIF bool `json:"avif"`
}

// JobParams describes the variant work for one accepted upload
type JobParams struct {
	SourcePath     string         `json:"source_path"`
	ThumbnailSizes []uint         `json:"thumbnail_sizes"`
	CustomSizes    []uint         `json:"custom_sizes"`
	Formats        OutputFormats  `json:"formats"`
	Quality        map[string]int `json:"quality"`
}

// MaxVariantDimension bounds requested widths; anything larger is a
// client error, not work for the codec.
const MaxVariantDimension = 8192

// Validate rejects parameter sets no worker could act on. Jobs with
// invalid parameters are never dispatched.
func (p JobParams) Validate() error {
	if p.SourcePath == "" {
		return fmt.Errorf("source path is required")
	}
	for _, size := range append(append([]uint{}, p.ThumbnailSizes...), p.CustomSizes...) {
		if size == 0 || size > MaxVariantDimension {
			return fmt.Errorf("variant size %d out of range (1..%d)", size, MaxVariantDimension)
		}
	}
	for format, q := range p.Quality {
		if q < 1 || q > 100 {
			return fmt.Errorf("quality %d for %s out of range (1..100)", q, format)
		}
	}
	return nil
}

// ProcessingJob is one unit of background work: turn an accepted upload
// into its derived variants. Owned exclusively by the worker that dequeues
// it until it reaches a terminal state.
type ProcessingJob struct {
	ID           uuid.UUID  `json:"id"`
	SubjectID    string     `json:"subject_id"`
	ImageID      uuid.UUID  `json:"image_id"`
	Kind         JobKind    `json:"kind"`
	Params       JobParams  `json:"params"`
	Status       JobStatus  `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
}

// VariantKind classifies a derived artifact
type VariantKind string

const (
	VariantThumbnail VariantKind = "thumbnail"
	VariantWebP      VariantKind = "webp"
	VariantAVIF      VariantKind = "avif"
	VariantOptimized VariantKind = "optimized"
)

// ArtifactVariant is the output of one completed generation step. The
// core hands these to the persistence collaborator and does not own them
// afterwards.
type ArtifactVariant struct {
	Kind      VariantKind `json:"kind"`
	Width     uint        `json:"width"`
	Height    uint        `json:"height"`
	Format    string      `json:"format"`
	SizeBytes int64       `json:"size_bytes"`
	Path      string      `json:"path"`
	URL       string      `json:"url"`
}
