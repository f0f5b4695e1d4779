package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pixelbay/mediahost/common/config"
	"github.com/pixelbay/mediahost/common/jobs"
	"github.com/pixelbay/mediahost/common/logger"
	"github.com/pixelbay/mediahost/common/models"
	"github.com/pixelbay/mediahost/common/quota"
	"github.com/pixelbay/mediahost/common/repository"
)

// UploadService accepts an upload, records it and queues variant
// generation. Quota is checked speculatively before any side effect and
// recorded only after the image record exists, so a crash between the two
// under-counts rather than over-counts.
type UploadService struct {
	engine     *quota.Engine
	pool       *jobs.Pool
	images     *repository.ImageRepository
	usage      *repository.UsageRepository
	processing config.ProcessingConfig
	log        *logger.Logger
}

// NewUploadService creates an upload service
func NewUploadService(
	engine *quota.Engine,
	pool *jobs.Pool,
	images *repository.ImageRepository,
	usage *repository.UsageRepository,
	processing config.ProcessingConfig,
	log *logger.Logger,
) *UploadService {
	return &UploadService{
		engine:     engine,
		pool:       pool,
		images:     images,
		usage:      usage,
		processing: processing,
		log:        log,
	}
}

// SubmitRequest describes one accepted upload ready for registration
type SubmitRequest struct {
	SHA256         string               `json:"sha256"`
	Mime           string               `json:"mime"`
	Width          int                  `json:"width"`
	Height         int                  `json:"height"`
	SizeBytes      int64                `json:"size_bytes"`
	StoragePath    string               `json:"storage_path"`
	IsPublic       bool                 `json:"is_public"`
	ThumbnailSizes []uint               `json:"thumbnail_sizes"`
	CustomSizes    []uint               `json:"custom_sizes"`
	Formats        models.OutputFormats `json:"formats"`
	Quality        map[string]int       `json:"quality"`
}

// SubmitResult reports the created image and its processing job
type SubmitResult struct {
	ImageID   uuid.UUID `json:"image_id"`
	JobID     uuid.UUID `json:"job_id"`
	Duplicate bool      `json:"duplicate"`
}

// QuotaDeniedError carries the violations of a denied quota check
type QuotaDeniedError struct {
	Result *quota.CheckResult
}

func (e *QuotaDeniedError) Error() string {
	return fmt.Sprintf("quota exceeded: %d violation(s)", len(e.Result.Violations))
}

// Submit runs the quota check, registers the image, queues variant
// generation and records usage. A duplicate upload (same owner, same
// content hash) returns the existing image without consuming quota.
func (s *UploadService) Submit(ctx context.Context, sub *models.Subject, req SubmitRequest) (*SubmitResult, error) {
	if existing, found, err := s.images.GetBySHA256(ctx, sub.OwnerID, req.SHA256); err != nil {
		return nil, fmt.Errorf("duplicate lookup: %w", err)
	} else if found {
		s.log.Debug("duplicate upload", "subject_id", sub.ID, "image_id", existing.ID)
		return &SubmitResult{ImageID: existing.ID, Duplicate: true}, nil
	}

	check, err := s.engine.CheckQuota(ctx, sub.ID, sub.OwnerID, req.SizeBytes, sub.Limits)
	if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if !check.Allowed {
		return nil, &QuotaDeniedError{Result: check}
	}

	img := &models.Image{
		ID:            uuid.New(),
		OwnerID:       sub.OwnerID,
		SHA256:        req.SHA256,
		Mime:          req.Mime,
		Width:         req.Width,
		Height:        req.Height,
		OrigSizeBytes: req.SizeBytes,
		StoragePath:   req.StoragePath,
		IsPublic:      req.IsPublic,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.images.Create(ctx, img); err != nil {
		return nil, fmt.Errorf("create image record: %w", err)
	}

	thumbnailSizes := req.ThumbnailSizes
	if len(thumbnailSizes) == 0 {
		thumbnailSizes = s.processing.ThumbnailSizes
	}
	jobID, err := s.pool.Enqueue(ctx, sub.ID, img.ID, models.JobParams{
		SourcePath:     req.StoragePath,
		ThumbnailSizes: thumbnailSizes,
		CustomSizes:    req.CustomSizes,
		Formats:        req.Formats,
		Quality:        req.Quality,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue processing job: %w", err)
	}

	// Usage recording is best-effort after the fact: the upload already
	// happened, so a counter failure must not unwind it
	if err := s.engine.RecordUpload(ctx, sub.ID, req.SizeBytes); err != nil {
		s.log.Warn("usage counters not updated", "subject_id", sub.ID, "error", err)
	}
	if err := s.usage.Record(ctx, sub.ID, 1, 0, 1); err != nil {
		s.log.Warn("durable usage rollup not updated", "subject_id", sub.ID, "error", err)
	}

	s.log.Info("upload accepted",
		"subject_id", sub.ID,
		"image_id", img.ID,
		"job_id", jobID,
		"size_bytes", req.SizeBytes)

	return &SubmitResult{ImageID: img.ID, JobID: jobID}, nil
}

// Delete soft-deletes an image; quota counts reflect it immediately
func (s *UploadService) Delete(ctx context.Context, sub *models.Subject, imageID uuid.UUID) error {
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return err
	}
	if img.OwnerID != sub.OwnerID {
		return fmt.Errorf("image %s does not belong to subject %s", imageID, sub.ID)
	}
	return s.images.SoftDelete(ctx, imageID)
}
