package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pixelbay/mediahost/common/db"
	"github.com/pixelbay/mediahost/common/models"
)

// ImageRepository handles database operations for image records. It is
// also the authoritative usage source for the quota engine: live counts
// and storage sums come from here, not from the fast counters, because
// they must reflect deletions.
type ImageRepository struct {
	db *db.DB
}

// NewImageRepository creates a new image repository
func NewImageRepository(database *db.DB) *ImageRepository {
	return &ImageRepository{db: database}
}

// Create inserts a new image record
func (r *ImageRepository) Create(ctx context.Context, img *models.Image) error {
	query := `
		INSERT INTO images (id, owner_id, sha256, mime, width, height, orig_size_bytes, storage_path, is_public, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		img.ID,
		img.OwnerID,
		img.SHA256,
		img.Mime,
		img.Width,
		img.Height,
		img.OrigSizeBytes,
		img.StoragePath,
		img.IsPublic,
		img.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}

	return nil
}

// GetByID retrieves a live image by its ID
func (r *ImageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	query := `
		SELECT id, owner_id, sha256, mime, width, height, orig_size_bytes, storage_path, is_public, created_at, deleted_at
		FROM images
		WHERE id = $1 AND deleted_at IS NULL
	`

	img := &models.Image{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&img.ID,
		&img.OwnerID,
		&img.SHA256,
		&img.Mime,
		&img.Width,
		&img.Height,
		&img.OrigSizeBytes,
		&img.StoragePath,
		&img.IsPublic,
		&img.CreatedAt,
		&img.DeletedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("image %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return img, nil
}

// GetBySHA256 retrieves an owner's live image by content hash, for
// duplicate detection on upload
func (r *ImageRepository) GetBySHA256(ctx context.Context, ownerID, sha256 string) (*models.Image, bool, error) {
	query := `
		SELECT id, owner_id, sha256, mime, width, height, orig_size_bytes, storage_path, is_public, created_at, deleted_at
		FROM images
		WHERE owner_id = $1 AND sha256 = $2 AND deleted_at IS NULL
	`

	img := &models.Image{}
	err := r.db.QueryRow(ctx, query, ownerID, sha256).Scan(
		&img.ID,
		&img.OwnerID,
		&img.SHA256,
		&img.Mime,
		&img.Width,
		&img.Height,
		&img.OrigSizeBytes,
		&img.StoragePath,
		&img.IsPublic,
		&img.CreatedAt,
		&img.DeletedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get image by hash: %w", err)
	}

	return img, true, nil
}

// SoftDelete marks an image deleted; counts and sums stop including it
func (r *ImageRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE images
		SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// ImageCount returns the owner's live image count
func (r *ImageRepository) ImageCount(ctx context.Context, ownerID string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM images
		WHERE owner_id = $1 AND deleted_at IS NULL
	`

	var count int64
	if err := r.db.QueryRow(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}
	return count, nil
}

// StorageBytes returns the owner's live storage consumption
func (r *ImageRepository) StorageBytes(ctx context.Context, ownerID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(orig_size_bytes), 0)
		FROM images
		WHERE owner_id = $1 AND deleted_at IS NULL
	`

	var total int64
	if err := r.db.QueryRow(ctx, query, ownerID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum storage bytes: %w", err)
	}
	return total, nil
}

// PersistVariants stores the variant list for an image as JSON. Variants
// are replaced wholesale; generation steps are deterministic so a retry
// writes the same set.
func (r *ImageRepository) PersistVariants(ctx context.Context, job *models.ProcessingJob, variants []models.ArtifactVariant) error {
	payload, err := json.Marshal(variants)
	if err != nil {
		return fmt.Errorf("failed to encode variants: %w", err)
	}

	query := `
		UPDATE images
		SET variants = $2
		WHERE id = $1 AND deleted_at IS NULL
	`

	if _, err := r.db.Exec(ctx, query, job.ImageID, payload); err != nil {
		return fmt.Errorf("failed to persist variants for image %s: %w", job.ImageID, err)
	}
	return nil
}

// Variants loads the stored variant list for an image
func (r *ImageRepository) Variants(ctx context.Context, imageID uuid.UUID) ([]models.ArtifactVariant, error) {
	query := `
		SELECT COALESCE(variants, '[]'::jsonb)
		FROM images
		WHERE id = $1 AND deleted_at IS NULL
	`

	var payload []byte
	if err := r.db.QueryRow(ctx, query, imageID).Scan(&payload); err != nil {
		return nil, fmt.Errorf("failed to load variants for image %s: %w", imageID, err)
	}

	var variants []models.ArtifactVariant
	if err := json.Unmarshal(payload, &variants); err != nil {
		return nil, fmt.Errorf("failed to decode variants for image %s: %w", imageID, err)
	}
	return variants, nil
}
