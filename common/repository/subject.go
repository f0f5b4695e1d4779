package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pixelbay/mediahost/common/db"
	"github.com/pixelbay/mediahost/common/models"
)

// SubjectRepository handles database operations for API-key subjects and
// their limits blobs. Limits are stored as JSON so new fields roll out
// without a migration; parsing and validation happen here once per
// resolve, never at check sites.
type SubjectRepository struct {
	db *db.DB
}

// NewSubjectRepository creates a new subject repository
func NewSubjectRepository(database *db.DB) *SubjectRepository {
	return &SubjectRepository{db: database}
}

// ErrSubjectNotFound marks a lookup of an unknown or revoked key
var ErrSubjectNotFound = fmt.Errorf("subject not found")

// Resolve loads the subject for an API key and materializes its typed
// limits. A missing or null blob gets the defaults; a malformed blob is
// an error rather than a silent fallback.
func (r *SubjectRepository) Resolve(ctx context.Context, apiKey string) (*models.Subject, error) {
	query := `
		SELECT id, owner_id, limits_json
		FROM api_keys
		WHERE id = $1 AND revoked_at IS NULL
	`

	var (
		id      string
		ownerID string
		blob    []byte
	)
	err := r.db.QueryRow(ctx, query, apiKey).Scan(&id, &ownerID, &blob)
	if err == pgx.ErrNoRows {
		return nil, ErrSubjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve subject: %w", err)
	}

	limits := models.DefaultSubjectLimits()
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &limits); err != nil {
			return nil, fmt.Errorf("malformed limits for subject %s: %w", id, err)
		}
		if err := limits.Validate(); err != nil {
			return nil, fmt.Errorf("invalid limits for subject %s: %w", id, err)
		}
	}

	return &models.Subject{
		ID:      id,
		OwnerID: ownerID,
		Limits:  limits,
	}, nil
}

// LimitsBlob returns the raw stored limits JSON for a subject; a null
// blob returns the serialized defaults so merge patches have a base.
func (r *SubjectRepository) LimitsBlob(ctx context.Context, subjectID string) ([]byte, error) {
	query := `
		SELECT limits_json
		FROM api_keys
		WHERE id = $1 AND revoked_at IS NULL
	`

	var blob []byte
	err := r.db.QueryRow(ctx, query, subjectID).Scan(&blob)
	if err == pgx.ErrNoRows {
		return nil, ErrSubjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load limits for subject %s: %w", subjectID, err)
	}

	if len(blob) == 0 {
		defaults, err := json.Marshal(models.DefaultSubjectLimits())
		if err != nil {
			return nil, fmt.Errorf("failed to encode default limits: %w", err)
		}
		return defaults, nil
	}
	return blob, nil
}

// SaveLimits stores validated limits as the subject's new blob
func (r *SubjectRepository) SaveLimits(ctx context.Context, subjectID string, limits models.SubjectLimits) error {
	blob, err := json.Marshal(limits)
	if err != nil {
		return fmt.Errorf("failed to encode limits: %w", err)
	}

	query := `
		UPDATE api_keys
		SET limits_json = $2
		WHERE id = $1 AND revoked_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, subjectID, blob)
	if err != nil {
		return fmt.Errorf("failed to save limits for subject %s: %w", subjectID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubjectNotFound
	}
	return nil
}
