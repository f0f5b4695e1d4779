package service

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/pixelbay/mediahost/common/logger"
	"github.com/pixelbay/mediahost/common/models"
)

// LimitsStore is the persistence surface for limit blobs
type LimitsStore interface {
	LimitsBlob(ctx context.Context, subjectID string) ([]byte, error)
	SaveLimits(ctx context.Context, subjectID string, limits models.SubjectLimits) error
}

// LimitsService applies administrative limit changes as RFC 7386 merge
// patches against the stored blob, so operators update single fields
// without resending the whole document.
type LimitsService struct {
	subjects LimitsStore
	log      *logger.Logger
}

// NewLimitsService creates a limits service
func NewLimitsService(subjects LimitsStore, log *logger.Logger) *LimitsService {
	return &LimitsService{subjects: subjects, log: log}
}

// Get returns the subject's effective limits
func (s *LimitsService) Get(ctx context.Context, subjectID string) (models.SubjectLimits, error) {
	blob, err := s.subjects.LimitsBlob(ctx, subjectID)
	if err != nil {
		return models.SubjectLimits{}, err
	}

	limits := models.DefaultSubjectLimits()
	if err := json.Unmarshal(blob, &limits); err != nil {
		return models.SubjectLimits{}, fmt.Errorf("malformed limits for subject %s: %w", subjectID, err)
	}
	return limits, nil
}

// ApplyPatch merges the patch into the stored limits, validates the
// result and saves it. Nothing is persisted if validation fails.
func (s *LimitsService) ApplyPatch(ctx context.Context, subjectID string, patch []byte) (models.SubjectLimits, error) {
	current, err := s.subjects.LimitsBlob(ctx, subjectID)
	if err != nil {
		return models.SubjectLimits{}, err
	}

	merged, err := jsonpatch.MergePatch(current, patch)
	if err != nil {
		return models.SubjectLimits{}, fmt.Errorf("apply limits patch for subject %s: %w", subjectID, err)
	}

	limits := models.DefaultSubjectLimits()
	if err := json.Unmarshal(merged, &limits); err != nil {
		return models.SubjectLimits{}, fmt.Errorf("patched limits for subject %s are malformed: %w", subjectID, err)
	}
	if err := limits.Validate(); err != nil {
		return models.SubjectLimits{}, fmt.Errorf("patched limits for subject %s are invalid: %w", subjectID, err)
	}

	if err := s.subjects.SaveLimits(ctx, subjectID, limits); err != nil {
		return models.SubjectLimits{}, err
	}

	s.log.Info("subject limits updated", "subject_id", subjectID)
	return limits, nil
}
