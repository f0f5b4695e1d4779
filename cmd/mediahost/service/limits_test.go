package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelbay/mediahost/common/logger"
	"github.com/pixelbay/mediahost/common/models"
)

// fakeLimitsStore keeps blobs in memory
type fakeLimitsStore struct {
	blobs map[string][]byte
	saved int
}

func newFakeLimitsStore() *fakeLimitsStore {
	return &fakeLimitsStore{blobs: make(map[string][]byte)}
}

func (f *fakeLimitsStore) LimitsBlob(ctx context.Context, subjectID string) ([]byte, error) {
	if blob, ok := f.blobs[subjectID]; ok {
		return blob, nil
	}
	return json.Marshal(models.DefaultSubjectLimits())
}

func (f *fakeLimitsStore) SaveLimits(ctx context.Context, subjectID string, limits models.SubjectLimits) error {
	blob, err := json.Marshal(limits)
	if err != nil {
		return err
	}
	f.blobs[subjectID] = blob
	f.saved++
	return nil
}

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}

func TestApplyPatch_UpdatesSingleField(t *testing.T) {
	store := newFakeLimitsStore()
	svc := NewLimitsService(store, testLogger())

	limits, err := svc.ApplyPatch(context.Background(), "key-1", []byte(`{"daily_limit": 50}`))
	require.NoError(t, err)

	defaults := models.DefaultSubjectLimits()
	assert.Equal(t, int64(50), limits.DailyLimit)
	assert.Equal(t, defaults.MonthlyLimit, limits.MonthlyLimit, "untouched fields survive the merge")
	assert.Equal(t, defaults.MaxImages, limits.MaxImages)
	assert.Equal(t, 1, store.saved)
}

func TestApplyPatch_NestedRateLimits(t *testing.T) {
	store := newFakeLimitsStore()
	svc := NewLimitsService(store, testLogger())

	limits, err := svc.ApplyPatch(context.Background(), "key-1",
		[]byte(`{"rate_limits": {"requests_per_minute": 120}}`))
	require.NoError(t, err)

	defaults := models.DefaultSubjectLimits()
	assert.Equal(t, int64(120), limits.RateLimits.RequestsPerMinute)
	assert.Equal(t, defaults.RateLimits.RequestsPerHour, limits.RateLimits.RequestsPerHour,
		"merge patch descends into objects instead of replacing them")
}

func TestApplyPatch_InvalidResultNotPersisted(t *testing.T) {
	store := newFakeLimitsStore()
	svc := NewLimitsService(store, testLogger())

	_, err := svc.ApplyPatch(context.Background(), "key-1", []byte(`{"daily_limit": -5}`))
	assert.Error(t, err)
	assert.Equal(t, 0, store.saved, "validation failures roll back the patch")
}

func TestApplyPatch_MalformedPatchRejected(t *testing.T) {
	store := newFakeLimitsStore()
	svc := NewLimitsService(store, testLogger())

	_, err := svc.ApplyPatch(context.Background(), "key-1", []byte(`{not json`))
	assert.Error(t, err)
	assert.Equal(t, 0, store.saved)
}

func TestApplyPatch_SequentialPatchesCompose(t *testing.T) {
	store := newFakeLimitsStore()
	svc := NewLimitsService(store, testLogger())
	ctx := context.Background()

	_, err := svc.ApplyPatch(ctx, "key-1", []byte(`{"daily_limit": 50}`))
	require.NoError(t, err)
	limits, err := svc.ApplyPatch(ctx, "key-1", []byte(`{"max_images": 2000}`))
	require.NoError(t, err)

	assert.Equal(t, int64(50), limits.DailyLimit, "earlier patches persist")
	assert.Equal(t, int64(2000), limits.MaxImages)
}
