package identify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldquest/fieldquest-go/internal/errors"
	"github.com/fieldquest/fieldquest-go/internal/security"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	mu      sync.Mutex
	records map[string]*Record
	order   []string
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*Record)}
}

func (s *memStore) InsertBatch(ctx context.Context, records []*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		clone := *r
		s.records[r.ID.String()] = &clone
		s.order = append(s.order, r.ID.String())
	}
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, errors.Newf("identification not found: %s", id).
			Category(errors.CategoryNotFound).
			Component("datastore").
			Build()
	}
	clone := *r
	return &clone, nil
}

func (s *memStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.records[s.order[i]]
		if r.Status == status {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memStore) UpdateReview(ctx context.Context, id string, status Status, reviewerID string, notes *string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, errors.Newf("identification not found: %s", id).
			Category(errors.CategoryNotFound).
			Component("datastore").
			Build()
	}
	if r.Status != StatusPending {
		return nil, errors.Newf("identification %s is not pending (status %s)", id, r.Status).
			Category(errors.CategoryConflict).
			Component("datastore").
			Build()
	}
	now := time.Now().UTC()
	r.Status = status
	r.ReviewerID = &reviewerID
	r.ReviewedAt = &now
	r.ReviewNotes = notes
	clone := *r
	return &clone, nil
}

func newTestService(store Store, providers ...Provider) *Service {
	pipeline := NewPipeline(NewRegistry(providers...), fastRetryPolicy(), 0, nil)
	authorizer := &security.StaticAuthorizer{Allowed: map[string]bool{"educator-1": true}}
	return NewService(store, pipeline, DefaultThresholds(), authorizer, nil)
}

func TestSubmitForIdentificationAutoAccepts(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, okProvider("iNaturalist", TargetSpecies, "Danaus plexippus", 0.92))

	result, err := svc.SubmitForIdentification(context.Background(), validImageSubmission())
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	require.Len(t, result.Records, 1)

	record := result.Records[0]
	assert.Equal(t, StatusAuto, record.Status)
	assert.Equal(t, "Danaus plexippus", record.Label)
	assert.Equal(t, "user-1", record.UserID)
	require.NotNil(t, record.Confidence)
	assert.InDelta(t, 0.92, *record.Confidence, 1e-9)

	stored, err := store.Get(context.Background(), record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, StatusAuto, stored.Status)
}

func TestSubmitForIdentificationRoutesLowConfidenceToPending(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, okProvider("iNaturalist", TargetSpecies, "Danaus plexippus", 0.60))

	result, err := svc.SubmitForIdentification(context.Background(), validImageSubmission())
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, StatusPending, result.Records[0].Status)

	queue, err := svc.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, result.Records[0].ID, queue[0].ID)
}

func TestSubmitForIdentificationKeepsErrorResultsOutOfStore(t *testing.T) {
	t.Parallel()

	netErr := errors.Newf("connection refused").
		Category(errors.CategoryNetwork).
		Component("identify").
		Build()

	store := newMemStore()
	svc := newTestService(store,
		failingProvider("down", TargetSpecies, netErr),
		okProvider("macro", TargetMacro, "Mayfly Nymph", 0.71),
	)

	sub := validImageSubmission()
	sub.Targets = []Target{TargetSpecies, TargetMacro}

	result, err := svc.SubmitForIdentification(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "macro", result.Records[0].Provider)
	assert.Len(t, store.records, 1)
}

func TestSubmitForIdentificationRejectsInvalidSubmission(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMemStore())
	sub := validImageSubmission()
	sub.UserID = ""

	_, err := svc.SubmitForIdentification(context.Background(), sub)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestReviewApprovesPendingRecord(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, okProvider("iNaturalist", TargetSpecies, "Danaus plexippus", 0.60))

	result, err := svc.SubmitForIdentification(context.Background(), validImageSubmission())
	require.NoError(t, err)
	recordID := result.Records[0].ID.String()

	notes := "wing pattern matches"
	reviewed, err := svc.Review(context.Background(), ReviewRequest{
		RecordID:   recordID,
		ReviewerID: "educator-1",
		Decision:   DecisionApproved,
		Notes:      &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewerID)
	assert.Equal(t, "educator-1", *reviewed.ReviewerID)
	require.NotNil(t, reviewed.ReviewedAt)
	require.NotNil(t, reviewed.ReviewNotes)
	assert.Equal(t, notes, *reviewed.ReviewNotes)
}

func TestReviewRejectsUnauthorizedReviewer(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, okProvider("iNaturalist", TargetSpecies, "Danaus plexippus", 0.60))

	result, err := svc.SubmitForIdentification(context.Background(), validImageSubmission())
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), ReviewRequest{
		RecordID:   result.Records[0].ID.String(),
		ReviewerID: "student-1",
		Decision:   DecisionApproved,
	})
	require.Error(t, err)
	assert.True(t, errors.IsAuthorization(err))

	// record is untouched
	stored, err := svc.Get(context.Background(), result.Records[0].ID.String())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestReviewSecondDecisionConflicts(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, okProvider("iNaturalist", TargetSpecies, "Danaus plexippus", 0.60))

	result, err := svc.SubmitForIdentification(context.Background(), validImageSubmission())
	require.NoError(t, err)
	recordID := result.Records[0].ID.String()

	_, err = svc.Review(context.Background(), ReviewRequest{
		RecordID: recordID, ReviewerID: "educator-1", Decision: DecisionApproved,
	})
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), ReviewRequest{
		RecordID: recordID, ReviewerID: "educator-1", Decision: DecisionRejected,
	})
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}

func TestReviewValidation(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMemStore())

	t.Run("invalid decision", func(t *testing.T) {
		t.Parallel()
		_, err := svc.Review(context.Background(), ReviewRequest{
			RecordID: "some-id", ReviewerID: "educator-1", Decision: "escalated",
		})
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("missing record id", func(t *testing.T) {
		t.Parallel()
		_, err := svc.Review(context.Background(), ReviewRequest{
			ReviewerID: "educator-1", Decision: DecisionApproved,
		})
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("oversized notes", func(t *testing.T) {
		t.Parallel()
		notes := strings.Repeat("x", maxReviewNotesLen+1)
		_, err := svc.Review(context.Background(), ReviewRequest{
			RecordID: "some-id", ReviewerID: "educator-1", Decision: DecisionApproved, Notes: &notes,
		})
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})
}

func TestListByStatusClampsLimit(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, okProvider("iNaturalist", TargetSpecies, "Danaus plexippus", 0.60))

	for range maxListLimit + 20 {
		_, err := svc.SubmitForIdentification(context.Background(), validImageSubmission())
		require.NoError(t, err)
	}

	records, err := svc.ListByStatus(context.Background(), StatusPending, 0)
	require.NoError(t, err)
	assert.Len(t, records, maxListLimit)

	records, err = svc.ListByStatus(context.Background(), StatusPending, maxListLimit+50)
	require.NoError(t, err)
	assert.Len(t, records, maxListLimit)
}

func TestListByStatusRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMemStore())
	_, err := svc.ListByStatus(context.Background(), "archived", 10)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}
