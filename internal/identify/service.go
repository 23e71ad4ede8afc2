package identify

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/fieldquest/fieldquest-go/internal/errors"
	"github.com/fieldquest/fieldquest-go/internal/observability/metrics"
	"github.com/fieldquest/fieldquest-go/internal/security"
)

const (
	// maxListLimit caps how many records a single listing returns.
	maxListLimit = 100
	// maxReviewNotesLen bounds reviewer notes, counted in runes.
	maxReviewNotesLen = 500
)

// Service is the identification façade: it validates submissions, runs the
// provider fan-out, routes results by confidence, persists the survivors,
// and drives the review state machine.
type Service struct {
	store      Store
	pipeline   *Pipeline
	thresholds Thresholds
	authorizer security.Authorizer
	metrics    *metrics.PipelineMetrics
}

// NewService wires the identification service. metrics may be nil.
func NewService(store Store, pipeline *Pipeline, thresholds Thresholds, authorizer security.Authorizer, m *metrics.PipelineMetrics) *Service {
	return &Service{
		store:      store,
		pipeline:   pipeline,
		thresholds: thresholds,
		authorizer: authorizer,
		metrics:    m,
	}
}

// SubmissionResult carries everything one submission produced: the full
// normalized result set in fan-out order, plus the records that were
// persisted for the ok-tagged results.
type SubmissionResult struct {
	Results []NormalizedResult `json:"results"`
	Records []*Record          `json:"records"`
}

// SubmitForIdentification runs the full pipeline for one media submission.
// Every planned provider contributes exactly one result; only ok-tagged
// results persist, all as a single atomic batch.
func (s *Service) SubmitForIdentification(ctx context.Context, sub *MediaSubmission) (*SubmissionResult, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	results := s.pipeline.Run(ctx, sub)

	now := time.Now().UTC()
	records := make([]*Record, 0, len(results))
	for _, result := range results {
		decision := Route(result, s.thresholds)
		s.metrics.RecordRouteDecision(string(result.Target), string(decision.Status), decision.Reason)
		if !decision.Persist {
			continue
		}
		records = append(records, &Record{
			ID:            uuid.New(),
			UserID:        sub.UserID,
			ObservationID: sub.ObservationID,
			FieldSiteID:   sub.FieldSiteID,
			MediaID:       sub.MediaID,
			Provider:      result.Provider,
			Target:        result.Target,
			Label:         result.Label,
			Confidence:    result.Confidence,
			Status:        decision.Status,
			Raw:           result.Raw,
			CreatedAt:     now,
		})
	}

	if len(records) > 0 {
		if err := s.store.InsertBatch(ctx, records); err != nil {
			return nil, err
		}
	}

	logger.Info("submission processed",
		"user_id", sub.UserID,
		"media_kind", sub.Kind,
		"providers", len(results),
		"persisted", len(records))

	return &SubmissionResult{Results: results, Records: records}, nil
}

// Get fetches a single record by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.store.Get(ctx, id)
}

// ListByStatus returns records in the given status, newest first. A
// non-positive or oversized limit is clamped to the listing cap.
func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]*Record, error) {
	if !status.Valid() {
		return nil, errors.Newf("invalid status %q", status).
			Component("identify").
			Category(errors.CategoryValidation).
			Build()
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	return s.store.ListByStatus(ctx, status, limit)
}

// ListPending returns the review queue.
func (s *Service) ListPending(ctx context.Context, limit int) ([]*Record, error) {
	return s.ListByStatus(ctx, StatusPending, limit)
}

// CanReview reports whether the user holds the reviewer role.
func (s *Service) CanReview(userID string) bool {
	return userID != "" && s.authorizer.CanReview(userID)
}

// ReviewRequest is one reviewer action against a pending record.
type ReviewRequest struct {
	RecordID   string
	ReviewerID string
	Decision   Decision
	Notes      *string
}

// Review applies a reviewer decision. The caller must hold the reviewer
// role; the transition only succeeds while the record is still pending, so
// two concurrent reviews of the same record resolve to exactly one winner.
func (s *Service) Review(ctx context.Context, req ReviewRequest) (*Record, error) {
	if err := s.validateReview(req); err != nil {
		s.metrics.RecordReview(string(req.Decision), false)
		return nil, err
	}

	record, err := s.store.UpdateReview(ctx, req.RecordID, req.Decision.Status(), req.ReviewerID, req.Notes)
	s.metrics.RecordReview(string(req.Decision), err == nil)
	if err != nil {
		return nil, err
	}

	logger.Info("record reviewed",
		"record_id", req.RecordID,
		"reviewer_id", req.ReviewerID,
		"decision", req.Decision)
	return record, nil
}

func (s *Service) validateReview(req ReviewRequest) error {
	if req.ReviewerID == "" || !s.authorizer.CanReview(req.ReviewerID) {
		return errors.Newf("user %q is not permitted to review identifications", req.ReviewerID).
			Component("identify").
			Category(errors.CategoryAuthorization).
			Context("record_id", req.RecordID).
			Build()
	}
	if req.RecordID == "" {
		return errors.Newf("record id is required").
			Component("identify").
			Category(errors.CategoryValidation).
			Build()
	}
	if !req.Decision.Valid() {
		return errors.Newf("invalid review decision %q", req.Decision).
			Component("identify").
			Category(errors.CategoryValidation).
			Context("record_id", req.RecordID).
			Build()
	}
	if req.Notes != nil && utf8.RuneCountInString(*req.Notes) > maxReviewNotesLen {
		return errors.Newf("review notes exceed %d characters", maxReviewNotesLen).
			Component("identify").
			Category(errors.CategoryValidation).
			Context("record_id", req.RecordID).
			Build()
	}
	return nil
}
