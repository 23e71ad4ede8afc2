package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldquest/fieldquest-go/internal/conf"
	"github.com/fieldquest/fieldquest-go/internal/errors"
	"github.com/fieldquest/fieldquest-go/internal/identify"
	"github.com/fieldquest/fieldquest-go/internal/retry"
	"github.com/fieldquest/fieldquest-go/internal/security"
)

// memStore is an in-memory record store mirroring the datastore error
// contract.
type memStore struct {
	mu      sync.Mutex
	records []*identify.Record
}

func (s *memStore) InsertBatch(_ context.Context, records []*identify.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func (s *memStore) find(id string) *identify.Record {
	for _, r := range s.records {
		if r.ID.String() == id {
			return r
		}
	}
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*identify.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.find(id); r != nil {
		return r, nil
	}
	return nil, errors.Newf("identification not found: %s", id).
		Category(errors.CategoryNotFound).
		Build()
}

func (s *memStore) ListByStatus(_ context.Context, status identify.Status, limit int) ([]*identify.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*identify.Record
	for _, r := range s.records {
		if r.Status == status && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) UpdateReview(_ context.Context, id string, status identify.Status, reviewerID string, notes *string) (*identify.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.find(id)
	if r == nil {
		return nil, errors.Newf("identification not found: %s", id).
			Category(errors.CategoryNotFound).
			Build()
	}
	if r.Status != identify.StatusPending {
		return nil, errors.Newf("identification %s is not pending (status %s)", id, r.Status).
			Category(errors.CategoryConflict).
			Build()
	}
	now := time.Now().UTC()
	r.Status = status
	r.ReviewerID = &reviewerID
	r.ReviewedAt = &now
	r.ReviewNotes = notes
	return r, nil
}

// stubProvider answers every image submission with a fixed confidence.
type stubProvider struct {
	confidence float64
}

func (p *stubProvider) Name() string                  { return "stub" }
func (p *stubProvider) Target() identify.Target       { return identify.TargetSpecies }
func (p *stubProvider) MediaKind() identify.MediaKind { return identify.MediaImage }

func (p *stubProvider) Classify(context.Context, *identify.MediaSubmission) (identify.NormalizedResult, error) {
	return identify.OKResult("stub", identify.TargetSpecies, "Danaus plexippus",
		identify.Float64(p.confidence), json.RawMessage(`{}`)), nil
}

func newTestController(t *testing.T, confidence float64) (*Controller, *memStore) {
	t.Helper()

	store := &memStore{}
	pipeline := identify.NewPipeline(
		identify.NewRegistry(&stubProvider{confidence: confidence}),
		retry.Policy{MaxAttempts: 1}, 0, nil)
	service := identify.NewService(store, pipeline, identify.DefaultThresholds(),
		&security.StaticAuthorizer{Allowed: map[string]bool{"educator-1": true}}, nil)

	e := echo.New()
	controller := New(e, service, &conf.Settings{}, nil)
	t.Cleanup(controller.Shutdown)
	return controller, store
}

func doRequest(c *Controller, method, path, userID string, body any) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

func submitBody() *SubmitRequest {
	return &SubmitRequest{
		MediaKind: "image",
		ImageData: base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff}),
		Targets:   []string{"species"},
	}
}

// birdStub answers audio submissions for the bird target.
type birdStub struct{}

func (p *birdStub) Name() string                  { return "bird-stub" }
func (p *birdStub) Target() identify.Target       { return identify.TargetBird }
func (p *birdStub) MediaKind() identify.MediaKind { return identify.MediaAudio }

func (p *birdStub) Classify(context.Context, *identify.MediaSubmission) (identify.NormalizedResult, error) {
	return identify.OKResult("bird-stub", identify.TargetBird, "Common Loon",
		identify.Float64(0.81), json.RawMessage(`{}`)), nil
}

func TestSubmitAudioIncludesTopResult(t *testing.T) {
	store := &memStore{}
	pipeline := identify.NewPipeline(identify.NewRegistry(&birdStub{}),
		retry.Policy{MaxAttempts: 1}, 0, nil)
	service := identify.NewService(store, pipeline, identify.DefaultThresholds(),
		&security.StaticAuthorizer{}, nil)
	controller := New(echo.New(), service, &conf.Settings{}, nil)
	t.Cleanup(controller.Shutdown)

	body := &SubmitRequest{
		MediaKind: "audio",
		AudioData: base64.StdEncoding.EncodeToString([]byte("wav-bytes")),
		Targets:   []string{"bird"},
	}
	rec := doRequest(controller, http.MethodPost, "/api/v1/identify", "user-1", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Top)
	assert.Equal(t, "Common Loon", resp.Top.Label)
}

func TestSubmitImageOmitsTopResult(t *testing.T) {
	controller, _ := newTestController(t, 0.92)

	rec := doRequest(controller, http.MethodPost, "/api/v1/identify", "user-1", submitBody())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Top)
}

func TestHealthCheck(t *testing.T) {
	controller, _ := newTestController(t, 0.9)

	rec := doRequest(controller, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestSubmitIdentification(t *testing.T) {
	controller, store := newTestController(t, 0.92)

	rec := doRequest(controller, http.MethodPost, "/api/v1/identify", "user-1", submitBody())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, identify.OutcomeOK, resp.Results[0].Outcome)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "user-1", resp.Records[0].UserID)
	assert.Equal(t, string(identify.StatusAuto), resp.Records[0].Status)
	assert.Len(t, store.records, 1)
}

func TestSubmitAcceptsDataURL(t *testing.T) {
	controller, _ := newTestController(t, 0.92)

	body := submitBody()
	body.ImageData = "data:image/jpeg;base64," + body.ImageData

	rec := doRequest(controller, http.MethodPost, "/api/v1/identify", "user-1", body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitRequiresIdentity(t *testing.T) {
	controller, _ := newTestController(t, 0.92)

	rec := doRequest(controller, http.MethodPost, "/api/v1/identify", "", submitBody())
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user identity required", resp.Message)
	assert.Len(t, resp.CorrelationID, 8)
}

func TestSubmitRejectsBadPayload(t *testing.T) {
	controller, _ := newTestController(t, 0.92)

	body := submitBody()
	body.ImageData = "%%% not base64 %%%"
	rec := doRequest(controller, http.MethodPost, "/api/v1/identify", "user-1", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = submitBody()
	bad := "not-a-uuid"
	body.ObservationID = &bad
	rec = doRequest(controller, http.MethodPost, "/api/v1/identify", "user-1", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRejectsInvalidSubmission(t *testing.T) {
	controller, _ := newTestController(t, 0.92)

	body := submitBody()
	body.Targets = nil
	rec := doRequest(controller, http.MethodPost, "/api/v1/identify", "user-1", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetIdentification(t *testing.T) {
	controller, store := newTestController(t, 0.5)

	doRequest(controller, http.MethodPost, "/api/v1/identify", "user-1", submitBody())
	require.Len(t, store.records, 1)
	id := store.records[0].ID.String()

	rec := doRequest(controller, http.MethodGet, "/api/v1/identifications/"+id, "educator-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RecordResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, string(identify.StatusPending), resp.Status)

	rec = doRequest(controller, http.MethodGet, "/api/v1/identifications/"+uuid.NewString(), "educator-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetIdentificationRequiresReviewer(t *testing.T) {
	controller, store := newTestController(t, 0.5)

	doRequest(controller, http.MethodPost, "/api/v1/identify", "user-1", submitBody())
	require.Len(t, store.records, 1)
	path := "/api/v1/identifications/" + store.records[0].ID.String()

	rec := doRequest(controller, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(controller, http.MethodGet, path, "not-an-educator", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListIdentificationsDefaultsToPending(t *testing.T) {
	controller, store := newTestController(t, 0.5)

	doRequest(controller, http.MethodPost, "/api/v1/identify", "user-1", submitBody())
	require.Len(t, store.records, 1)

	rec := doRequest(controller, http.MethodGet, "/api/v1/identifications", "educator-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status  string           `json:"status"`
		Records []RecordResponse `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(identify.StatusPending), resp.Status)
	assert.Len(t, resp.Records, 1)

	rec = doRequest(controller, http.MethodGet, "/api/v1/identifications?status=approved&limit=5", "educator-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(identify.StatusApproved), resp.Status)
	assert.Empty(t, resp.Records)

	rec = doRequest(controller, http.MethodGet, "/api/v1/identifications?status=bogus", "educator-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(controller, http.MethodGet, "/api/v1/identifications?limit=nope", "educator-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListIdentificationsRequiresReviewer(t *testing.T) {
	controller, _ := newTestController(t, 0.5)

	rec := doRequest(controller, http.MethodGet, "/api/v1/identifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(controller, http.MethodGet, "/api/v1/identifications", "not-an-educator", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReviewIdentification(t *testing.T) {
	controller, store := newTestController(t, 0.5)

	doRequest(controller, http.MethodPost, "/api/v1/identify", "user-1", submitBody())
	require.Len(t, store.records, 1)
	id := store.records[0].ID.String()
	reviewPath := fmt.Sprintf("/api/v1/identifications/%s/review", id)

	notes := "looks right"
	rec := doRequest(controller, http.MethodPost, reviewPath, "educator-1",
		&ReviewBody{Decision: "approved", Notes: &notes})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RecordResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(identify.StatusApproved), resp.Status)
	require.NotNil(t, resp.ReviewerID)
	assert.Equal(t, "educator-1", *resp.ReviewerID)
	require.NotNil(t, resp.ReviewNotes)
	assert.Equal(t, notes, *resp.ReviewNotes)

	// a second decision conflicts
	rec = doRequest(controller, http.MethodPost, reviewPath, "educator-1",
		&ReviewBody{Decision: "rejected"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReviewAuthorization(t *testing.T) {
	controller, store := newTestController(t, 0.5)

	doRequest(controller, http.MethodPost, "/api/v1/identify", "user-1", submitBody())
	require.Len(t, store.records, 1)
	reviewPath := fmt.Sprintf("/api/v1/identifications/%s/review", store.records[0].ID.String())

	rec := doRequest(controller, http.MethodPost, reviewPath, "", &ReviewBody{Decision: "approved"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(controller, http.MethodPost, reviewPath, "not-an-educator", &ReviewBody{Decision: "approved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(controller, http.MethodPost, reviewPath, "educator-1", &ReviewBody{Decision: "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, identify.StatusPending, store.records[0].Status)
}

func TestReviewUnknownRecord(t *testing.T) {
	controller, _ := newTestController(t, 0.5)

	path := fmt.Sprintf("/api/v1/identifications/%s/review", uuid.NewString())
	rec := doRequest(controller, http.MethodPost, path, "educator-1", &ReviewBody{Decision: "approved"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
