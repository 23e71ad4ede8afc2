// internal/api/identifications.go
package api

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fieldquest/fieldquest-go/internal/identify"
)

// SubmitRequest is the request body for POST /identify. Media payloads are
// base64 encoded; data URLs are tolerated and stripped to their payload.
type SubmitRequest struct {
	MediaKind     string   `json:"media_kind"`
	ImageData     string   `json:"image_data,omitempty"`
	AudioData     string   `json:"audio_data,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	ObservationID *string  `json:"observation_id,omitempty"`
	FieldSiteID   *string  `json:"field_site_id,omitempty"`
	MediaID       *string  `json:"media_id,omitempty"`
	Targets       []string `json:"targets"`
}

// SubmitResponse carries the normalized result set and the persisted records.
// Top is the best-confidence successful result, set for audio submissions
// where callers typically want a single answer.
type SubmitResponse struct {
	Results []identify.NormalizedResult `json:"results"`
	Records []RecordResponse            `json:"records"`
	Top     *identify.NormalizedResult  `json:"top,omitempty"`
}

// topResult picks the successful result with the highest confidence.
func topResult(results []identify.NormalizedResult) *identify.NormalizedResult {
	var best *identify.NormalizedResult
	for i := range results {
		r := &results[i]
		if r.Outcome != identify.OutcomeOK || r.Confidence == nil {
			continue
		}
		if best == nil || *r.Confidence > *best.Confidence {
			best = r
		}
	}
	return best
}

// ReviewBody is the request body for the review endpoint.
type ReviewBody struct {
	Decision string  `json:"decision"`
	Notes    *string `json:"notes,omitempty"`
}

// RecordResponse is the JSON shape of a persisted identification record.
type RecordResponse struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	ObservationID *string         `json:"observation_id,omitempty"`
	FieldSiteID   *string         `json:"field_site_id,omitempty"`
	MediaID       *string         `json:"media_id,omitempty"`
	Provider      string          `json:"provider"`
	Target        string          `json:"target"`
	Label         string          `json:"label"`
	Confidence    *float64        `json:"confidence,omitempty"`
	Status        string          `json:"status"`
	Raw           json.RawMessage `json:"raw,omitempty"`
	ReviewerID    *string         `json:"reviewer_id,omitempty"`
	ReviewedAt    *string         `json:"reviewed_at,omitempty"`
	ReviewNotes   *string         `json:"review_notes,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

func toRecordResponse(r *identify.Record) RecordResponse {
	resp := RecordResponse{
		ID:            r.ID.String(),
		UserID:        r.UserID,
		ObservationID: uuidString(r.ObservationID),
		FieldSiteID:   uuidString(r.FieldSiteID),
		MediaID:       uuidString(r.MediaID),
		Provider:      r.Provider,
		Target:        string(r.Target),
		Label:         r.Label,
		Confidence:    r.Confidence,
		Status:        string(r.Status),
		Raw:           r.Raw,
		ReviewerID:    r.ReviewerID,
		ReviewNotes:   r.ReviewNotes,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
	}
	if r.ReviewedAt != nil {
		reviewed := r.ReviewedAt.Format(time.RFC3339)
		resp.ReviewedAt = &reviewed
	}
	return resp
}

func toRecordResponses(records []*identify.Record) []RecordResponse {
	out := make([]RecordResponse, len(records))
	for i, r := range records {
		out[i] = toRecordResponse(r)
	}
	return out
}

// SubmitIdentification handles POST /api/v1/identify
func (c *Controller) SubmitIdentification(ctx echo.Context) error {
	userID := c.actor(ctx)
	if userID == "" {
		return c.HandleError(ctx, nil, "user identity required", http.StatusUnauthorized)
	}

	var req SubmitRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}

	sub, err := c.buildSubmission(&req, userID)
	if err != nil {
		return c.HandleError(ctx, err, "invalid submission", http.StatusBadRequest)
	}

	result, err := c.Service.SubmitForIdentification(ctx.Request().Context(), sub)
	if err != nil {
		return c.HandleError(ctx, err, "identification failed", 0)
	}

	c.logAPIRequest(ctx, slog.LevelInfo, "submission processed",
		"user_id", userID,
		"media_kind", req.MediaKind,
		"results", len(result.Results),
		"persisted", len(result.Records))

	resp := &SubmitResponse{
		Results: result.Results,
		Records: toRecordResponses(result.Records),
	}
	if sub.Kind == identify.MediaAudio {
		resp.Top = topResult(result.Results)
	}
	return ctx.JSON(http.StatusOK, resp)
}

// buildSubmission converts the wire request into a media submission.
func (c *Controller) buildSubmission(req *SubmitRequest, userID string) (*identify.MediaSubmission, error) {
	sub := &identify.MediaSubmission{
		Kind:      identify.MediaKind(req.MediaKind),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		UserID:    userID,
	}

	for _, t := range req.Targets {
		sub.Targets = append(sub.Targets, identify.Target(t))
	}

	var err error
	if req.ImageData != "" {
		if sub.ImageData, err = decodePayload(req.ImageData); err != nil {
			return nil, err
		}
	}
	if req.AudioData != "" {
		if sub.AudioData, err = decodePayload(req.AudioData); err != nil {
			return nil, err
		}
	}

	if sub.ObservationID, err = parseOptionalUUID(req.ObservationID); err != nil {
		return nil, err
	}
	if sub.FieldSiteID, err = parseOptionalUUID(req.FieldSiteID); err != nil {
		return nil, err
	}
	if sub.MediaID, err = parseOptionalUUID(req.MediaID); err != nil {
		return nil, err
	}

	return sub, nil
}

// GetIdentification handles GET /api/v1/identifications/:id. Records carry
// reviewer metadata, so fetch is gated the same way as the review action.
func (c *Controller) GetIdentification(ctx echo.Context) error {
	userID := c.actor(ctx)
	if userID == "" {
		return c.HandleError(ctx, nil, "user identity required", http.StatusUnauthorized)
	}
	if !c.Service.CanReview(userID) {
		return c.HandleError(ctx, nil, "reviewer role required", http.StatusForbidden)
	}

	id := ctx.Param("id")
	record, err := c.Service.Get(ctx.Request().Context(), id)
	if err != nil {
		return c.HandleError(ctx, err, "failed to get identification", 0)
	}
	return ctx.JSON(http.StatusOK, toRecordResponse(record))
}

// ListIdentifications handles GET /api/v1/identifications. The status query
// parameter defaults to pending, which is the review queue, so listing
// requires the reviewer role.
func (c *Controller) ListIdentifications(ctx echo.Context) error {
	userID := c.actor(ctx)
	if userID == "" {
		return c.HandleError(ctx, nil, "user identity required", http.StatusUnauthorized)
	}
	if !c.Service.CanReview(userID) {
		return c.HandleError(ctx, nil, "reviewer role required", http.StatusForbidden)
	}

	status := identify.StatusPending
	if s := ctx.QueryParam("status"); s != "" {
		status = identify.Status(s)
	}

	limit := 0
	if l := ctx.QueryParam("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil {
			return c.HandleError(ctx, err, "invalid limit parameter", http.StatusBadRequest)
		}
		limit = parsed
	}

	records, err := c.Service.ListByStatus(ctx.Request().Context(), status, limit)
	if err != nil {
		return c.HandleError(ctx, err, "failed to list identifications", 0)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"status":  string(status),
		"records": toRecordResponses(records),
	})
}

// ReviewIdentification handles POST /api/v1/identifications/:id/review
func (c *Controller) ReviewIdentification(ctx echo.Context) error {
	reviewerID := c.actor(ctx)
	if reviewerID == "" {
		return c.HandleError(ctx, nil, "user identity required", http.StatusUnauthorized)
	}

	var body ReviewBody
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}

	record, err := c.Service.Review(ctx.Request().Context(), identify.ReviewRequest{
		RecordID:   ctx.Param("id"),
		ReviewerID: reviewerID,
		Decision:   identify.Decision(body.Decision),
		Notes:      body.Notes,
	})
	if err != nil {
		return c.HandleError(ctx, err, "review failed", 0)
	}

	c.logAPIRequest(ctx, slog.LevelInfo, "identification reviewed",
		"record_id", record.ID.String(),
		"reviewer_id", reviewerID,
		"decision", body.Decision)

	return ctx.JSON(http.StatusOK, toRecordResponse(record))
}

// decodePayload decodes a base64 media payload, stripping any data URL
// prefix first.
func decodePayload(data string) ([]byte, error) {
	if idx := strings.IndexByte(data, ','); idx >= 0 && strings.HasPrefix(data, "data:") {
		data = data[idx+1:]
	}
	return base64.StdEncoding.DecodeString(data)
}

func parseOptionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
