package identify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the moderation lifecycle state of a persisted identification.
type Status string

const (
	// StatusAuto marks a record whose confidence met the target threshold.
	// Auto is assigned at insertion time and is terminal: reviewers never
	// transition it.
	StatusAuto Status = "auto"
	// StatusPending marks a record awaiting human review.
	StatusPending Status = "pending"
	// StatusApproved and StatusRejected are the terminal reviewer decisions,
	// reachable only from pending.
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether the status is a member of the fixed enumeration.
func (s Status) Valid() bool {
	switch s {
	case StatusAuto, StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether the status can never change again.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Decision is the transition a reviewer performs on a pending record.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Valid reports whether the decision is approve or reject.
func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Status returns the record status the decision resolves to.
func (d Decision) Status() Status {
	if d == DecisionApproved {
		return StatusApproved
	}
	return StatusRejected
}

// Record is the persisted, reviewable unit: one record per ok-tagged
// normalized result. Review fields stay nil until a reviewer acts; records
// are retained for audit and never deleted in the normal lifecycle.
type Record struct {
	ID     uuid.UUID
	UserID string

	ObservationID *uuid.UUID
	FieldSiteID   *uuid.UUID
	MediaID       *uuid.UUID

	Provider   string
	Target     Target
	Label      string
	Confidence *float64
	Status     Status

	// Raw provider payload retained for audit.
	Raw json.RawMessage

	ReviewerID  *string
	ReviewedAt  *time.Time
	ReviewNotes *string

	CreatedAt time.Time
}
