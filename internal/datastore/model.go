// model.go: this code defines the data model for persisted identifications
package datastore

import (
	"time"

	"github.com/google/uuid"

	"github.com/fieldquest/fieldquest-go/internal/identify"
)

// Identification is the storage row for one normalized provider result that
// survived confidence routing. Review columns stay NULL until a reviewer acts.
type Identification struct {
	ID       uint   `gorm:"primaryKey"`
	PublicID string `gorm:"uniqueIndex;size:36;not null"`
	UserID   string `gorm:"index:idx_identifications_user;not null"`

	ObservationID *string `gorm:"size:36;index:idx_identifications_observation"`
	FieldSiteID   *string `gorm:"size:36;index:idx_identifications_site"`
	MediaID       *string `gorm:"size:36"`

	Provider   string `gorm:"size:64"`
	Target     string `gorm:"size:16;index:idx_identifications_target"`
	Label      string
	Confidence *float64
	Status     string `gorm:"size:16;index:idx_identifications_status_created,priority:1"`
	Raw        []byte

	ReviewerID  *string `gorm:"size:64"`
	ReviewedAt  *time.Time
	ReviewNotes *string `gorm:"size:500"`

	CreatedAt time.Time `gorm:"index:idx_identifications_status_created,priority:2,sort:desc"`
}

// toModel converts a domain record into its storage row.
func toModel(r *identify.Record) *Identification {
	return &Identification{
		PublicID:      r.ID.String(),
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
		ReviewedAt:    r.ReviewedAt,
		ReviewNotes:   r.ReviewNotes,
		CreatedAt:     r.CreatedAt,
	}
}

// toRecord converts a storage row back into the domain record. Rows written
// by this application always carry well-formed UUIDs; anything else parses to
// a zero ID rather than failing the read.
func toRecord(m *Identification) *identify.Record {
	id, _ := uuid.Parse(m.PublicID)
	return &identify.Record{
		ID:            id,
		UserID:        m.UserID,
		ObservationID: parseUUID(m.ObservationID),
		FieldSiteID:   parseUUID(m.FieldSiteID),
		MediaID:       parseUUID(m.MediaID),
		Provider:      m.Provider,
		Target:        identify.Target(m.Target),
		Label:         m.Label,
		Confidence:    m.Confidence,
		Status:        identify.Status(m.Status),
		Raw:           m.Raw,
		ReviewerID:    m.ReviewerID,
		ReviewedAt:    m.ReviewedAt,
		ReviewNotes:   m.ReviewNotes,
		CreatedAt:     m.CreatedAt,
	}
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseUUID(s *string) *uuid.UUID {
	if s == nil {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil
	}
	return &id
}
