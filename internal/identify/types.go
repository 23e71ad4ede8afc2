// Package identify implements the identification pipeline: media submissions
// fan out to external classification providers, provider responses are reduced
// to normalized results, and each result is routed to auto-accept or a human
// review queue.
//
// The package holds the domain models and the orchestration logic only;
// provider protocol adapters live under internal/provider and persistence
// under internal/datastore.
package identify

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/fieldquest/fieldquest-go/internal/errors"
)

// MediaKind is the kind of captured media entering the pipeline.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
)

// Valid reports whether the media kind is a member of the fixed enumeration.
func (k MediaKind) Valid() bool {
	switch k {
	case MediaImage, MediaAudio:
		return true
	}
	return false
}

// Target is a classification category requested for a submission.
type Target string

const (
	TargetSpecies Target = "species"
	TargetBird    Target = "bird"
	TargetMacro   Target = "macro"
)

// AllTargets lists every known target in declaration order.
var AllTargets = []Target{TargetSpecies, TargetBird, TargetMacro}

// Valid reports whether the target is a member of the fixed enumeration.
func (t Target) Valid() bool {
	switch t {
	case TargetSpecies, TargetBird, TargetMacro:
		return true
	}
	return false
}

// EligibleFor reports whether the target can be served from the given media
// kind: bird calls are identified from audio, species and macro-invertebrates
// from images.
func (t Target) EligibleFor(kind MediaKind) bool {
	if t == TargetBird {
		return kind == MediaAudio
	}
	return kind == MediaImage
}

// Outcome tags a normalized result with how the provider call ended.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeError   Outcome = "error"
	OutcomeNoMatch Outcome = "no_match"
)

// MediaSubmission is the unit of work entering the pipeline. It is created
// per user action, consumed by the fan-out and never mutated; the durable
// artifacts are the identification records it produces.
type MediaSubmission struct {
	Kind      MediaKind
	ImageData []byte // decoded image bytes, nil for audio-only submissions
	AudioData []byte // decoded audio bytes, nil for image-only submissions

	// Optional geospatial context forwarded to providers.
	Latitude  *float64
	Longitude *float64

	// Optional linkage to the surrounding field-science records.
	ObservationID *uuid.UUID
	FieldSiteID   *uuid.UUID
	MediaID       *uuid.UUID

	UserID  string
	Targets []Target
}

// payload returns the media bytes matching the submission kind.
func (s *MediaSubmission) payload() []byte {
	if s.Kind == MediaAudio {
		return s.AudioData
	}
	return s.ImageData
}

// Validate rejects malformed submissions before any provider is invoked.
// A target whose required payload is absent is a validation failure here;
// the fan-out itself never sees such a pairing.
func (s *MediaSubmission) Validate() error {
	if !s.Kind.Valid() {
		return errors.Newf("invalid media kind: %q", s.Kind).
			Category(errors.CategoryValidation).
			Component("identify").
			Build()
	}
	if s.UserID == "" {
		return errors.ValidationError("submission must carry the submitting user id")
	}
	if len(s.Targets) == 0 {
		return errors.ValidationError("submission must request at least one target")
	}
	seen := make(map[Target]bool, len(s.Targets))
	for _, t := range s.Targets {
		if !t.Valid() {
			return errors.Newf("invalid target: %q", t).
				Category(errors.CategoryValidation).
				Component("identify").
				Build()
		}
		if seen[t] {
			return errors.Newf("duplicate target: %q", t).
				Category(errors.CategoryValidation).
				Component("identify").
				Build()
		}
		seen[t] = true
	}
	if len(s.payload()) == 0 {
		return errors.Newf("%s submission carries no %s data", s.Kind, s.Kind).
			Category(errors.CategoryValidation).
			Component("identify").
			Build()
	}
	eligible := false
	for _, t := range s.Targets {
		if t.EligibleFor(s.Kind) {
			eligible = true
			break
		}
	}
	if !eligible {
		return errors.Newf("no requested target can be identified from %s media", s.Kind).
			Category(errors.CategoryValidation).
			Component("identify").
			Build()
	}
	return nil
}

// NormalizedResult is one classification outcome for one
// (submission, target, provider) triple. Produced exclusively by the fan-out
// orchestrator and immutable once produced.
type NormalizedResult struct {
	Provider   string          `json:"provider"`
	Target     Target          `json:"target"`
	Label      string          `json:"label,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Outcome    Outcome         `json:"outcome"`
	Reason     string          `json:"reason,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// OKResult builds a successful normalized result.
func OKResult(provider string, target Target, label string, confidence *float64, raw json.RawMessage) NormalizedResult {
	return NormalizedResult{
		Provider:   provider,
		Target:     target,
		Label:      label,
		Confidence: confidence,
		Outcome:    OutcomeOK,
		Raw:        raw,
	}
}

// ErrorResult builds an error-tagged normalized result. Label and confidence
// stay unset so a failed provider can never masquerade as a classification.
func ErrorResult(provider string, target Target, reason string) NormalizedResult {
	return NormalizedResult{
		Provider: provider,
		Target:   target,
		Outcome:  OutcomeError,
		Reason:   reason,
	}
}

// NoMatchResult builds a result for a provider that answered but had no
// confident suggestion to offer.
func NoMatchResult(provider string, target Target, raw json.RawMessage) NormalizedResult {
	return NormalizedResult{
		Provider: provider,
		Target:   target,
		Outcome:  OutcomeNoMatch,
		Raw:      raw,
	}
}

// Float64 returns a pointer to v. Convenience for confidence literals.
func Float64(v float64) *float64 {
	return &v
}
