package identify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldquest/fieldquest-go/internal/errors"
)

func validImageSubmission() *MediaSubmission {
	return &MediaSubmission{
		Kind:      MediaImage,
		ImageData: []byte{0xff, 0xd8, 0xff},
		UserID:    "user-1",
		Targets:   []Target{TargetSpecies},
	}
}

func TestMediaSubmissionValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid image submission", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, validImageSubmission().Validate())
	})

	t.Run("valid audio submission", func(t *testing.T) {
		t.Parallel()
		sub := &MediaSubmission{
			Kind:      MediaAudio,
			AudioData: []byte{0x01},
			UserID:    "user-1",
			Targets:   []Target{TargetBird},
		}
		assert.NoError(t, sub.Validate())
	})

	tests := []struct {
		name   string
		mutate func(*MediaSubmission)
	}{
		{"invalid media kind", func(s *MediaSubmission) { s.Kind = "video" }},
		{"missing user id", func(s *MediaSubmission) { s.UserID = "" }},
		{"no targets", func(s *MediaSubmission) { s.Targets = nil }},
		{"invalid target", func(s *MediaSubmission) { s.Targets = []Target{"plant"} }},
		{"duplicate target", func(s *MediaSubmission) { s.Targets = []Target{TargetSpecies, TargetSpecies} }},
		{"missing payload", func(s *MediaSubmission) { s.ImageData = nil }},
		{"no eligible target for image", func(s *MediaSubmission) { s.Targets = []Target{TargetBird} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sub := validImageSubmission()
			tt.mutate(sub)

			err := sub.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err), "expected a validation error, got %v", err)
		})
	}
}

func TestTargetEligibleFor(t *testing.T) {
	t.Parallel()

	assert.True(t, TargetSpecies.EligibleFor(MediaImage))
	assert.True(t, TargetMacro.EligibleFor(MediaImage))
	assert.True(t, TargetBird.EligibleFor(MediaAudio))

	assert.False(t, TargetBird.EligibleFor(MediaImage))
	assert.False(t, TargetSpecies.EligibleFor(MediaAudio))
	assert.False(t, TargetMacro.EligibleFor(MediaAudio))
}

func TestStatusAndDecision(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusAuto, StatusPending, StatusApproved, StatusRejected} {
		assert.True(t, s.Valid())
	}
	assert.False(t, Status("archived").Valid())

	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusAuto.Terminal())
	assert.True(t, StatusApproved.Terminal())

	assert.Equal(t, StatusApproved, DecisionApproved.Status())
	assert.Equal(t, StatusRejected, DecisionRejected.Status())
	assert.False(t, Decision("escalated").Valid())
}
