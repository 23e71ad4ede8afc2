// Package security holds the authorization policy for reviewer actions.
package security

import (
	"slices"

	"github.com/fieldquest/fieldquest-go/internal/conf"
)

// RoleEducator is the role allowed to review identifications.
const RoleEducator = "educator"

// Authorizer answers whether a user may perform reviewer actions.
type Authorizer interface {
	// CanReview reports whether the user holds the reviewer role.
	CanReview(userID string) bool
	// Role returns the role name the authorizer enforces.
	Role() string
}

// ConfigAuthorizer authorizes against the static reviewer list in the
// settings. An empty reviewer list denies everyone, which is the safe
// default for a fresh install.
type ConfigAuthorizer struct {
	role      string
	reviewers []string
}

// NewConfigAuthorizer builds an authorizer from the security settings.
func NewConfigAuthorizer(settings *conf.SecuritySettings) *ConfigAuthorizer {
	role := RoleEducator
	var reviewers []string
	if settings != nil {
		if settings.ReviewerRole != "" {
			role = settings.ReviewerRole
		}
		reviewers = slices.Clone(settings.Reviewers)
	}
	return &ConfigAuthorizer{role: role, reviewers: reviewers}
}

func (a *ConfigAuthorizer) CanReview(userID string) bool {
	return userID != "" && slices.Contains(a.reviewers, userID)
}

func (a *ConfigAuthorizer) Role() string {
	return a.role
}

// StaticAuthorizer is a fixed-answer authorizer, mainly for tests.
type StaticAuthorizer struct {
	Allowed map[string]bool
}

func (a *StaticAuthorizer) CanReview(userID string) bool {
	return a.Allowed[userID]
}

func (a *StaticAuthorizer) Role() string {
	return RoleEducator
}
