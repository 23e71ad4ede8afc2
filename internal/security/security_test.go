package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldquest/fieldquest-go/internal/conf"
)

func TestConfigAuthorizer(t *testing.T) {
	a := NewConfigAuthorizer(&conf.SecuritySettings{
		Reviewers: []string{"educator-1", "educator-2"},
	})

	assert.True(t, a.CanReview("educator-1"))
	assert.True(t, a.CanReview("educator-2"))
	assert.False(t, a.CanReview("student-1"))
	assert.False(t, a.CanReview(""))
	assert.Equal(t, RoleEducator, a.Role())
}

func TestConfigAuthorizerEmptyListDeniesEveryone(t *testing.T) {
	a := NewConfigAuthorizer(&conf.SecuritySettings{})
	assert.False(t, a.CanReview("educator-1"))

	a = NewConfigAuthorizer(nil)
	assert.False(t, a.CanReview("educator-1"))
	assert.Equal(t, RoleEducator, a.Role())
}

func TestConfigAuthorizerRoleOverride(t *testing.T) {
	a := NewConfigAuthorizer(&conf.SecuritySettings{
		ReviewerRole: "ranger",
		Reviewers:    []string{"ranger-1"},
	})
	assert.Equal(t, "ranger", a.Role())
	assert.True(t, a.CanReview("ranger-1"))
}

func TestStaticAuthorizer(t *testing.T) {
	a := &StaticAuthorizer{Allowed: map[string]bool{"educator-1": true}}
	assert.True(t, a.CanReview("educator-1"))
	assert.False(t, a.CanReview("someone-else"))

	empty := &StaticAuthorizer{}
	assert.False(t, empty.CanReview("educator-1"))
}
