package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_IsGuest(t *testing.T) {
	assert.True(t, Session{Role: RoleGuest}.IsGuest())
	assert.False(t, Session{Role: RoleWorker}.IsGuest())
}

func TestSession_Caller(t *testing.T) {
	s := Session{ID: "tok", UserID: "u1", ExternalID: "sub-1", Role: RoleEmployer}
	c := s.Caller()

	assert.Equal(t, Caller{UserID: "u1", Role: RoleEmployer}, c)
	assert.True(t, c.IsEmployer())
	assert.False(t, c.IsAdmin())
	assert.False(t, c.Anonymous())
	assert.True(t, Caller{}.Anonymous())
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleAdmin, RoleEmployer, RoleWorker} {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, RoleGuest.Valid())
	assert.False(t, Role("user").Valid())
}

func TestIdentity_Name(t *testing.T) {
	assert.Equal(t, "Asha Devi", Identity{FirstName: "Asha", LastName: "Devi"}.Name())
	assert.Equal(t, "Asha", Identity{FirstName: "Asha"}.Name())
	assert.Equal(t, "Devi", Identity{LastName: "Devi"}.Name())
}
