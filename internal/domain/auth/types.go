// Package auth contains domain-level types for authentication, sessions and
// the caller identity every marketplace operation receives explicitly.
package auth

import "time"

// Role represents an application's authorization role.
// Keep string form for easy persistence in sessions and the users table.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployer Role = "employer"
	RoleWorker   Role = "worker"
	RoleGuest    Role = "guest"
)

// Valid reports whether r is an assignable role. Guest is never persisted.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEmployer, RoleWorker:
		return true
	default:
		return false
	}
}

// Identity represents the authenticated principal returned by an IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID    string // stable IdP subject
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Groups    []string
	ExpiresAt time.Time // absolute expiry from IdP token
}

// Name joins the identity's first and last name.
func (i Identity) Name() string {
	switch {
	case i.FirstName == "":
		return i.LastName
	case i.LastName == "":
		return i.FirstName
	default:
		return i.FirstName + " " + i.LastName
	}
}

// Session is the server-side record we persist for an authenticated user.
// ID is the opaque bearer token handed to the client.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`     // users.id
	ExternalID string    `json:"external_id"` // IdP subject
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsGuest returns true if the session role is guest.
func (s Session) IsGuest() bool { return s.Role == RoleGuest }

// Caller returns the identity services authorize against.
func (s Session) Caller() Caller { return Caller{UserID: s.UserID, Role: s.Role} }

// Caller is the acting user of a service operation.
type Caller struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

// IsWorker reports whether the caller holds the worker role.
func (c Caller) IsWorker() bool { return c.Role == RoleWorker }

// IsEmployer reports whether the caller holds the employer role.
func (c Caller) IsEmployer() bool { return c.Role == RoleEmployer }

// Anonymous reports whether no user is attached.
func (c Caller) Anonymous() bool { return c.UserID == "" }
