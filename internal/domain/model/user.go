//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxUserNameLen   = 100
	maxProfileSkills = 30
)

// UserType discriminates the profile a user carries.
type UserType string

const (
	UserTypeWorker   UserType = "worker"
	UserTypeEmployer UserType = "employer"
	UserTypeAdmin    UserType = "admin"
)

// Valid reports whether the user type is supported.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeWorker, UserTypeEmployer, UserTypeAdmin:
		return true
	default:
		return false
	}
}

// WorkerProfile is the worker-specific part of a user.
type WorkerProfile struct {
	Skills          []string     `json:"skills,omitempty"`
	ExperienceYears int          `json:"experience_years"`
	DailyRate       *int64       `json:"daily_rate,omitempty"`
	Availability    Availability `json:"availability,omitempty"`
	Languages       []string     `json:"languages,omitempty"`
}

// EmployerProfile is the employer-specific part of a user.
type EmployerProfile struct {
	CompanyName string `json:"company_name"`
	CompanyType string `json:"company_type,omitempty"`
	GSTNumber   string `json:"gst_number,omitempty"`
	Address     string `json:"address,omitempty"`
}

// User is an account on the marketplace. Users are never hard-deleted.
type User struct {
	ID              string           `json:"id"                         db:"id"`
	ExternalID      string           `json:"-"                          db:"external_id"`
	Type            UserType         `json:"user_type"                  db:"user_type"`
	Name            string           `json:"name"                       db:"name"`
	Email           *string          `json:"email,omitempty"            db:"email"`
	Phone           *string          `json:"phone,omitempty"            db:"phone"`
	IsPhoneVerified bool             `json:"is_phone_verified"          db:"is_phone_verified"`
	IsEmailVerified bool             `json:"is_email_verified"          db:"is_email_verified"`
	IsActive        bool             `json:"is_active"                  db:"is_active"`
	IsBlocked       bool             `json:"is_blocked"                 db:"is_blocked"`
	WorkerProfile   *WorkerProfile   `json:"worker_profile,omitempty"   db:"worker_profile"`
	EmployerProfile *EmployerProfile `json:"employer_profile,omitempty" db:"employer_profile"`
	LastLoginAt     *time.Time       `json:"last_login_at,omitempty"    db:"last_login_at"`
	CreatedAt       time.Time        `json:"created_at"                 db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"                 db:"updated_at"`
}

// CanSignIn reports whether the account may authenticate.
func (u *User) CanSignIn() bool {
	return u.IsActive && !u.IsBlocked
}

// UpsertUserRequest creates or refreshes a user from an IdP identity.
type UpsertUserRequest struct {
	ExternalID string
	Type       UserType
	Name       string
	Email      string
}

// Validate validates UpsertUserRequest.
func (r *UpsertUserRequest) Validate() error {
	if strings.TrimSpace(r.ExternalID) == "" {
		return errors.New("external_id is required")
	}
	if !r.Type.Valid() {
		return errors.New("invalid user_type")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		r.Name = r.ExternalID
	}
	if utf8.RuneCountInString(r.Name) > maxUserNameLen {
		r.Name = string([]rune(r.Name)[:maxUserNameLen])
	}
	return nil
}

// UpdateProfileRequest represents a self-service profile edit.
type UpdateProfileRequest struct {
	Name            *string          `json:"name,omitempty"`
	Email           *string          `json:"email,omitempty"`
	Phone           *string          `json:"phone,omitempty"`
	WorkerProfile   *WorkerProfile   `json:"worker_profile,omitempty"`
	EmployerProfile *EmployerProfile `json:"employer_profile,omitempty"`
}

// HasUpdates reports whether any field is set.
func (r *UpdateProfileRequest) HasUpdates() bool {
	return r.Name != nil || r.Email != nil || r.Phone != nil || r.WorkerProfile != nil || r.EmployerProfile != nil
}

// Validate validates the request against the editing user's type.
func (r *UpdateProfileRequest) Validate(userType UserType) error {
	if !r.HasUpdates() {
		return errors.New("at least one field must be updated")
	}
	if r.Name != nil {
		n := strings.TrimSpace(*r.Name)
		if n == "" {
			return errors.New("name cannot be empty")
		}
		if utf8.RuneCountInString(n) > maxUserNameLen {
			return errors.New("name cannot exceed 100 characters")
		}
		r.Name = &n
	}
	if r.Email != nil {
		if _, err := mail.ParseAddress(*r.Email); err != nil {
			return errors.New("invalid email")
		}
	}
	if r.Phone != nil && !validPhone(*r.Phone) {
		return errors.New("phone must be 10 to 15 digits")
	}
	if r.WorkerProfile != nil {
		if userType != UserTypeWorker {
			return errors.New("worker_profile is only editable by workers")
		}
		if err := r.WorkerProfile.validate(); err != nil {
			return err
		}
	}
	if r.EmployerProfile != nil {
		if userType != UserTypeEmployer {
			return errors.New("employer_profile is only editable by employers")
		}
		if strings.TrimSpace(r.EmployerProfile.CompanyName) == "" {
			return errors.New("company_name is required")
		}
	}
	return nil
}

func (p *WorkerProfile) validate() error {
	if len(p.Skills) > maxProfileSkills {
		return errors.New("skills cannot exceed 30 entries")
	}
	if p.ExperienceYears < 0 || p.ExperienceYears > 60 {
		return errors.New("experience_years must be between 0 and 60")
	}
	if p.DailyRate != nil && *p.DailyRate < 0 {
		return errors.New("daily_rate must be >= 0")
	}
	if p.Availability != "" && !p.Availability.Valid() {
		return errors.New("invalid availability")
	}
	return nil
}

func validPhone(s string) bool {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	if len(s) < 10 || len(s) > 15 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
