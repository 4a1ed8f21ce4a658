// Package model defines the core data types shared by the marketplace
// services, repositories and HTTP handlers.
package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultJobLifetime is how long a posting stays open when no expiry is given.
const DefaultJobLifetime = 30 * 24 * time.Hour

const (
	maxJobTitleLen       = 120
	maxJobDescriptionLen = 5000
	maxJobApplicantsCap  = 1000
)

// JobStatus represents the lifecycle state of a job posting.
type JobStatus string

const (
	JobStatusDraft     JobStatus = "draft"
	JobStatusActive    JobStatus = "active"
	JobStatusPaused    JobStatus = "paused"
	JobStatusClosed    JobStatus = "closed"
	JobStatusExpired   JobStatus = "expired"
	JobStatusCancelled JobStatus = "cancelled"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusDraft, JobStatusActive, JobStatusPaused, JobStatusClosed, JobStatusExpired, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Settable reports whether an employer may set this status directly.
// Expiry is only ever derived from expires_at.
func (s JobStatus) Settable() bool {
	return s.Valid() && s != JobStatusExpired
}

// JobCategory is the trade a job belongs to.
type JobCategory string

const (
	JobCategoryConstruction JobCategory = "construction"
	JobCategoryCleaning     JobCategory = "cleaning"
	JobCategoryDelivery     JobCategory = "delivery"
	JobCategorySecurity     JobCategory = "security"
	JobCategoryCooking      JobCategory = "cooking"
	JobCategoryDriving      JobCategory = "driving"
	JobCategoryGardening    JobCategory = "gardening"
	JobCategoryPainting     JobCategory = "painting"
	JobCategoryPlumbing     JobCategory = "plumbing"
	JobCategoryElectrical   JobCategory = "electrical"
	JobCategoryCarpentry    JobCategory = "carpentry"
	JobCategoryOther        JobCategory = "other"
)

// Valid reports whether the category is supported.
func (c JobCategory) Valid() bool {
	switch c {
	case JobCategoryConstruction, JobCategoryCleaning, JobCategoryDelivery, JobCategorySecurity,
		JobCategoryCooking, JobCategoryDriving, JobCategoryGardening, JobCategoryPainting,
		JobCategoryPlumbing, JobCategoryElectrical, JobCategoryCarpentry, JobCategoryOther:
		return true
	default:
		return false
	}
}

// JobType is the engagement type of a job.
type JobType string

const (
	JobTypeFullTime  JobType = "full-time"
	JobTypePartTime  JobType = "part-time"
	JobTypeContract  JobType = "contract"
	JobTypeDailyWage JobType = "daily-wage"
	JobTypeTemporary JobType = "temporary"
)

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeFullTime, JobTypePartTime, JobTypeContract, JobTypeDailyWage, JobTypeTemporary:
		return true
	default:
		return false
	}
}

// SalaryPeriod is the unit a salary range is quoted in.
type SalaryPeriod string

const (
	SalaryPeriodHourly  SalaryPeriod = "hourly"
	SalaryPeriodDaily   SalaryPeriod = "daily"
	SalaryPeriodWeekly  SalaryPeriod = "weekly"
	SalaryPeriodMonthly SalaryPeriod = "monthly"
)

// Valid reports whether the salary period is supported.
func (p SalaryPeriod) Valid() bool {
	switch p {
	case SalaryPeriodHourly, SalaryPeriodDaily, SalaryPeriodWeekly, SalaryPeriodMonthly:
		return true
	default:
		return false
	}
}

// JobRequirements is stored as JSONB on the job row.
type JobRequirements struct {
	Skills          []string `json:"skills,omitempty"`
	ExperienceYears int      `json:"experience_years"`
	Languages       []string `json:"languages,omitempty"`
}

// Job represents a posting owned by exactly one employer.
type Job struct {
	ID                 string          `json:"id"                         db:"id"`
	EmployerID         string          `json:"employer_id"                db:"employer_id"`
	Title              string          `json:"title"                      db:"title"`
	Description        string          `json:"description"                db:"description"`
	Category           JobCategory     `json:"category"                   db:"category"`
	JobType            JobType         `json:"job_type"                   db:"job_type"`
	SalaryMin          int64           `json:"salary_min"                 db:"salary_min"`
	SalaryMax          int64           `json:"salary_max"                 db:"salary_max"`
	SalaryPeriod       SalaryPeriod    `json:"salary_period"              db:"salary_period"`
	LocationCity       string          `json:"location_city"              db:"location_city"`
	LocationState      string          `json:"location_state"             db:"location_state"`
	LocationAddress    *string         `json:"location_address,omitempty" db:"location_address"`
	Requirements       JobRequirements `json:"requirements"               db:"requirements"`
	MaxApplicants      int             `json:"max_applicants"             db:"max_applicants"`
	CurrentApplicants  int             `json:"current_applicants"         db:"current_applicants"`
	PositionsAvailable int             `json:"positions_available"        db:"positions_available"`
	PositionsFilled    int             `json:"positions_filled"           db:"positions_filled"`
	Status             JobStatus       `json:"status"                     db:"status"`
	IsActive           bool            `json:"is_active"                  db:"is_active"`
	Views              int             `json:"views"                      db:"views"`
	Applications       int             `json:"applications"               db:"applications"`
	Saves              int             `json:"saves"                      db:"saves"`
	IsUrgent           bool            `json:"is_urgent"                  db:"is_urgent"`
	PostedAt           time.Time       `json:"posted_at"                  db:"posted_at"`
	ExpiresAt          time.Time       `json:"expires_at"                 db:"expires_at"`
	CreatedAt          time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"                 db:"updated_at"`
}

// EffectiveStatus reports the status after applying lazy expiry at now.
func (j *Job) EffectiveStatus(now time.Time) JobStatus {
	if j.Status == JobStatusActive && !j.ExpiresAt.IsZero() && !now.Before(j.ExpiresAt) {
		return JobStatusExpired
	}
	return j.Status
}

// ApplyExpiry rewrites Status in place using EffectiveStatus.
func (j *Job) ApplyExpiry(now time.Time) {
	j.Status = j.EffectiveStatus(now)
}

// AcceptsApplications reports whether the job is open for new applications at now.
func (j *Job) AcceptsApplications(now time.Time) bool {
	return j.IsActive && j.EffectiveStatus(now) == JobStatusActive
}

// IsFull reports whether the applicant ceiling has been reached.
func (j *Job) IsFull() bool {
	return j.CurrentApplicants >= j.MaxApplicants
}

// CreateJobRequest represents parameters to create a Job.
type CreateJobRequest struct {
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	Category           JobCategory     `json:"category"`
	JobType            JobType         `json:"job_type"`
	SalaryMin          int64           `json:"salary_min"`
	SalaryMax          int64           `json:"salary_max"`
	SalaryPeriod       SalaryPeriod    `json:"salary_period"`
	LocationCity       string          `json:"location_city"`
	LocationState      string          `json:"location_state"`
	LocationAddress    *string         `json:"location_address,omitempty"`
	Requirements       JobRequirements `json:"requirements"`
	MaxApplicants      int             `json:"max_applicants,omitempty"`
	PositionsAvailable int             `json:"positions_available,omitempty"`
	Status             JobStatus       `json:"status,omitempty"`
	IsUrgent           bool            `json:"is_urgent,omitempty"`
	ExpiresAt          *time.Time      `json:"expires_at,omitempty"`

	// EmployerID is set by the service from the caller, never from the body.
	EmployerID string `json:"-"`
}

// Validate validates CreateJobRequest. Zero-valued optional fields are
// normalized to their defaults by the job service before insert.
func (r *CreateJobRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return errors.New("title is required and cannot be empty")
	}
	if utf8.RuneCountInString(r.Title) > maxJobTitleLen {
		return errors.New("title cannot exceed 120 characters")
	}
	if strings.TrimSpace(r.Description) == "" {
		return errors.New("description is required")
	}
	if utf8.RuneCountInString(r.Description) > maxJobDescriptionLen {
		return errors.New("description cannot exceed 5000 characters")
	}
	if !r.Category.Valid() {
		return errors.New("invalid category")
	}
	if !r.JobType.Valid() {
		return errors.New("invalid job_type")
	}
	if err := validateSalary(r.SalaryMin, r.SalaryMax); err != nil {
		return err
	}
	if r.SalaryPeriod == "" {
		r.SalaryPeriod = SalaryPeriodDaily
	}
	if !r.SalaryPeriod.Valid() {
		return errors.New("invalid salary_period")
	}
	if strings.TrimSpace(r.LocationCity) == "" || strings.TrimSpace(r.LocationState) == "" {
		return errors.New("location_city and location_state are required")
	}
	if r.MaxApplicants < 0 || r.MaxApplicants > maxJobApplicantsCap {
		return errors.New("max_applicants must be between 1 and 1000")
	}
	if r.PositionsAvailable < 0 {
		return errors.New("positions_available must be >= 1")
	}
	if r.Status != "" && (!r.Status.Settable() || r.Status == JobStatusClosed || r.Status == JobStatusCancelled) {
		return errors.New("new jobs must be draft or active")
	}
	return nil
}

// UpdateJobRequest represents parameters to update a Job.
type UpdateJobRequest struct {
	Title              *string          `json:"title,omitempty"`
	Description        *string          `json:"description,omitempty"`
	SalaryMin          *int64           `json:"salary_min,omitempty"`
	SalaryMax          *int64           `json:"salary_max,omitempty"`
	LocationAddress    *string          `json:"location_address,omitempty"`
	Requirements       *JobRequirements `json:"requirements,omitempty"`
	MaxApplicants      *int             `json:"max_applicants,omitempty"`
	PositionsAvailable *int             `json:"positions_available,omitempty"`
	Status             *JobStatus       `json:"status,omitempty"`
	IsUrgent           *bool            `json:"is_urgent,omitempty"`
	ExpiresAt          *time.Time       `json:"expires_at,omitempty"`
}

// HasUpdates reports whether any field is set in UpdateJobRequest.
func (r *UpdateJobRequest) HasUpdates() bool {
	return r.Title != nil || r.Description != nil || r.SalaryMin != nil || r.SalaryMax != nil ||
		r.LocationAddress != nil || r.Requirements != nil || r.MaxApplicants != nil ||
		r.PositionsAvailable != nil || r.Status != nil || r.IsUrgent != nil || r.ExpiresAt != nil
}

// Validate checks the request against the job being edited.
func (r *UpdateJobRequest) Validate(current *Job) error {
	if !r.HasUpdates() {
		return errors.New("at least one field must be updated")
	}
	if r.Title != nil {
		t := strings.TrimSpace(*r.Title)
		if t == "" {
			return errors.New("title cannot be empty")
		}
		if utf8.RuneCountInString(t) > maxJobTitleLen {
			return errors.New("title cannot exceed 120 characters")
		}
		r.Title = &t
	}
	if r.Description != nil && strings.TrimSpace(*r.Description) == "" {
		return errors.New("description cannot be empty")
	}
	salaryMin, salaryMax := current.SalaryMin, current.SalaryMax
	if r.SalaryMin != nil {
		salaryMin = *r.SalaryMin
	}
	if r.SalaryMax != nil {
		salaryMax = *r.SalaryMax
	}
	if err := validateSalary(salaryMin, salaryMax); err != nil {
		return err
	}
	if r.MaxApplicants != nil {
		if *r.MaxApplicants < 1 || *r.MaxApplicants > maxJobApplicantsCap {
			return errors.New("max_applicants must be between 1 and 1000")
		}
		if *r.MaxApplicants < current.CurrentApplicants {
			return errors.New("max_applicants cannot be lower than current_applicants")
		}
	}
	if r.PositionsAvailable != nil && *r.PositionsAvailable < 1 {
		return errors.New("positions_available must be >= 1")
	}
	if r.Status != nil && !r.Status.Settable() {
		return errors.New("invalid status")
	}
	return nil
}

func validateSalary(lo, hi int64) error {
	if lo < 0 || hi < 0 {
		return errors.New("salary must be >= 0")
	}
	if hi < lo {
		return errors.New("salary_max must be >= salary_min")
	}
	return nil
}

// JobSort is the column a job search orders by.
type JobSort string

const (
	JobSortPostedAt JobSort = "posted_at"
	JobSortSalary   JobSort = "salary_max"
)

// JobSearchOptions controls the public job search.
// Notes:
// - Q matches title and description via ILIKE substring.
// - Only active, unexpired jobs are returned unless EmployerID is set.
type JobSearchOptions struct {
	Q          *string
	Category   *JobCategory
	JobType    *JobType
	City       *string
	State      *string
	MinSalary  *int64
	UrgentOnly bool
	EmployerID *string // restricts to one employer and includes every status
	Sort       JobSort
	Dir        string // asc, desc
	Limit      int
	Offset     int
	Now        time.Time
}

// CapacityDrift records a job whose stored applicant counter disagreed with
// its live applications.
type CapacityDrift struct {
	JobID    string `json:"job_id"   db:"job_id"`
	Stored   int    `json:"stored"   db:"stored"`
	Recount  int    `json:"recount"  db:"recount"`
	MaxSlots int    `json:"max_slots" db:"max_slots"`
}
