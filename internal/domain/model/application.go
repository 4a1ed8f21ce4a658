//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxCoverLetterLen = 1000
	maxMessageLen     = 1000
	maxReasonLen      = 500
	maxSkills         = 20
)

// ApplicationStatus is the workflow state of an application.
type ApplicationStatus string

const (
	ApplicationStatusApplied            ApplicationStatus = "applied"
	ApplicationStatusUnderReview        ApplicationStatus = "under-review"
	ApplicationStatusShortlisted        ApplicationStatus = "shortlisted"
	ApplicationStatusInterviewScheduled ApplicationStatus = "interview-scheduled"
	ApplicationStatusInterviewed        ApplicationStatus = "interviewed"
	ApplicationStatusOffered            ApplicationStatus = "offered"
	ApplicationStatusHired              ApplicationStatus = "hired"
	ApplicationStatusRejected           ApplicationStatus = "rejected"
	ApplicationStatusWithdrawn          ApplicationStatus = "withdrawn"
	ApplicationStatusExpired            ApplicationStatus = "expired"
)

// ApplicationStatuses lists every status in workflow order.
func ApplicationStatuses() []ApplicationStatus {
	return []ApplicationStatus{
		ApplicationStatusApplied,
		ApplicationStatusUnderReview,
		ApplicationStatusShortlisted,
		ApplicationStatusInterviewScheduled,
		ApplicationStatusInterviewed,
		ApplicationStatusOffered,
		ApplicationStatusHired,
		ApplicationStatusRejected,
		ApplicationStatusWithdrawn,
		ApplicationStatusExpired,
	}
}

// Valid reports whether the status is part of the workflow.
func (s ApplicationStatus) Valid() bool {
	for _, v := range ApplicationStatuses() {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s ApplicationStatus) IsTerminal() bool {
	switch s {
	case ApplicationStatusHired, ApplicationStatusRejected, ApplicationStatusWithdrawn, ApplicationStatusExpired:
		return true
	default:
		return false
	}
}

// Withdrawable reports whether the applicant may still withdraw.
func (s ApplicationStatus) Withdrawable() bool {
	switch s {
	case ApplicationStatusApplied, ApplicationStatusUnderReview, ApplicationStatusShortlisted:
		return true
	default:
		return false
	}
}

// ReleasesCapacity reports whether entering this status frees a slot on the job.
// Hired and expired deliberately keep their slot.
func (s ApplicationStatus) ReleasesCapacity() bool {
	return s == ApplicationStatusRejected || s == ApplicationStatusWithdrawn
}

// Availability is when an applicant can start.
type Availability string

const (
	AvailabilityImmediate   Availability = "immediate"
	AvailabilityWithinWeek  Availability = "within-week"
	AvailabilityWithinMonth Availability = "within-month"
	AvailabilityFlexible    Availability = "flexible"
)

// Valid reports whether the availability is supported.
func (a Availability) Valid() bool {
	switch a {
	case AvailabilityImmediate, AvailabilityWithinWeek, AvailabilityWithinMonth, AvailabilityFlexible:
		return true
	default:
		return false
	}
}

// InterviewType is how an interview is held.
type InterviewType string

const (
	InterviewTypeInPerson InterviewType = "in-person"
	InterviewTypePhone    InterviewType = "phone"
	InterviewTypeVideo    InterviewType = "video"
)

// Valid reports whether the interview type is supported.
func (t InterviewType) Valid() bool {
	return t == InterviewTypeInPerson || t == InterviewTypePhone || t == InterviewTypeVideo
}

// WorkSchedule is the applicant's preferred working pattern.
type WorkSchedule struct {
	Days      []string `json:"days,omitempty"`
	StartTime string   `json:"start_time,omitempty"`
	EndTime   string   `json:"end_time,omitempty"`
}

// Interview is attached when an employer schedules one.
type Interview struct {
	ScheduledAt time.Time     `json:"scheduled_at"`
	Location    string        `json:"location,omitempty"`
	Type        InterviewType `json:"type"`
	Interviewer string        `json:"interviewer,omitempty"`
	Notes       string        `json:"notes,omitempty"`
}

// Offer records the terms extended to an applicant.
type Offer struct {
	Salary     int64      `json:"salary"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	ExtendedAt time.Time  `json:"extended_at"`
}

// Evaluation holds employer scores, each from 1 to 5.
type Evaluation struct {
	Skills        int       `json:"skills"`
	Communication int       `json:"communication"`
	Reliability   int       `json:"reliability"`
	Notes         string    `json:"notes,omitempty"`
	EvaluatedBy   string    `json:"evaluated_by"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}

// StatusHistoryEntry is one row of the append-only status log.
type StatusHistoryEntry struct {
	ID            int64             `json:"-"                db:"id"`
	ApplicationID string            `json:"-"                db:"application_id"`
	Status        ApplicationStatus `json:"status"           db:"status"`
	ChangedAt     time.Time         `json:"changed_at"       db:"changed_at"`
	ChangedBy     string            `json:"changed_by"       db:"changed_by"`
	Reason        *string           `json:"reason,omitempty" db:"reason"`
	Notes         *string           `json:"notes,omitempty"  db:"notes"`
}

// ApplicationMessage is a message exchanged inside an application.
type ApplicationMessage struct {
	ID            string    `json:"id"         db:"id"`
	ApplicationID string    `json:"-"          db:"application_id"`
	SenderID      string    `json:"sender_id"  db:"sender_id"`
	Text          string    `json:"text"       db:"text"`
	IsRead        bool      `json:"is_read"    db:"is_read"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Application is a worker's request to be considered for one job.
// EmployerID is copied from the job at submit time and must always equal it.
type Application struct {
	ID                string            `json:"id"                           db:"id"`
	JobID             string            `json:"job_id"                       db:"job_id"`
	ApplicantID       string            `json:"applicant_id"                 db:"applicant_id"`
	EmployerID        string            `json:"employer_id"                  db:"employer_id"`
	Status            ApplicationStatus `json:"status"                       db:"status"`
	CoverLetter       *string           `json:"cover_letter,omitempty"       db:"cover_letter"`
	ExpectedSalary    *int64            `json:"expected_salary,omitempty"    db:"expected_salary"`
	Availability      Availability      `json:"availability"                 db:"availability"`
	WorkSchedule      *WorkSchedule     `json:"work_schedule,omitempty"      db:"work_schedule"`
	Skills            []string          `json:"skills"                       db:"skills"`
	ExperienceSummary *string           `json:"experience_summary,omitempty" db:"experience_summary"`
	Interview         *Interview        `json:"interview,omitempty"          db:"interview"`
	Offer             *Offer            `json:"offer,omitempty"              db:"offer"`
	Evaluation        *Evaluation       `json:"evaluation,omitempty"         db:"evaluation"`
	IsWithdrawn       bool              `json:"is_withdrawn"                 db:"is_withdrawn"`
	WithdrawnAt       *time.Time        `json:"withdrawn_at,omitempty"       db:"withdrawn_at"`
	WithdrawnReason   *string           `json:"withdrawn_reason,omitempty"   db:"withdrawn_reason"`
	LastUpdated       time.Time         `json:"last_updated"                 db:"last_updated"`
	CreatedAt         time.Time         `json:"created_at"                   db:"created_at"`

	StatusHistory []StatusHistoryEntry `json:"status_history,omitempty" db:"-"`
	Messages      []ApplicationMessage `json:"messages,omitempty"       db:"-"`
}

// IsParticipant reports whether userID is the applicant or the employer.
func (a *Application) IsParticipant(userID string) bool {
	return userID != "" && (userID == a.ApplicantID || userID == a.EmployerID)
}

// Counterpart returns the other participant for userID.
func (a *Application) Counterpart(userID string) string {
	if userID == a.ApplicantID {
		return a.EmployerID
	}
	return a.ApplicantID
}

// SubmitApplicationRequest carries a worker's application.
type SubmitApplicationRequest struct {
	JobID             string        `json:"job_id"`
	CoverLetter       *string       `json:"cover_letter,omitempty"`
	ExpectedSalary    *int64        `json:"expected_salary,omitempty"`
	Availability      Availability  `json:"availability"`
	WorkSchedule      *WorkSchedule `json:"work_schedule,omitempty"`
	Skills            []string      `json:"skills,omitempty"`
	ExperienceSummary *string       `json:"experience_summary,omitempty"`
}

// Validate validates SubmitApplicationRequest.
func (r *SubmitApplicationRequest) Validate() error {
	r.JobID = strings.TrimSpace(r.JobID)
	if r.JobID == "" {
		return errors.New("job_id is required")
	}
	if r.Availability == "" {
		return errors.New("availability is required")
	}
	if !r.Availability.Valid() {
		return errors.New("invalid availability")
	}
	if r.CoverLetter != nil && utf8.RuneCountInString(*r.CoverLetter) > maxCoverLetterLen {
		return errors.New("cover_letter cannot exceed 1000 characters")
	}
	if r.ExperienceSummary != nil && utf8.RuneCountInString(*r.ExperienceSummary) > maxCoverLetterLen {
		return errors.New("experience_summary cannot exceed 1000 characters")
	}
	if r.ExpectedSalary != nil && *r.ExpectedSalary < 0 {
		return errors.New("expected_salary must be >= 0")
	}
	if len(r.Skills) > maxSkills {
		return errors.New("skills cannot exceed 20 entries")
	}
	return nil
}

// OfferTerms are supplied when moving an application to offered.
type OfferTerms struct {
	Salary    int64      `json:"salary"`
	StartDate *time.Time `json:"start_date,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// UpdateStatusRequest asks for a workflow transition.
type UpdateStatusRequest struct {
	Status ApplicationStatus `json:"status"`
	Reason *string           `json:"reason,omitempty"`
	Notes  *string           `json:"notes,omitempty"`
	Offer  *OfferTerms       `json:"offer,omitempty"`
}

// Validate validates UpdateStatusRequest.
func (r *UpdateStatusRequest) Validate() error {
	if r.Status == "" {
		return errors.New("status is required")
	}
	if !r.Status.Valid() {
		return errors.New("invalid status")
	}
	if r.Reason != nil && utf8.RuneCountInString(*r.Reason) > maxReasonLen {
		return errors.New("reason cannot exceed 500 characters")
	}
	if r.Notes != nil && utf8.RuneCountInString(*r.Notes) > maxCoverLetterLen {
		return errors.New("notes cannot exceed 1000 characters")
	}
	if r.Offer != nil {
		if r.Status != ApplicationStatusOffered {
			return errors.New("offer terms are only accepted with status offered")
		}
		if r.Offer.Salary < 0 {
			return errors.New("offer salary must be >= 0")
		}
	}
	return nil
}

// WithdrawRequest carries the applicant's optional reason.
type WithdrawRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// Validate validates WithdrawRequest.
func (r *WithdrawRequest) Validate() error {
	if r.Reason != nil && utf8.RuneCountInString(*r.Reason) > maxReasonLen {
		return errors.New("reason cannot exceed 500 characters")
	}
	return nil
}

// AddMessageRequest carries an in-application message.
type AddMessageRequest struct {
	Text string `json:"text"`
}

// Validate validates AddMessageRequest.
func (r *AddMessageRequest) Validate() error {
	return validateMessageText(r.Text)
}

// ScheduleInterviewRequest attaches an interview to an application.
type ScheduleInterviewRequest struct {
	ScheduledAt time.Time     `json:"scheduled_at"`
	Location    string        `json:"location,omitempty"`
	Type        InterviewType `json:"type"`
	Interviewer string        `json:"interviewer,omitempty"`
	Notes       string        `json:"notes,omitempty"`
}

// Validate validates ScheduleInterviewRequest relative to now.
func (r *ScheduleInterviewRequest) Validate(now time.Time) error {
	if r.ScheduledAt.IsZero() {
		return errors.New("scheduled_at is required")
	}
	if !r.ScheduledAt.After(now) {
		return errors.New("scheduled_at must be in the future")
	}
	if r.Type == "" {
		r.Type = InterviewTypeInPerson
	}
	if !r.Type.Valid() {
		return errors.New("invalid interview type")
	}
	if r.Type == InterviewTypeInPerson && strings.TrimSpace(r.Location) == "" {
		return errors.New("location is required for in-person interviews")
	}
	return nil
}

// EvaluationRequest scores an applicant.
type EvaluationRequest struct {
	Skills        int    `json:"skills"`
	Communication int    `json:"communication"`
	Reliability   int    `json:"reliability"`
	Notes         string `json:"notes,omitempty"`
}

// Validate validates EvaluationRequest.
func (r *EvaluationRequest) Validate() error {
	for _, score := range []int{r.Skills, r.Communication, r.Reliability} {
		if score < 1 || score > 5 {
			return errors.New("scores must be between 1 and 5")
		}
	}
	if utf8.RuneCountInString(r.Notes) > maxCoverLetterLen {
		return errors.New("notes cannot exceed 1000 characters")
	}
	return nil
}

// ApplicationListOptions controls paging and filtering for listing applications.
// ApplicantID and EmployerID are scoping filters set by the service from the caller.
type ApplicationListOptions struct {
	ApplicantID *string
	EmployerID  *string
	JobID       *string
	Status      *ApplicationStatus
	Limit       int
	Offset      int
}

// ApplicationStats aggregates a caller's applications by status.
type ApplicationStats struct {
	Total    int                       `json:"total"`
	ByStatus map[ApplicationStatus]int `json:"by_status"`
}

func validateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("text is required")
	}
	if utf8.RuneCountInString(text) > maxMessageLen {
		return errors.New("text cannot exceed 1000 characters")
	}
	return nil
}
