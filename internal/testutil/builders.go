// Package testutil provides testing utilities and helpers for the KaamSathi marketplace.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest(employerID string) *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Title:         "Mason needed for residential site",
			Description:   "Brickwork and plastering for a two-storey house.",
			Category:      model.JobCategoryConstruction,
			JobType:       model.JobTypeDailyWage,
			SalaryMin:     600,
			SalaryMax:     800,
			SalaryPeriod:  model.SalaryPeriodDaily,
			LocationCity:  "Pune",
			LocationState: "Maharashtra",
			MaxApplicants: 5,
			EmployerID:    employerID,
		},
	}
}

// WithTitle sets the title.
func (b *JobRequestBuilder) WithTitle(title string) *JobRequestBuilder {
	b.req.Title = title
	return b
}

// WithMaxApplicants sets the applicant ceiling.
func (b *JobRequestBuilder) WithMaxApplicants(n int) *JobRequestBuilder {
	b.req.MaxApplicants = n
	return b
}

// WithCategory sets the category.
func (b *JobRequestBuilder) WithCategory(c model.JobCategory) *JobRequestBuilder {
	b.req.Category = c
	return b
}

// WithCity sets the city.
func (b *JobRequestBuilder) WithCity(city string) *JobRequestBuilder {
	b.req.LocationCity = city
	return b
}

// WithSalary sets the salary range.
func (b *JobRequestBuilder) WithSalary(lo, hi int64) *JobRequestBuilder {
	b.req.SalaryMin = lo
	b.req.SalaryMax = hi
	return b
}

// WithStatus sets the initial status.
func (b *JobRequestBuilder) WithStatus(s model.JobStatus) *JobRequestBuilder {
	b.req.Status = s
	return b
}

// WithExpiresAt sets the expiry.
func (b *JobRequestBuilder) WithExpiresAt(t time.Time) *JobRequestBuilder {
	b.req.ExpiresAt = &t
	return b
}

// Urgent marks the job urgent.
func (b *JobRequestBuilder) Urgent() *JobRequestBuilder {
	b.req.IsUrgent = true
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	cp := *b.req
	return &cp
}

// NewApplicationRequest returns a valid submission for jobID.
func NewApplicationRequest(jobID string) *model.SubmitApplicationRequest {
	cover := "I have five years of masonry experience."
	return &model.SubmitApplicationRequest{
		JobID:        jobID,
		CoverLetter:  &cover,
		Availability: model.AvailabilityImmediate,
		Skills:       []string{"brickwork", "plastering"},
	}
}

// SeedUser inserts a user of the given type and returns its id.
func SeedUser(t TestingTB, db *sql.DB, userType model.UserType, name string) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id string
	err := db.QueryRowContext(ctx, `
		INSERT INTO users (external_id, user_type, name)
		VALUES ($1, $2, $3)
		RETURNING id`,
		fmt.Sprintf("test|%s", uuid.NewString()), userType, name,
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to seed %s user: %v", userType, err)
	}
	return id
}
