package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_EffectiveStatus_LazyExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	job := &Job{Status: JobStatusActive, IsActive: true, ExpiresAt: now.Add(time.Hour), MaxApplicants: 2}

	assert.Equal(t, JobStatusActive, job.EffectiveStatus(now))
	assert.True(t, job.AcceptsApplications(now))

	later := now.Add(2 * time.Hour)
	assert.Equal(t, JobStatusExpired, job.EffectiveStatus(later))
	assert.False(t, job.AcceptsApplications(later))

	// Only active jobs expire.
	job.Status = JobStatusPaused
	assert.Equal(t, JobStatusPaused, job.EffectiveStatus(later))
}

func TestJob_AcceptsApplications_RequiresIsActive(t *testing.T) {
	now := time.Now()
	job := &Job{Status: JobStatusActive, IsActive: false, ExpiresAt: now.Add(time.Hour)}
	assert.False(t, job.AcceptsApplications(now))
}

func TestJob_IsFull(t *testing.T) {
	job := &Job{MaxApplicants: 1}
	assert.False(t, job.IsFull())
	job.CurrentApplicants = 1
	assert.True(t, job.IsFull())
}

func validCreateJob() CreateJobRequest {
	return CreateJobRequest{
		Title:         "  Mason for site work ",
		Description:   "Brick work for a two storey house",
		Category:      JobCategoryConstruction,
		JobType:       JobTypeDailyWage,
		SalaryMin:     600,
		SalaryMax:     800,
		LocationCity:  "Pune",
		LocationState: "Maharashtra",
	}
}

func TestCreateJobRequest_Validate(t *testing.T) {
	req := validCreateJob()
	require.NoError(t, req.Validate())
	assert.Equal(t, "Mason for site work", req.Title)
	assert.Equal(t, SalaryPeriodDaily, req.SalaryPeriod)

	tests := []struct {
		name   string
		mutate func(r *CreateJobRequest)
	}{
		{"empty title", func(r *CreateJobRequest) { r.Title = " " }},
		{"bad category", func(r *CreateJobRequest) { r.Category = "acting" }},
		{"bad type", func(r *CreateJobRequest) { r.JobType = "gig" }},
		{"inverted salary", func(r *CreateJobRequest) { r.SalaryMin, r.SalaryMax = 900, 100 }},
		{"negative salary", func(r *CreateJobRequest) { r.SalaryMin = -1 }},
		{"missing city", func(r *CreateJobRequest) { r.LocationCity = "" }},
		{"too many applicants", func(r *CreateJobRequest) { r.MaxApplicants = 5000 }},
		{"closed on create", func(r *CreateJobRequest) { r.Status = JobStatusClosed }},
		{"expired on create", func(r *CreateJobRequest) { r.Status = JobStatusExpired }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validCreateJob()
			tt.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestUpdateJobRequest_Validate(t *testing.T) {
	current := &Job{SalaryMin: 500, SalaryMax: 700, CurrentApplicants: 4}

	assert.Error(t, (&UpdateJobRequest{}).Validate(current))

	lower := 3
	assert.Error(t, (&UpdateJobRequest{MaxApplicants: &lower}).Validate(current))

	minOnly := int64(800)
	assert.Error(t, (&UpdateJobRequest{SalaryMin: &minOnly}).Validate(current), "min above stored max")

	expired := JobStatusExpired
	assert.Error(t, (&UpdateJobRequest{Status: &expired}).Validate(current))

	paused := JobStatusPaused
	ok := 10
	assert.NoError(t, (&UpdateJobRequest{Status: &paused, MaxApplicants: &ok}).Validate(current))
}
