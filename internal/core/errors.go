package core

import apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"

// Sentinel errors shared by repositories and services. They compare with
// errors.Is on code and reason, so wrapped copies still match.
var (
	ErrUserNotFound         = apperrors.NotFound("user not found").WithReason("user_not_found")
	ErrJobNotFound          = apperrors.NotFound("job not found").WithReason("job_not_found")
	ErrApplicationNotFound  = apperrors.NotFound("application not found").WithReason("application_not_found")
	ErrNotificationNotFound = apperrors.NotFound("notification not found").WithReason("notification_not_found")
	ErrMessageNotFound      = apperrors.NotFound("message not found").WithReason("message_not_found")

	ErrJobUnavailable       = apperrors.Rule("job_unavailable", "job is no longer accepting applications")
	ErrJobFull              = apperrors.Rule("job_full", "job has reached its maximum number of applicants")
	ErrDuplicateApplication = apperrors.Rule("duplicate_application", "you have already applied for this job")
	ErrInvalidTransition    = apperrors.Rule("invalid_transition", "status change is not allowed")
	ErrInvalidState         = apperrors.Rule("invalid_state", "application can no longer be withdrawn")
	ErrApplicantsOverCap    = apperrors.Rule("max_applicants_below_current", "max_applicants cannot be lower than current_applicants")

	ErrNotParticipant = apperrors.Unauthorized("not authorized to access this application").WithReason("not_participant")
	ErrAccountBlocked = apperrors.Unauthorized("account is blocked or inactive").WithReason("account_blocked")
)
