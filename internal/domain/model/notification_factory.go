//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"fmt"
	"time"
)

type statusCopy struct {
	title    string
	message  string
	priority NotificationPriority
}

// statusNotificationCopy is the fixed wording used when an application changes status.
// The message is formatted with the job title.
var statusNotificationCopy = map[ApplicationStatus]statusCopy{
	ApplicationStatusApplied:            {"Application Submitted", "Your application for %s has been submitted.", NotificationPriorityLow},
	ApplicationStatusUnderReview:        {"Application Under Review", "Your application for %s is being reviewed by the employer.", NotificationPriorityNormal},
	ApplicationStatusShortlisted:        {"You've Been Shortlisted!", "Good news! You have been shortlisted for %s.", NotificationPriorityHigh},
	ApplicationStatusInterviewScheduled: {"Interview Scheduled", "An interview has been scheduled for %s.", NotificationPriorityHigh},
	ApplicationStatusInterviewed:        {"Interview Completed", "Your interview for %s has been marked as completed.", NotificationPriorityNormal},
	ApplicationStatusOffered:            {"Job Offer Received!", "Congratulations! You have received an offer for %s.", NotificationPriorityHigh},
	ApplicationStatusHired:              {"You're Hired!", "Congratulations! You have been hired for %s.", NotificationPriorityHigh},
	ApplicationStatusRejected:           {"Application Update", "Unfortunately, your application for %s was not selected.", NotificationPriorityNormal},
	ApplicationStatusWithdrawn:          {"Application Withdrawn", "Your application for %s has been withdrawn.", NotificationPriorityLow},
	ApplicationStatusExpired:            {"Application Expired", "Your application for %s has expired.", NotificationPriorityLow},
}

// ApplicationActionURL is the client route for an application.
func ApplicationActionURL(applicationID string) string {
	return "/applications/" + applicationID
}

func withExpiry(req CreateNotificationRequest, expiresAt *time.Time) CreateNotificationRequest {
	req.ExpiresAt = expiresAt
	return req
}

// NewJobApplicationNotification tells an employer that a worker applied.
func NewJobApplicationNotification(app *Application, job *Job, applicantName string, expiresAt *time.Time) CreateNotificationRequest {
	url := ApplicationActionURL(app.ID)
	sender := app.ApplicantID
	return withExpiry(CreateNotificationRequest{
		RecipientID: job.EmployerID,
		SenderID:    &sender,
		Type:        NotificationTypeJobApplication,
		Title:       "New Job Application",
		Message:     fmt.Sprintf("%s applied for %s.", nonEmpty(applicantName, "A worker"), job.Title),
		Data:        NotificationData{JobID: job.ID, ApplicationID: app.ID, Status: app.Status},
		ActionURL:   &url,
		Priority:    NotificationPriorityNormal,
	}, expiresAt)
}

// NewApplicationStatusNotification tells the applicant their application moved to status.
func NewApplicationStatusNotification(
	app *Application,
	jobTitle string,
	status ApplicationStatus,
	actorID string,
	expiresAt *time.Time,
) CreateNotificationRequest {
	c, ok := statusNotificationCopy[status]
	if !ok {
		c = statusCopy{"Application Update", "Your application for %s has been updated.", NotificationPriorityNormal}
	}
	url := ApplicationActionURL(app.ID)
	return withExpiry(CreateNotificationRequest{
		RecipientID: app.ApplicantID,
		SenderID:    optionalID(actorID),
		Type:        NotificationTypeApplicationStatusChange,
		Title:       c.title,
		Message:     fmt.Sprintf(c.message, nonEmpty(jobTitle, "this job")),
		Data:        NotificationData{JobID: app.JobID, ApplicationID: app.ID, Status: status},
		ActionURL:   &url,
		Priority:    c.priority,
	}, expiresAt)
}

// NewWithdrawalNotification tells the employer the applicant withdrew.
func NewWithdrawalNotification(app *Application, jobTitle string, expiresAt *time.Time) CreateNotificationRequest {
	url := ApplicationActionURL(app.ID)
	sender := app.ApplicantID
	return withExpiry(CreateNotificationRequest{
		RecipientID: app.EmployerID,
		SenderID:    &sender,
		Type:        NotificationTypeApplicationStatusChange,
		Title:       "Application Withdrawn",
		Message:     fmt.Sprintf("An applicant withdrew their application for %s.", nonEmpty(jobTitle, "your job")),
		Data:        NotificationData{JobID: app.JobID, ApplicationID: app.ID, Status: ApplicationStatusWithdrawn},
		ActionURL:   &url,
		Priority:    NotificationPriorityLow,
	}, expiresAt)
}

// NewInterviewNotification tells the applicant when and where the interview is.
func NewInterviewNotification(app *Application, jobTitle string, iv Interview, expiresAt *time.Time) CreateNotificationRequest {
	url := ApplicationActionURL(app.ID)
	sender := app.EmployerID
	where := string(iv.Type)
	if iv.Location != "" {
		where = iv.Location
	}
	return withExpiry(CreateNotificationRequest{
		RecipientID: app.ApplicantID,
		SenderID:    &sender,
		Type:        NotificationTypeInterviewScheduled,
		Title:       "Interview Scheduled",
		Message: fmt.Sprintf("Interview for %s on %s (%s).",
			nonEmpty(jobTitle, "your application"), iv.ScheduledAt.UTC().Format("02 Jan 2006 15:04 MST"), where),
		Data:      NotificationData{JobID: app.JobID, ApplicationID: app.ID, Status: ApplicationStatusInterviewScheduled},
		ActionURL: &url,
		Priority:  NotificationPriorityHigh,
	}, expiresAt)
}

// NewOfferNotification tells the applicant the offered salary.
func NewOfferNotification(app *Application, jobTitle string, offer Offer, expiresAt *time.Time) CreateNotificationRequest {
	url := ApplicationActionURL(app.ID)
	sender := app.EmployerID
	return withExpiry(CreateNotificationRequest{
		RecipientID: app.ApplicantID,
		SenderID:    &sender,
		Type:        NotificationTypeOfferExtended,
		Title:       "Offer Extended",
		Message:     fmt.Sprintf("You have an offer of ₹%d for %s.", offer.Salary, nonEmpty(jobTitle, "this job")),
		Data:        NotificationData{JobID: app.JobID, ApplicationID: app.ID, Status: ApplicationStatusOffered},
		ActionURL:   &url,
		Priority:    NotificationPriorityHigh,
	}, expiresAt)
}

// NewApplicationMessageNotification tells the counterpart about an in-application message.
func NewApplicationMessageNotification(app *Application, msg *ApplicationMessage, expiresAt *time.Time) CreateNotificationRequest {
	url := ApplicationActionURL(app.ID)
	sender := msg.SenderID
	return withExpiry(CreateNotificationRequest{
		RecipientID: app.Counterpart(msg.SenderID),
		SenderID:    &sender,
		Type:        NotificationTypeMessageReceived,
		Title:       "New Message",
		Message:     preview(msg.Text),
		Data:        NotificationData{JobID: app.JobID, ApplicationID: app.ID, MessageID: msg.ID},
		ActionURL:   &url,
		Priority:    NotificationPriorityNormal,
	}, expiresAt)
}

// NewDirectMessageNotification tells the receiver about a direct message.
func NewDirectMessageNotification(msg *Message, senderName string, expiresAt *time.Time) CreateNotificationRequest {
	url := "/messages/" + msg.SenderID
	sender := msg.SenderID
	return withExpiry(CreateNotificationRequest{
		RecipientID: msg.ReceiverID,
		SenderID:    &sender,
		Type:        NotificationTypeMessageReceived,
		Title:       "New message from " + nonEmpty(senderName, "a user"),
		Message:     preview(msg.Text),
		Data:        NotificationData{MessageID: msg.ID},
		ActionURL:   &url,
		Priority:    NotificationPriorityNormal,
	}, expiresAt)
}

// NewJobExpiredNotification tells the employer their posting expired.
func NewJobExpiredNotification(job *Job, expiresAt *time.Time) CreateNotificationRequest {
	url := "/jobs/" + job.ID
	return withExpiry(CreateNotificationRequest{
		RecipientID: job.EmployerID,
		Type:        NotificationTypeJobExpired,
		Title:       "Job Posting Expired",
		Message:     fmt.Sprintf("Your job posting %s has expired.", job.Title),
		Data:        NotificationData{JobID: job.ID},
		ActionURL:   &url,
		Priority:    NotificationPriorityLow,
	}, expiresAt)
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= 100 {
		return text
	}
	return string(r[:100]) + "..."
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
