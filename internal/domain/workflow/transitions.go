// Package workflow holds the application status state machine.
package workflow

import (
	"fmt"

	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
)

// Actor is the side of the marketplace requesting a transition.
type Actor int

const (
	// ActorEmployer covers the job's employer and admins.
	ActorEmployer Actor = iota
	// ActorApplicant is the worker who submitted the application.
	ActorApplicant
)

type (
	status = model.ApplicationStatus
)

// allowed lists every legal next status per current status. Terminal states
// have no entry. Rescheduling an interview is a self-transition.
var allowed = map[status][]status{
	model.ApplicationStatusApplied: {
		model.ApplicationStatusUnderReview,
		model.ApplicationStatusShortlisted,
		model.ApplicationStatusRejected,
		model.ApplicationStatusWithdrawn,
		model.ApplicationStatusExpired,
	},
	model.ApplicationStatusUnderReview: {
		model.ApplicationStatusShortlisted,
		model.ApplicationStatusRejected,
		model.ApplicationStatusWithdrawn,
		model.ApplicationStatusExpired,
	},
	model.ApplicationStatusShortlisted: {
		model.ApplicationStatusInterviewScheduled,
		model.ApplicationStatusOffered,
		model.ApplicationStatusRejected,
		model.ApplicationStatusWithdrawn,
		model.ApplicationStatusExpired,
	},
	model.ApplicationStatusInterviewScheduled: {
		model.ApplicationStatusInterviewScheduled,
		model.ApplicationStatusInterviewed,
		model.ApplicationStatusRejected,
		model.ApplicationStatusExpired,
	},
	model.ApplicationStatusInterviewed: {
		model.ApplicationStatusOffered,
		model.ApplicationStatusRejected,
		model.ApplicationStatusExpired,
	},
	model.ApplicationStatusOffered: {
		model.ApplicationStatusHired,
		model.ApplicationStatusRejected,
		model.ApplicationStatusExpired,
	},
}

// InvalidTransitionError reports a jump the state machine does not allow.
type InvalidTransitionError struct {
	From model.ApplicationStatus
	To   model.ApplicationStatus
}

func (e *InvalidTransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("application is %s and can no longer change status", e.From)
	}
	return fmt.Sprintf("cannot move application from %s to %s", e.From, e.To)
}

// String names the actor in messages.
func (a Actor) String() string {
	if a == ActorApplicant {
		return "applicant"
	}
	return "employer"
}

// ForbiddenTransitionError reports a legal jump requested by the wrong side.
type ForbiddenTransitionError struct {
	To    model.ApplicationStatus
	Actor Actor
}

func (e *ForbiddenTransitionError) Error() string {
	if e.Actor == ActorApplicant {
		return fmt.Sprintf("the applicant cannot set status %s; only withdrawal is allowed", e.To)
	}
	return fmt.Sprintf("the %s cannot set status %s; it can only be set by the applicant", e.Actor, e.To)
}

// Allowed reports whether from -> to is in the table.
func Allowed(from, to model.ApplicationStatus) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next returns the legal next statuses from the given status.
func Next(from model.ApplicationStatus) []model.ApplicationStatus {
	out := make([]model.ApplicationStatus, len(allowed[from]))
	copy(out, allowed[from])
	return out
}

// Transition validates a move from current to next requested by actor and
// returns the new status. Withdrawal belongs to the applicant and is the only
// move the applicant may make.
func Transition(current, next model.ApplicationStatus, actor Actor) (model.ApplicationStatus, error) {
	if !next.Valid() {
		return current, &InvalidTransitionError{From: current, To: next}
	}
	switch actor {
	case ActorApplicant:
		if next != model.ApplicationStatusWithdrawn {
			return current, &ForbiddenTransitionError{To: next, Actor: actor}
		}
	case ActorEmployer:
		if next == model.ApplicationStatusWithdrawn {
			return current, &ForbiddenTransitionError{To: next, Actor: actor}
		}
	}
	if !Allowed(current, next) {
		return current, &InvalidTransitionError{From: current, To: next}
	}
	return next, nil
}
