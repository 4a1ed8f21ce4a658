package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// constraintError describes how a named schema constraint surfaces to clients.
type constraintError struct {
	code    ErrorCode
	reason  string
	field   string
	message string
}

// knownConstraints covers the named constraints in the marketplace schema.
var knownConstraints = map[string]constraintError{
	"users_external_id_key": {
		code: ErrCodeConflict, field: "external_id",
		message: "An account already exists for this identity.",
	},
	"jobs_salary_range_check": {
		code: ErrCodeValidation, field: "salary_min",
		message: "Minimum salary must be between 0 and the maximum salary.",
	},
	"jobs_capacity_check": {
		code: ErrCodeRule, reason: "job_full",
		message: "This job is not accepting more applications.",
	},
	"jobs_counters_check": {
		code: ErrCodeRule, reason: "counter_underflow",
		message: "Job counters cannot go below zero.",
	},
	"messages_distinct_parties_check": {
		code: ErrCodeValidation, field: "receiver_id",
		message: "You cannot send a message to yourself.",
	},
}

var (
	// Key (job_id, applicant_id)=(...) already exists.
	reDetailKey = regexp.MustCompile(`^Key \(([^)]+)\)=`)
	// ... is not present in table "jobs" / is still referenced from table "applications"
	reDetailTable = regexp.MustCompile(`(is not present in|is still referenced from) table "?([a-z_]+)"?`)
)

// MapDBError turns driver and context errors into *AppError values. Errors it
// does not recognise are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &AppError{Code: ErrCodeTimeout, Message: "Request timed out. Please try again.", Cause: err}
	case errors.Is(err, context.Canceled):
		return &AppError{Code: ErrCodeCanceled, Message: "Request was canceled.", Cause: err}
	case errors.Is(err, pgx.ErrNoRows):
		return &AppError{Code: ErrCodeNotFound, Message: "Resource not found", Cause: err}
	case errors.As(err, &pgErr):
		return mapPgError(pgErr)
	}
	return err
}

func mapPgError(pgErr *pgconn.PgError) *AppError {
	if known, ok := knownConstraints[pgErr.ConstraintName]; ok {
		return &AppError{Code: known.code, Reason: known.reason, Field: known.field, Message: known.message, Cause: pgErr}
	}

	out := &AppError{Cause: pgErr}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		out.Code = ErrCodeConflict
		out.Field = violatedColumns(pgErr)
		out.Message = "This value already exists. Please choose a different one."
	case pgerrcode.ForeignKeyViolation:
		out.Code = ErrCodeForeignKey
		out.Field = violatedColumns(pgErr)
		out.Message = foreignKeyMessage(pgErr)
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		out.Code = ErrCodeValidation
		out.Field = pgErr.ColumnName
		out.Message = "Invalid data. Please check your input."
		if pgErr.Code == pgerrcode.NotNullViolation {
			out.Message = "Required field is missing."
		}
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
		out.Code = ErrCodeConflict
		out.Reason = "retry"
		out.Message = "The record was changed by another request. Please try again."
	case pgerrcode.QueryCanceled:
		out.Code = ErrCodeTimeout
		out.Message = "Request timed out. Please try again."
	default:
		out.Code = ErrCodeInternal
		out.Message = "A database error occurred. Please try again."
	}
	return out
}

// violatedColumns prefers driver metadata, then the "Key (...)=" detail.
func violatedColumns(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reDetailKey.FindStringSubmatch(pgErr.Detail); m != nil {
		return m[1]
	}
	return ""
}

func foreignKeyMessage(pgErr *pgconn.PgError) string {
	if m := reDetailTable.FindStringSubmatch(pgErr.Detail); m != nil {
		noun := tableNoun(m[2])
		if m[1] == "is still referenced from" {
			return "Cannot delete because this item is in use by " + noun + "."
		}
		return "The referenced " + noun + " does not exist."
	}
	if pgErr.TableName != "" {
		return "The referenced " + tableNoun(pgErr.TableName) + " does not exist."
	}
	return "Cannot complete operation because a related record is missing or in use."
}

// tableNoun names a table for end users: "saved_jobs" becomes "saved job".
func tableNoun(table string) string {
	switch table = strings.ToLower(strings.TrimSpace(table)); table {
	case "application_status_history", "application_messages":
		return "application"
	case "users":
		return "user"
	}
	noun := strings.ReplaceAll(table, "_", " ")
	return strings.TrimSuffix(noun, "s")
}
