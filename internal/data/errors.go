package data

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kaamsathi/kaamsathi-api/internal/core"
	apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"
)

const applicationsJobApplicantKey = "applications_job_applicant_key"

// ErrNilRequest is returned when a repository is called without its request payload.
var ErrNilRequest = errors.New("request is required")

// mapReadErr turns a missing row into notFound and everything else into an AppError.
func mapReadErr(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	return apperrors.MapDBError(err)
}

// mapWriteErr maps constraint violations raised by inserts and updates.
func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == applicationsJobApplicantKey {
		return core.ErrDuplicateApplication.WithCause(err)
	}
	return apperrors.MapDBError(err)
}

func toPtrs[T any](rows []T) []*T {
	out := make([]*T, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}

// mapUpdateErr is mapWriteErr for statements that RETURN the affected row.
func mapUpdateErr(err error, notFound error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	return mapWriteErr(err)
}

func errNotInTx(op string) error {
	return fmt.Errorf("%s: row locks require a transaction", op)
}
