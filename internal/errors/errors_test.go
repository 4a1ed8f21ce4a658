package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "job not found"},
			want: "job not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "failed to submit",
				Cause:   errors.New("connection reset"),
			},
			want: "failed to submit: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternal, "wrapped")

	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "nothing %d", 1))
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code ErrorCode
		msg  string
	}{
		{"not found", NotFound("missing"), ErrCodeNotFound, "missing"},
		{"not foundf", NotFoundf("job %s", "j1"), ErrCodeNotFound, "job j1"},
		{"conflict", Conflict("exists"), ErrCodeConflict, "exists"},
		{"validation", Validation("bad"), ErrCodeValidation, "bad"},
		{"validationf", Validationf("bad %d", 3), ErrCodeValidation, "bad 3"},
		{"forbidden", Forbidden("no"), ErrCodeForbidden, "no"},
		{"unauthorized", Unauthorized("who"), ErrCodeUnauthorized, "who"},
		{"foreign key", ForeignKey("fk"), ErrCodeForeignKey, "fk"},
		{"internal", Internalf("boom %s", "x"), ErrCodeInternal, "boom x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.msg, tt.err.Message)
		})
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("cover_letter", "too long")
	assert.True(t, IsValidation(err))
	assert.Equal(t, "cover_letter", GetField(err))
}

func TestRule_IsMatchesReason(t *testing.T) {
	full := Rule("job_full", "job has reached its applicant limit")
	dup := Rule("duplicate_application", "already applied")

	wrapped := fmt.Errorf("submit: %w", full.WithCause(errors.New("counter check")))

	assert.ErrorIs(t, wrapped, full)
	assert.NotErrorIs(t, wrapped, dup)
	assert.True(t, IsRule(wrapped))
	assert.Equal(t, "job_full", GetReason(wrapped))

	// Errors without a reason never match by code alone.
	assert.NotErrorIs(t, NotFound("a"), NotFound("b"))
}

func TestWithReason_DoesNotMutate(t *testing.T) {
	base := NotFound("job not found")
	tagged := base.WithReason("job_not_found")

	assert.Empty(t, base.Reason)
	assert.Equal(t, "job_not_found", tagged.Reason)
	assert.True(t, IsNotFound(tagged))
}

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("layer: %w", Forbidden("nope"))

	assert.True(t, IsForbidden(wrapped))
	assert.False(t, IsUnauthorized(wrapped))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.True(t, IsConflict(Conflict("x")))
	assert.True(t, IsForeignKey(ForeignKey("x")))
	assert.True(t, IsTimeout(&AppError{Code: ErrCodeTimeout}))
	assert.True(t, IsCanceled(&AppError{Code: ErrCodeCanceled}))
	assert.True(t, IsUnauthorized(Unauthorized("x")))
}

func TestGetCode(t *testing.T) {
	require.Equal(t, ErrCodeValidation, GetCode(fmt.Errorf("wrap: %w", Validation("x"))))
	assert.Equal(t, ErrorCode(""), GetCode(errors.New("plain")))
	assert.Empty(t, GetReason(errors.New("plain")))
	assert.Empty(t, GetField(nil))
}
