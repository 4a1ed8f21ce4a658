package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"
)

// statusFor maps an application error code to an HTTP status.
// Rule violations are client errors: the request was well-formed but the
// marketplace state does not allow it.
func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation, apperrors.ErrCodeRule:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict, apperrors.ErrCodeForeignKey:
		return http.StatusConflict
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorResponder writes service errors. 5xx responses are logged with their
// cause and the client only sees a generic message.
type errorResponder struct {
	logger *slog.Logger
}

func (e errorResponder) write(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.GetCode(err)
	if code == "" {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			code = apperrors.ErrCodeTimeout
		case errors.Is(err, context.Canceled):
			code = apperrors.ErrCodeCanceled
		default:
			code = apperrors.ErrCodeInternal
		}
	}
	status := statusFor(code)

	if status >= http.StatusInternalServerError {
		e.log().ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
		WriteError(w, ErrorParams{Code: status, ErrCode: string(code), Err: errors.New("internal server error")})
		return
	}

	errCode := string(code)
	if reason := apperrors.GetReason(err); reason != "" {
		errCode = reason
	}
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: errCode, Err: errors.New(msg), Field: apperrors.GetField(err)})
}

func (e errorResponder) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}
