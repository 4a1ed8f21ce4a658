package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"
)

// sessionCookie carries the opaque session id for browser clients.
const sessionCookie = "session_id"

// Authenticator resolves a bearer token or session id to a session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domainauth.Session, error)
}

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			}
			if ww.ctx != nil {
				if s, ok := SessionFrom(ww.ctx); ok {
					attrs = append(attrs, slog.String("user_id", s.UserID))
				}
			}
			logger.Info("http", attrs...)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
	// ctx is the innermost request context seen by auth middleware, so the
	// access log can name the caller.
	ctx context.Context
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					WriteError(w, ErrorParams{
						Code:    http.StatusInternalServerError,
						ErrCode: string(apperrors.ErrCodeInternal),
						Err:     errors.New("internal server error"),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth returns a middleware that requires authentication.
// Tokens come from the Authorization header and fall back to the session cookie.
func RequireAuth(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	errs := errorResponder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				writeAuthRequired(w)
				return
			}
			session, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				errs.write(w, r, err)
				return
			}
			next.ServeHTTP(w, withSession(w, r, &session))
		})
	}
}

// OptionalAuth attaches a session when a valid token is presented.
// Invalid or missing tokens leave the request anonymous.
func OptionalAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := tokenFromRequest(r); token != "" {
				if session, err := auth.Authenticate(r.Context(), token); err == nil {
					r = withSession(w, r, &session)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects callers whose role is not listed. Admins always pass.
// It must run inside RequireAuth.
func RequireRole(roles ...domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := SessionFrom(r.Context())
			if !ok {
				writeAuthRequired(w)
				return
			}
			if !hasRequiredRole(session.Role, roles) {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Err:     errors.New("insufficient permissions"),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasRequiredRole(role domainauth.Role, allowed []domainauth.Role) bool {
	if role == domainauth.RoleAdmin {
		return true
	}
	return slices.Contains(allowed, role)
}

func writeAuthRequired(w http.ResponseWriter) {
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: "authentication_required",
		Err:     errors.New("authentication required"),
	})
}

func withSession(w http.ResponseWriter, r *http.Request, s *domainauth.Session) *http.Request {
	ctx := WithSession(r.Context(), s)
	if rw := findRespWriter(w); rw != nil {
		rw.ctx = ctx
	}
	return r.WithContext(ctx)
}

func findRespWriter(w http.ResponseWriter) *respWriter {
	for w != nil {
		if rw, ok := w.(*respWriter); ok {
			return rw
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return nil
		}
		w = u.Unwrap()
	}
	return nil
}

// tokenFromRequest extracts a bearer token, then the session cookie.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}
