package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"
)

type stubAuthenticator map[string]domainauth.Session

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (domainauth.Session, error) {
	if sess, ok := s[token]; ok {
		return sess, nil
	}
	if token == "boom" {
		return domainauth.Session{}, errors.New("redis: connection refused")
	}
	return domainauth.Session{}, apperrors.Unauthorized("invalid or expired session")
}

func echoCaller(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	writeData(w, http.StatusOK, map[string]string{"user_id": c.UserID, "role": string(c.Role)})
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{"bearer", "Bearer abc", "", "abc"},
		{"case insensitive scheme", "bearer  abc ", "", "abc"},
		{"basic is ignored", "Basic dXNlcjpwdw==", "fallback", ""},
		{"cookie fallback", "", "sess-1", "sess-1"},
		{"nothing", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: sessionCookie, Value: tt.cookie})
			}
			assert.Equal(t, tt.want, tokenFromRequest(r))
		})
	}
}

func TestRequireAuth(t *testing.T) {
	auth := stubAuthenticator{"good": {UserID: "u1", Role: domainauth.RoleWorker}}
	h := RequireAuth(auth, slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(echoCaller))

	tests := []struct {
		name  string
		token string
		code  int
	}{
		{"valid", "good", http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"rejected", "stale", http.StatusUnauthorized},
		{"store failure", "boom", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			assert.Equal(t, tt.code, rec.Code)
			assert.NotContains(t, rec.Body.String(), "redis", "infrastructure detail never reaches clients")
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	auth := stubAuthenticator{"good": {UserID: "u1", Role: domainauth.RoleEmployer}}
	h := OptionalAuth(auth)(http.HandlerFunc(echoCaller))

	for token, want := range map[string]string{"good": "u1", "stale": "", "": ""} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), fmt.Sprintf(`"user_id":"%s"`, want))
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(domainauth.RoleEmployer)(http.HandlerFunc(echoCaller))

	for role, code := range map[domainauth.Role]int{
		domainauth.RoleEmployer: http.StatusOK,
		domainauth.RoleAdmin:    http.StatusOK,
		domainauth.RoleWorker:   http.StatusForbidden,
	} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(WithSession(r.Context(), &domainauth.Session{UserID: "u", Role: role}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, code, rec.Code, role)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecover(t *testing.T) {
	var logs bytes.Buffer
	h := Recover(slog.New(slog.NewTextHandler(&logs, nil)))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"internal","message":"internal server error"}`, rec.Body.String())
	assert.Contains(t, logs.String(), "nil map write")
}

func TestLogging_RecordsCaller(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	auth := stubAuthenticator{"good": {UserID: "u-42", Role: domainauth.RoleWorker}}
	h := Logging(logger)(RequireAuth(auth, logger)(http.HandlerFunc(echoCaller)))

	r := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	r.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Contains(t, logs.String(), `"user_id":"u-42"`)
	assert.Contains(t, logs.String(), `"status":200`)
}

func TestErrorResponder(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		errCode string
		message string
	}{
		{"validation", apperrors.ValidationField("title", "title is required"), http.StatusBadRequest, "validation", "title is required"},
		{"rule uses reason", apperrors.Rule("job_full", "job is full"), http.StatusBadRequest, "job_full", "job is full"},
		{"conflict", apperrors.Conflict("already exists"), http.StatusConflict, "conflict", "already exists"},
		{"forbidden", apperrors.Forbidden("not yours"), http.StatusForbidden, "forbidden", "not yours"},
		{"not found", apperrors.NotFound("job not found").WithReason("job_not_found"), http.StatusNotFound, "job_not_found", "job not found"},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout", "internal server error"},
		{"plain error hides detail", errors.New("pq: relation missing"), http.StatusInternalServerError, "internal", "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			errorResponder{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}.
				write(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.code, rec.Code)
			env := decode(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, tt.errCode, env.Error)
			assert.Equal(t, tt.message, env.Message)
		})
	}
}

func TestCompression(t *testing.T) {
	payload := bytes.Repeat([]byte("kaamsathi "), 200)
	h := Compression(CompressionConfig{Level: 5})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, http.StatusOK, string(payload))
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	r.Header.Set("Accept-Encoding", "gzip, deflate")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Contains(t, rec.Header().Values("Vary"), "Accept-Encoding")
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(body), "kaamsathi kaamsathi")

	r = httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
}

func TestAcceptsGzip(t *testing.T) {
	assert.True(t, acceptsGzip("gzip"))
	assert.True(t, acceptsGzip("br, GZIP;q=0.8"))
	assert.False(t, acceptsGzip("gzip;q=0"))
	assert.False(t, acceptsGzip("deflate"))
	assert.False(t, acceptsGzip(""))
}
