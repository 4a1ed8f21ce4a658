package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	"github.com/kaamsathi/kaamsathi-api/internal/ports"
)

func cookieMap(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestAuthHandlers_LoginSanitizesRedirect(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name     string
		redirect string
		want     string
	}{
		{"relative path kept", "/jobs?city=Pune", "/jobs?city=Pune"},
		{"absolute url dropped", "https://evil.example.com/", "/"},
		{"scheme relative dropped", "//evil.example.com", "/"},
		{"empty defaults to root", "", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, "/auth/login?redirect_uri="+url.QueryEscape(tt.redirect), "", nil)
			require.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, "https://mock-idp/auth", rec.Header().Get("Location"))

			cookies := cookieMap(rec)
			require.Contains(t, cookies, "post_login_redirect")
			assert.Equal(t, tt.want, cookies["post_login_redirect"].Value)
			assert.NotEmpty(t, cookies["oauth_state"].Value)
			assert.NotEmpty(t, cookies["oauth_nonce"].Value)
			assert.True(t, cookies["oauth_state"].HttpOnly)
		})
	}
}

func callbackRequest(state, cookieState string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+state, nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: cookieState})
	req.AddCookie(&http.Cookie{Name: "oauth_nonce", Value: "nonce-1"})
	req.AddCookie(&http.Cookie{Name: "post_login_redirect", Value: "/applications"})
	return req
}

func TestAuthHandlers_Callback(t *testing.T) {
	t.Run("state mismatch", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, callbackRequest("state-1", "state-2"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_state", decode(t, rec).Error)
		assert.Zero(t, f.sessions.Len())
	})

	t.Run("missing code", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(http.MethodGet, "/auth/callback?state=s", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "missing_code", decode(t, rec).Error)
	})

	t.Run("browser is redirected to the frontend", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, callbackRequest("state-1", "state-1"))
		require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
		assert.Equal(t, "https://app.kaamsathi.test/applications", rec.Header().Get("Location"))

		cookies := cookieMap(rec)
		require.Contains(t, cookies, sessionCookie)
		assert.NotEmpty(t, cookies[sessionCookie].Value)
		assert.Equal(t, -1, cookies["oauth_state"].MaxAge)
		assert.Equal(t, 1, f.sessions.Len())

		exchanges := f.provider.Exchanges()
		require.Len(t, exchanges, 1)
		assert.Equal(t, ports.ExchangeInput{Code: "abc", State: "state-1", Nonce: "nonce-1"}, exchanges[0])
	})

	t.Run("api client receives the token", func(t *testing.T) {
		f := newAPIFixture(t)
		req := callbackRequest("state-1", "state-1")
		req.Header.Set("Accept", "application/json")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		login := decodeData[loginResponse](t, rec)
		require.NotEmpty(t, login.Token)
		require.NotNil(t, login.User)
		assert.Equal(t, model.UserTypeWorker, login.User.Type)
		assert.Equal(t, "Ravi Kumar", login.User.Name)

		me := f.do(http.MethodGet, "/api/users/me", login.Token, nil)
		assert.Equal(t, http.StatusOK, me.Code)
	})

	t.Run("provider failure is unauthorized", func(t *testing.T) {
		f := newAPIFixture(t)
		f.provider.ExchangeFunc = func(context.Context, ports.ExchangeInput) (domainauth.Identity, error) {
			return domainauth.Identity{}, errors.New("code already used")
		}
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, callbackRequest("state-1", "state-1"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthHandlers_DevLoginAndLogout(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/auth/dev-login", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decodeData[loginResponse](t, rec)
	require.NotEmpty(t, login.Token)
	assert.Contains(t, cookieMap(rec), sessionCookie)

	rec = f.do(http.MethodPost, "/auth/logout", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -1, cookieMap(rec)[sessionCookie].MaxAge)
	assert.Zero(t, f.sessions.Len())

	rec = f.do(http.MethodGet, "/api/users/me", login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlers_DevLoginDisabled(t *testing.T) {
	f := newAPIFixture(t, func(rs *RouterServices) { rs.DevLoginEnabled = false })
	rec := f.do(http.MethodPost, "/auth/dev-login", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, f.sessions.Len())
}

func TestSafeRedirectPath(t *testing.T) {
	assert.Equal(t, "/", safeRedirectPath(""))
	assert.Equal(t, "/a/b?c=1", safeRedirectPath("/a/b?c=1"))
	assert.Equal(t, "/", safeRedirectPath("javascript:alert(1)"))
	assert.Equal(t, "/", safeRedirectPath("relative/path"))
	assert.Equal(t, "/", safeRedirectPath("//host/path"))
}
