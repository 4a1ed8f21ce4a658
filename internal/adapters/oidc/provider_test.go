package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/kaamsathi/kaamsathi-api/internal/ports"
)

// fakeIdP is a minimal OpenID provider: discovery, JWKS, token and userinfo.
type fakeIdP struct {
	t      *testing.T
	key    *rsa.PrivateKey
	signer jose.Signer
	srv    *httptest.Server

	mu       sync.Mutex
	idClaims map[string]any // next id_token issued by the token endpoint
	userInfo map[string]any
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithHeader("kid", "k1").WithType("JWT"),
	)
	require.NoError(t, err)

	idp := &fakeIdP{t: t, key: key, signer: signer}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		idp.writeJSON(w, map[string]any{
			"issuer":                 idp.issuer(),
			"authorization_endpoint": idp.issuer() + "/authorize",
			"token_endpoint":         idp.issuer() + "/token",
			"userinfo_endpoint":      idp.issuer() + "/userinfo",
			"jwks_uri":               idp.issuer() + "/jwks",
		})
	})
	mux.HandleFunc("GET /jwks", func(w http.ResponseWriter, _ *http.Request) {
		idp.writeJSON(w, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
			{Key: &key.PublicKey, KeyID: "k1", Algorithm: string(jose.RS256), Use: "sig"},
		}})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		idp.mu.Lock()
		claims := idp.idClaims
		idp.mu.Unlock()
		resp := map[string]any{"access_token": "at-1", "token_type": "Bearer", "expires_in": 3600}
		if claims != nil {
			resp["id_token"] = idp.sign(claims)
		}
		idp.writeJSON(w, resp)
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		idp.mu.Lock()
		defer idp.mu.Unlock()
		idp.writeJSON(w, idp.userInfo)
	})
	idp.srv = httptest.NewServer(mux)
	t.Cleanup(idp.srv.Close)
	return idp
}

func (f *fakeIdP) issuer() string { return f.srv.URL }

func (f *fakeIdP) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(f.t, json.NewEncoder(w).Encode(v))
}

func (f *fakeIdP) sign(claims map[string]any) string {
	payload, err := json.Marshal(claims)
	require.NoError(f.t, err)
	obj, err := f.signer.Sign(payload)
	require.NoError(f.t, err)
	raw, err := obj.CompactSerialize()
	require.NoError(f.t, err)
	return raw
}

// claims returns a valid id_token claim set for subject, merged with extra.
func (f *fakeIdP) claims(subject string, extra map[string]any) map[string]any {
	now := time.Now()
	c := map[string]any{
		"iss": f.issuer(), "aud": "kaamsathi", "sub": subject,
		"iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		c[k] = v
	}
	return c
}

func (f *fakeIdP) provider(scope string) *Provider {
	f.t.Helper()
	p, err := NewProvider(ProviderConfig{
		ClientID:     "kaamsathi",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		Scope:        scope,
		DiscoveryURL: f.issuer() + discoverySuffix,
		LogoutURL:    f.issuer() + "/logout",
	})
	require.NoError(f.t, err)
	return p
}

func TestNewProvider_Discovery(t *testing.T) {
	idp := newFakeIdP(t)
	p := idp.provider("openid email")

	assert.Equal(t, idp.issuer()+"/logout", p.LogoutURL())
	assert.Equal(t, idp.issuer()+"/authorize", p.config.Endpoint.AuthURL)
	assert.Equal(t, idp.issuer()+"/token", p.config.Endpoint.TokenURL)
	assert.Equal(t, []string{"openid", "email"}, p.config.Scopes)
}

func TestNewProvider_ReportsEveryMissingField(t *testing.T) {
	_, err := NewProvider(ProviderConfig{ClientID: "kaamsathi", RedirectURL: " "})
	require.Error(t, err)
	for _, msg := range []string{"client secret is required", "redirect URL is required", "discovery URL is required"} {
		assert.ErrorContains(t, err, msg)
	}
	assert.NotContains(t, err.Error(), "client ID")
}

func TestProviderConfig_Issuer(t *testing.T) {
	for in, want := range map[string]string{
		"https://id.example.com/.well-known/openid-configuration": "https://id.example.com",
		"https://id.example.com/realms/kaamsathi/":                "https://id.example.com/realms/kaamsathi",
		"https://id.example.com":                                  "https://id.example.com",
	} {
		assert.Equal(t, want, ProviderConfig{DiscoveryURL: in}.issuer(), in)
	}
}

func TestNewProvider_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	_, err := NewProvider(ProviderConfig{
		ClientID: "c", ClientSecret: "s", RedirectURL: "http://localhost/cb", DiscoveryURL: srv.URL,
	})
	require.ErrorContains(t, err, "oidc discovery")
}

func TestProvider_Begin(t *testing.T) {
	p := newFakeIdP(t).provider("openid email")

	authURL, state, nonce, err := p.Begin(context.Background(), ports.BeginInput{RedirectURL: "/jobs"})
	require.NoError(t, err)
	assert.NotEqual(t, state, nonce)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "kaamsathi", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8080/auth/callback", q.Get("redirect_uri"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, nonce, q.Get("nonce"))
	assert.Equal(t, "select_account", q.Get("prompt"))

	_, _, _, err = p.Begin(context.Background(), ports.BeginInput{})
	require.ErrorContains(t, err, "redirect URL is required")
}

func TestProvider_Exchange_RequiresInputs(t *testing.T) {
	p := newFakeIdP(t).provider("openid")

	for name, in := range map[string]ports.ExchangeInput{
		"authorization code is required": {State: "s", Nonce: "n"},
		"state is required":              {Code: "c", Nonce: "n"},
		"nonce is required":              {Code: "c", State: "s"},
	} {
		_, err := p.Exchange(context.Background(), in)
		assert.ErrorContains(t, err, name)
	}
}

func TestProvider_Exchange_IDTokenAndUserInfo(t *testing.T) {
	idp := newFakeIdP(t)
	p := idp.provider("openid email groups")
	idp.idClaims = idp.claims("idp|sunita", map[string]any{
		"nonce": "n-1", "email": "sunita@example.com", "name": "Sunita Builders",
	})
	idp.userInfo = map[string]any{"sub": "idp|sunita", "groups": []string{"kaamsathi-employers"}, "email": "other@example.com"}

	before := time.Now()
	id, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "good-code", State: "s", Nonce: "n-1"})
	require.NoError(t, err)
	assert.Equal(t, "idp|sunita", id.UserID)
	assert.Equal(t, "sunita@example.com", id.Email, "id_token claims win over userinfo")
	assert.Equal(t, "Sunita", id.FirstName)
	assert.Equal(t, []string{"kaamsathi-employers"}, id.Groups)
	assert.WithinDuration(t, before.Add(time.Hour), id.ExpiresAt, time.Minute)
}

func TestProvider_Exchange_NonceMismatch(t *testing.T) {
	idp := newFakeIdP(t)
	p := idp.provider("openid")
	idp.idClaims = idp.claims("idp|ravi", map[string]any{"nonce": "from-another-login"})

	_, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "good-code", State: "s", Nonce: "n-1"})
	require.EqualError(t, err, "invalid nonce")
}

func TestProvider_Exchange_RejectedCode(t *testing.T) {
	p := newFakeIdP(t).provider("openid")

	_, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "stale", State: "s", Nonce: "n"})
	require.ErrorContains(t, err, "exchange code for token")
}

func TestProvider_Exchange_OAuthOnlyUsesUserInfo(t *testing.T) {
	idp := newFakeIdP(t)
	p := idp.provider("profile")
	idp.userInfo = map[string]any{"sub": "gh|42", "email": "ravi@example.com", "given_name": "Ravi"}

	id, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "good-code", State: "s", Nonce: "n"})
	require.NoError(t, err)
	assert.Equal(t, "gh|42", id.UserID)
	assert.Equal(t, "Ravi", id.FirstName)
}

func TestProvider_Verify(t *testing.T) {
	idp := newFakeIdP(t)
	p := idp.provider("openid email groups")
	ctx := context.Background()

	good := idp.claims("idp|ravi", map[string]any{
		"email": "ravi@example.com", "given_name": "Ravi", "groups": []string{"kaamsathi-workers"},
	})
	id, err := p.Verify(ctx, idp.sign(good))
	require.NoError(t, err)
	assert.Equal(t, "idp|ravi", id.UserID)
	assert.Equal(t, []string{"kaamsathi-workers"}, id.Groups)
	assert.Equal(t, good["exp"], id.ExpiresAt.Unix())

	_, err = p.Verify(ctx, idp.sign(idp.claims("idp|ravi", map[string]any{"aud": "someone-else"})))
	require.ErrorContains(t, err, "verify id_token")

	_, err = p.Verify(ctx, idp.sign(idp.claims("idp|ravi", map[string]any{"exp": time.Now().Add(-time.Minute).Unix()})))
	require.ErrorContains(t, err, "verify id_token")

	_, err = p.Verify(ctx, "not-a-jwt")
	require.Error(t, err)
}

func TestRawIDToken(t *testing.T) {
	raw, err := rawIDToken((&oauth2.Token{}).WithExtra(map[string]any{"id_token": "abc.def.ghi"}))
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", raw)

	_, err = rawIDToken((&oauth2.Token{}).WithExtra(map[string]any{"not_id": "x"}))
	require.ErrorContains(t, err, "missing id_token")

	_, err = rawIDToken(nil)
	require.ErrorContains(t, err, "nil token")
}

func TestClaims_Identity(t *testing.T) {
	c := claims{
		Subject:     "sub-123",
		Email:       "asha@example.com",
		Name:        "Asha  Devi",
		PhoneNumber: "+919812345678",
		Groups:      []string{"kaamsathi-employers"},
		Roles:       []string{"kaamsathi-employers", "beta"},
		ExpiresAt:   1767225600,
	}
	id := c.identity()
	assert.Equal(t, "sub-123", id.UserID)
	assert.Equal(t, "Asha", id.FirstName)
	assert.Equal(t, "Devi", id.LastName)
	assert.Equal(t, "+919812345678", id.Phone)
	assert.Equal(t, []string{"beta", "kaamsathi-employers"}, id.Groups)
	assert.Equal(t, int64(1767225600), id.ExpiresAt.Unix())

	given := claims{Subject: "s", GivenName: "Ravi", FamilyName: "Kumar", Name: "ignored"}
	assert.Equal(t, "Ravi Kumar", given.identity().Name())
}

func TestClaims_Merge(t *testing.T) {
	c := claims{Subject: "keep", Groups: []string{"x"}}
	c.merge(claims{Subject: "other", Email: "e@example.com", GivenName: "G", Groups: []string{"y"}, Roles: []string{"r"}})
	assert.Equal(t, "keep", c.Subject)
	assert.Equal(t, "e@example.com", c.Email)
	assert.Equal(t, "G", c.GivenName)
	assert.Equal(t, []string{"x"}, c.Groups)
	assert.Equal(t, []string{"r"}, c.Roles)
}
