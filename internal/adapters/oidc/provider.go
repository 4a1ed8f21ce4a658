// Package oidc provides OIDC/OAuth authentication adapters: the browser login
// flow and verification of ID tokens presented as API bearer tokens.
package oidc

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/ports"
)

var (
	_ ports.AuthProvider  = (*Provider)(nil)
	_ ports.TokenVerifier = (*Provider)(nil)
)

// Provider implements ports.AuthProvider and ports.TokenVerifier using OIDC/OAuth2.
type Provider struct {
	config     *oauth2.Config
	logoutURL  string
	httpClient *http.Client

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	LogoutURL    string
	HTTPClient   *http.Client // Optional, defaults to a 30s timeout client
}

const discoverySuffix = "/.well-known/openid-configuration"

func (c ProviderConfig) validate() error {
	var errs []error
	for _, f := range []struct{ name, val string }{
		{"client ID", c.ClientID},
		{"client secret", c.ClientSecret},
		{"redirect URL", c.RedirectURL},
		{"discovery URL", c.DiscoveryURL},
	} {
		if strings.TrimSpace(f.val) == "" {
			errs = append(errs, fmt.Errorf("%s is required", f.name))
		}
	}
	return errors.Join(errs...)
}

// issuer derives the issuer URL from the discovery URL; go-oidc appends the
// well-known path itself and checks the document's issuer against it.
func (c ProviderConfig) issuer() string {
	return strings.TrimSuffix(strings.TrimSuffix(c.DiscoveryURL, "/"), discoverySuffix)
}

// NewProvider fetches the discovery document once and builds the provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}

	op, err := gooidc.NewProvider(gooidc.ClientContext(context.Background(), hc), cfg.issuer())
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       strings.Fields(cfg.Scope),
			Endpoint:     op.Endpoint(),
		},
		logoutURL:    cfg.LogoutURL,
		httpClient:   hc,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// LogoutURL returns the IdP end-session URL, if configured.
func (p *Provider) LogoutURL() string { return p.logoutURL }

// Begin starts an authorization code flow and returns the IdP URL with fresh state and nonce.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}
	state, nonce := rand.Text(), rand.Text()
	// redirect_uri stays the configured RedirectURL; the IdP matches it exactly.
	authURL := p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

// Exchange redeems the callback code, checks the id_token nonce and tops up
// missing claims from the userinfo endpoint.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return domainauth.Identity{}, errors.New("state is required")
	}
	if in.Nonce == "" {
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	var c claims
	if p.hasOpenIDScope() {
		rawID, idErr := rawIDToken(token)
		if idErr != nil {
			return domainauth.Identity{}, fmt.Errorf("extract id_token: %w", idErr)
		}
		c, err = p.verify(ctx, rawID)
		if err != nil {
			return domainauth.Identity{}, err
		}
		if c.Nonce != in.Nonce {
			return domainauth.Identity{}, errors.New("invalid nonce")
		}
	}

	if c.Subject == "" || c.Email == "" || len(c.Groups) == 0 {
		if fillErr := p.fillFromUserInfo(ctx, token, &c); fillErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", fillErr)
		}
	}
	if c.Subject == "" {
		return domainauth.Identity{}, errors.New("identity has no subject")
	}

	id := c.identity()
	if !token.Expiry.IsZero() {
		id.ExpiresAt = token.Expiry
	}
	if id.ExpiresAt.IsZero() {
		id.ExpiresAt = time.Now().Add(time.Hour)
	}
	return id, nil
}

// Verify validates an ID token presented directly as a bearer token: issuer,
// audience, signature and expiry are all checked by go-oidc.
func (p *Provider) Verify(ctx context.Context, rawToken string) (domainauth.Identity, error) {
	c, err := p.verify(gooidc.ClientContext(ctx, p.httpClient), rawToken)
	if err != nil {
		return domainauth.Identity{}, err
	}
	if c.Subject == "" {
		return domainauth.Identity{}, errors.New("id_token has no subject")
	}
	return c.identity(), nil
}

func (p *Provider) verify(ctx context.Context, rawID string) (claims, error) {
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return claims{}, fmt.Errorf("verify id_token: %w", err)
	}
	var c claims
	if err := idTok.Claims(&c); err != nil {
		return claims{}, fmt.Errorf("parse id_token claims: %w", err)
	}
	if c.Subject == "" {
		c.Subject = idTok.Subject
	}
	if c.ExpiresAt == 0 && !idTok.Expiry.IsZero() {
		c.ExpiresAt = idTok.Expiry.Unix()
	}
	return c, nil
}

func (p *Provider) fillFromUserInfo(ctx context.Context, tok *oauth2.Token, c *claims) error {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var extra claims
	if err := ui.Claims(&extra); err != nil {
		return fmt.Errorf("decode user info: %w", err)
	}
	if extra.Subject == "" {
		extra.Subject = ui.Subject
	}
	c.merge(extra)
	return nil
}

// claims is the subset of standard OIDC claims the marketplace reads.
// Groups come from the common "groups" claim or the "roles" claim some IdPs emit.
type claims struct {
	Subject     string   `json:"sub"`
	Email       string   `json:"email"`
	GivenName   string   `json:"given_name"`
	FamilyName  string   `json:"family_name"`
	Name        string   `json:"name"`
	PhoneNumber string   `json:"phone_number"`
	Groups      []string `json:"groups"`
	Roles       []string `json:"roles"`
	Nonce       string   `json:"nonce"`
	ExpiresAt   int64    `json:"exp"`
}

// merge fills fields that are still empty from other.
func (c *claims) merge(other claims) {
	c.Subject = firstNonEmpty(c.Subject, other.Subject)
	c.Email = firstNonEmpty(c.Email, other.Email)
	c.GivenName = firstNonEmpty(c.GivenName, other.GivenName)
	c.FamilyName = firstNonEmpty(c.FamilyName, other.FamilyName)
	c.Name = firstNonEmpty(c.Name, other.Name)
	c.PhoneNumber = firstNonEmpty(c.PhoneNumber, other.PhoneNumber)
	if len(c.Groups) == 0 {
		c.Groups = other.Groups
	}
	if len(c.Roles) == 0 {
		c.Roles = other.Roles
	}
}

func (c claims) identity() domainauth.Identity {
	first, last := c.GivenName, c.FamilyName
	if first == "" && last == "" && c.Name != "" {
		var rest string
		first, rest, _ = strings.Cut(strings.TrimSpace(c.Name), " ")
		last = strings.TrimSpace(rest)
	}
	groups := slices.Concat(c.Groups, c.Roles)
	id := domainauth.Identity{
		UserID:    c.Subject,
		FirstName: first,
		LastName:  last,
		Email:     c.Email,
		Phone:     c.PhoneNumber,
		Groups:    slices.Compact(slices.Sorted(slices.Values(groups))),
	}
	if c.ExpiresAt > 0 {
		id.ExpiresAt = time.Unix(c.ExpiresAt, 0).UTC()
	}
	return id
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (p *Provider) hasOpenIDScope() bool {
	return slices.Contains(p.config.Scopes, "openid")
}

// rawIDToken extracts the id_token from the token endpoint response.
func rawIDToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
