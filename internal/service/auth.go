package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/statsd"
	"github.com/kaamsathi/kaamsathi-api/internal/ports"
)

const defaultSessionTTL = 24 * time.Hour

// accountResolver turns an authenticated identity into a marketplace account.
// UserService implements it.
type accountResolver interface {
	UpsertFromIdentity(ctx context.Context, identity domainauth.Identity, role domainauth.Role) (*model.User, error)
	Active(ctx context.Context, userID string) (*model.User, error)
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider   ports.AuthProvider  // Required: IdP login flow
	Sessions   ports.SessionStore  // Required: opaque session tokens
	Roles      ports.RoleMapper    // Required: IdP groups to roles
	Users      accountResolver     // Required: account upsert and block checks
	Verifier   ports.TokenVerifier // Optional: accepts IdP ID tokens as bearer tokens
	SessionTTL time.Duration       // Optional: caps session lifetime (default 24h)
	Clock      Clock               // Optional: defaults to time.Now
	Logger     *slog.Logger        // Optional: structured logger
	Metrics    statsd.Sink         // Optional: metrics sink (StatsD-compatible)
}

// AuthService orchestrates authentication flows by coordinating provider,
// role mapping, account upsert and session persistence.
type AuthService struct {
	provider   ports.AuthProvider
	sessions   ports.SessionStore
	roles      ports.RoleMapper
	users      accountResolver
	verifier   ports.TokenVerifier
	sessionTTL time.Duration
	clock      Clock
	logger     *slog.Logger
	metrics    statsd.Sink
}

var errSessionExpired = apperrors.Unauthorized("session expired").WithReason("session_expired")

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	switch {
	case opts.Provider == nil:
		return nil, errors.New("AuthProvider is required")
	case opts.Sessions == nil:
		return nil, errors.New("SessionStore is required")
	case opts.Roles == nil:
		return nil, errors.New("RoleMapper is required")
	case opts.Users == nil:
		return nil, errors.New("account resolver is required")
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &AuthService{
		provider:   opts.Provider,
		sessions:   opts.Sessions,
		roles:      opts.Roles,
		users:      opts.Users,
		verifier:   opts.Verifier,
		sessionTTL: ttl,
		clock:      opts.Clock,
		logger:     componentLogger(opts.Logger, "auth_service"),
		metrics:    opts.Metrics,
	}, nil
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates an authentication flow and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if redirectURL == "" {
		return nil, apperrors.Validation("redirect URL is required")
	}
	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteLoginResult contains the result of completing a login flow.
type CompleteLoginResult struct {
	Session domainauth.Session
	User    *model.User
}

// CompleteLogin exchanges the code for an identity, creates or refreshes the
// marketplace account and persists a session.
func (s *AuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (res *CompleteLoginResult, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "auth.login", start, err) }()

	switch {
	case input.Code == "":
		return nil, apperrors.ValidationField("code", "authorization code is required")
	case input.State == "":
		return nil, apperrors.ValidationField("state", "state parameter is required")
	case input.Nonce == "":
		return nil, apperrors.ValidationField("nonce", "nonce parameter is required")
	}

	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput(input))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "login failed")
	}
	return s.establish(ctx, identity)
}

// DevLogin signs in as the configured development identity without an IdP
// round trip. Only wired when dev auth is enabled.
func (s *AuthService) DevLogin(ctx context.Context, persona string) (*CompleteLoginResult, error) {
	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput{Code: ports.DevLoginCode(persona)})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "dev login failed")
	}
	return s.establish(ctx, identity)
}

func (s *AuthService) establish(ctx context.Context, identity domainauth.Identity) (*CompleteLoginResult, error) {
	u, err := s.users.UpsertFromIdentity(ctx, identity, s.roles.Map(identity.Groups))
	if err != nil {
		return nil, err
	}

	now := s.clock.now()
	expires := now.Add(s.sessionTTL)
	if !identity.ExpiresAt.IsZero() && identity.ExpiresAt.Before(expires) {
		expires = identity.ExpiresAt
	}
	if !expires.After(now) {
		return nil, apperrors.Unauthorized("identity already expired")
	}

	session := domainauth.Session{
		ID:         generateSessionID(),
		UserID:     u.ID,
		ExternalID: identity.UserID,
		FirstName:  identity.FirstName,
		LastName:   identity.LastName,
		Email:      identity.Email,
		Role:       domainauth.Role(u.Type),
		ExpiresAt:  expires,
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.InfoContext(ctx, "user signed in", "user_id", u.ID, "role", session.Role)
	return &CompleteLoginResult{Session: session, User: u}, nil
}

// Authenticate resolves a bearer token to a session. Opaque session ids are
// looked up in the session store; anything that looks like a JWT is handed to
// the token verifier when one is configured. The account is re-checked on
// every call so blocking takes effect immediately.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domainauth.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domainauth.Session{}, apperrors.Unauthorized("authentication required")
	}

	if s.verifier != nil && looksLikeJWT(token) {
		return s.authenticateIDToken(ctx, token)
	}

	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ports.ErrSessionNotFound) {
			return domainauth.Session{}, apperrors.Unauthorized("invalid or expired session")
		}
		return domainauth.Session{}, fmt.Errorf("get session: %w", err)
	}
	if !s.clock.now().Before(session.ExpiresAt) {
		if delErr := s.sessions.Delete(ctx, token); delErr != nil {
			s.logger.WarnContext(ctx, "expired session cleanup failed", "error", delErr)
		}
		return domainauth.Session{}, errSessionExpired
	}
	if _, err := s.users.Active(ctx, session.UserID); err != nil {
		return domainauth.Session{}, err
	}
	return session, nil
}

func (s *AuthService) authenticateIDToken(ctx context.Context, token string) (domainauth.Session, error) {
	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		s.logger.DebugContext(ctx, "bearer token rejected", "error", err)
		return domainauth.Session{}, apperrors.Unauthorized("invalid bearer token")
	}
	if !identity.ExpiresAt.IsZero() && !s.clock.now().Before(identity.ExpiresAt) {
		return domainauth.Session{}, errSessionExpired
	}
	u, err := s.users.UpsertFromIdentity(ctx, identity, s.roles.Map(identity.Groups))
	if err != nil {
		return domainauth.Session{}, err
	}
	return domainauth.Session{
		UserID:     u.ID,
		ExternalID: identity.UserID,
		FirstName:  identity.FirstName,
		LastName:   identity.LastName,
		Email:      identity.Email,
		Role:       domainauth.Role(u.Type),
		ExpiresAt:  identity.ExpiresAt,
	}, nil
}

// Logout removes a session. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" || looksLikeJWT(sessionID) {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// generateSessionID creates a cryptographically secure random session ID.
func generateSessionID() string {
	return uuid.NewString()
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}
