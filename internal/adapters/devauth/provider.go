// Package devauth signs callers in as fixed development personas without an
// identity provider. It is only wired when AUTH_MODE=mock.
package devauth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/ports"
)

const defaultSessionDuration = 8 * time.Hour

// ErrUnknownPersona is returned by Exchange for a persona key that was not configured.
var ErrUnknownPersona = errors.New("dev auth: unknown persona")

// Persona is one identity the provider can hand out.
type Persona struct {
	// Key selects the persona in "dev:<key>" codes. Empty for the default persona.
	Key    string
	UserID string
	Email  string
	Name   string
	Groups []string
}

// Config lists the personas. Default is used when no key is given.
type Config struct {
	Default         Persona
	Personas        []Persona
	SessionDuration time.Duration // defaults to 8h
}

// Provider implements ports.AuthProvider. Begin redirects straight to the
// local callback; Exchange returns the persona named by the code.
type Provider struct {
	fallback domainauth.Identity
	byKey    map[string]domainauth.Identity
	ttl      time.Duration
	now      func() time.Time
}

// NewProvider validates every persona and builds the provider.
func NewProvider(cfg Config) (*Provider, error) {
	fallback, err := cfg.Default.identity()
	if err != nil {
		return nil, err
	}
	p := &Provider{
		fallback: fallback,
		byKey:    make(map[string]domainauth.Identity, len(cfg.Personas)),
		ttl:      cfg.SessionDuration,
		now:      time.Now,
	}
	if p.ttl <= 0 {
		p.ttl = defaultSessionDuration
	}
	for _, persona := range cfg.Personas {
		key := strings.ToLower(strings.TrimSpace(persona.Key))
		if key == "" {
			return nil, errors.New("dev auth: named persona needs a key")
		}
		id, idErr := persona.identity()
		if idErr != nil {
			return nil, fmt.Errorf("persona %q: %w", key, idErr)
		}
		p.byKey[key] = id
	}
	return p, nil
}

func (p Persona) identity() (domainauth.Identity, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return domainauth.Identity{}, errors.New("dev auth: UserID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return domainauth.Identity{}, errors.New("dev auth: Email is required")
	}
	first, last, _ := strings.Cut(strings.TrimSpace(p.Name), " ")
	return domainauth.Identity{
		UserID:    p.UserID,
		FirstName: first,
		LastName:  strings.TrimSpace(last),
		Email:     p.Email,
		Groups:    append([]string(nil), p.Groups...),
	}, nil
}

// Begin returns the local callback URL with fresh state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, nonce := rand.Text(), rand.Text()
	return "/auth/callback?code=" + ports.DevLoginCode("") + "&state=" + state, state, nonce, nil
}

// Exchange resolves the persona named by in.Code (see ports.DevLoginCode). State and nonce are checked by the caller.
func (p *Provider) Exchange(_ context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	id := p.fallback
	if _, key, named := strings.Cut(in.Code, ":"); named {
		found, ok := p.byKey[strings.ToLower(key)]
		if !ok {
			return domainauth.Identity{}, fmt.Errorf("%w: %q", ErrUnknownPersona, key)
		}
		id = found
	}
	id.Groups = append([]string(nil), id.Groups...)
	id.ExpiresAt = p.now().Add(p.ttl)
	return id, nil
}

// Keys lists the named personas.
func (p *Provider) Keys() []string {
	keys := make([]string, 0, len(p.byKey))
	for k := range p.byKey {
		keys = append(keys, k)
	}
	return keys
}
