package httpx

import (
	"context"

	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
)

type sessionKey struct{}

// WithSession attaches an authenticated session to ctx. A nil session leaves ctx as is.
func WithSession(ctx context.Context, s *domainauth.Session) context.Context {
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session attached by the auth middleware, if any.
func SessionFrom(ctx context.Context) (*domainauth.Session, bool) {
	s, _ := ctx.Value(sessionKey{}).(*domainauth.Session)
	return s, s != nil
}

// callerFrom returns the acting user, or an anonymous caller.
func callerFrom(ctx context.Context) domainauth.Caller {
	if s, ok := SessionFrom(ctx); ok {
		return s.Caller()
	}
	return domainauth.Caller{}
}
