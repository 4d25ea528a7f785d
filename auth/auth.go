// Package auth answers "who is the current user" for persistence and UI
// state decisions. Unauthenticated callers can chat, but nothing they say is
// persisted.
package auth

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when a token matches no configured user.
var ErrUnauthorized = errors.New("unauthorized")

// Session identifies an authenticated user.
type Session struct {
	UserID string
}

// Provider resolves the session for a request or terminal session.
type Provider interface {
	CurrentSession(ctx context.Context) (Session, bool)
}

type sessionKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	if !ok || s.UserID == "" {
		return Session{}, false
	}
	return s, true
}

// Static always reports the same local identity. An empty UserID means the
// terminal user is anonymous.
type Static struct {
	UserID string
}

func (s Static) CurrentSession(ctx context.Context) (Session, bool) {
	if s.UserID == "" {
		return Session{}, false
	}
	return Session{UserID: s.UserID}, true
}

// ContextProvider reads the session placed on the request context by the
// HTTP authentication middleware.
type ContextProvider struct{}

func (ContextProvider) CurrentSession(ctx context.Context) (Session, bool) {
	return FromContext(ctx)
}
