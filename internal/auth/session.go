package auth

import (
	"context"
	"errors"
)

// ErrNoSession means the caller presented no session or one that is not valid.
var ErrNoSession = errors.New("auth: no valid session")

// Session is the identity the dashboard's session provider vouches for.
// Every call read is scoped by OrganizationID.
type Session struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
}

// SessionProvider resolves a presented session token. Implementations wrap
// ErrNoSession for anything the caller can fix by signing in again; any other
// error is treated as the provider being unavailable.
type SessionProvider interface {
	Session(ctx context.Context, token string) (Session, error)
}

type ctxKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// SessionFrom returns the session stored by RequireSession.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	if !ok || s.OrganizationID == "" {
		return Session{}, false
	}
	return s, true
}
