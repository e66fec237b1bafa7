package accounts

import (
	"context"
	"time"
)

// SessionHandle is the session layer seen by the core. Establish is only
// called with a principal whose password was verified.
type SessionHandle interface {
	Establish(ctx context.Context, principal Principal, persistent bool) error
	Terminate(ctx context.Context) error
}

// SessionHandleFuncs adapts a pair of functions to SessionHandle
type SessionHandleFuncs struct {
	EstablishFunc func(ctx context.Context, principal Principal, persistent bool) error
	TerminateFunc func(ctx context.Context) error
}

func (s SessionHandleFuncs) Establish(ctx context.Context, principal Principal, persistent bool) error {
	if s.EstablishFunc == nil {
		return nil
	}
	return s.EstablishFunc(ctx, principal, persistent)
}

func (s SessionHandleFuncs) Terminate(ctx context.Context) error {
	if s.TerminateFunc == nil {
		return nil
	}
	return s.TerminateFunc(ctx)
}

// SessionRecord is the server side view of an issued session cookie
type SessionRecord struct {
	ID         string    `json:"id"`
	Subject    string    `json:"sub"`
	Persistent bool      `json:"persistent"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// SessionStore tracks live sessions so sign out revokes the cookie
type SessionStore interface {
	Save(ctx context.Context, record SessionRecord, ttl time.Duration) error
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}
