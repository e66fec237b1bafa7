package accounts

import (
	"context"

	"github.com/goliatone/go-router"
)

var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// localsPrincipalKey is the router locals key holding the session principal
const localsPrincipalKey = "accounts.principal"

// WithPrincipal sets the Principal in the given context
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext finds the principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(Principal)
	return p, ok
}

// PrincipalFromRouter returns the principal stored by RequireSession
func PrincipalFromRouter(c router.Context) (Principal, bool) {
	if p, ok := c.Locals(localsPrincipalKey).(Principal); ok {
		return p, true
	}
	return PrincipalFromContext(c.Context())
}
