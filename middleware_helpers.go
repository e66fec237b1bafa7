package accounts

import (
	"github.com/goliatone/go-router"
)

// RequireSession rejects requests without a live session cookie and
// exposes the principal through PrincipalFromRouter and the request context
func (m *CookieSessions) RequireSession() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			claims, err := m.Current(c.Context(), c)
			if err != nil {
				m.logger.Debug("session rejected", "path", c.Path(), "error", err)
				return unauthorized(c)
			}

			p := claims.Principal()
			c.Locals(localsPrincipalKey, p)
			c.SetContext(WithPrincipal(c.Context(), p))
			return next(c)
		}
	}
}
