package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// CookieConfig controls the session cookie
type CookieConfig struct {
	Name     string        `env:"COOKIE_NAME" envDefault:"accounts_session"`
	Domain   string        `env:"COOKIE_DOMAIN"`
	Secure   bool          `env:"COOKIE_SECURE" envDefault:"true"`
	SameSite string        `env:"COOKIE_SAMESITE" envDefault:"Lax"`
	TTL      time.Duration `env:"TTL" envDefault:"24h"`
	// RememberTTL applies to persistent sessions
	RememberTTL time.Duration `env:"REMEMBER_TTL" envDefault:"720h"`
}

// DefaultCookieConfig mirrors the env defaults
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:        "accounts_session",
		Secure:      true,
		SameSite:    "Lax",
		TTL:         24 * time.Hour,
		RememberTTL: 30 * 24 * time.Hour,
	}
}

// CookieSessions issues signed session cookies and tracks them in a
// SessionStore so they can be revoked on sign out
type CookieSessions struct {
	tokens *SessionTokenService
	store  SessionStore
	cfg    CookieConfig
	logger Logger
}

func NewCookieSessions(tokens *SessionTokenService, store SessionStore, cfg CookieConfig, logger Logger) *CookieSessions {
	if cfg.Name == "" {
		cfg.Name = DefaultCookieConfig().Name
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCookieConfig().TTL
	}
	if cfg.RememberTTL <= 0 {
		cfg.RememberTTL = cfg.TTL
	}
	return &CookieSessions{
		tokens: tokens,
		store:  store,
		cfg:    cfg,
		logger: resolveLogger(logger),
	}
}

// For binds a SessionHandle to the request
func (m *CookieSessions) For(c router.Context) SessionHandle {
	return &cookieSession{m: m, c: c}
}

// Current validates the request cookie against the token signature and
// the session store
func (m *CookieSessions) Current(ctx context.Context, c router.Context) (*SessionClaims, error) {
	raw := c.Cookies(m.cfg.Name)
	if raw == "" {
		return nil, ErrSessionInvalid
	}

	claims, err := m.tokens.Validate(raw)
	if err != nil {
		return nil, err
	}

	ok, err := m.store.Exists(ctx, claims.SessionID())
	if err != nil {
		return nil, storeError("check session", err)
	}
	if !ok {
		return nil, ErrSessionInvalid
	}

	return claims, nil
}

type cookieSession struct {
	m *CookieSessions
	c router.Context
}

func (s *cookieSession) Establish(ctx context.Context, principal Principal, persistent bool) error {
	ttl := s.m.cfg.TTL
	if persistent {
		ttl = s.m.cfg.RememberTTL
	}

	sid := uuid.NewString()
	token, claims, err := s.m.tokens.Generate(principal, sid, persistent, ttl)
	if err != nil {
		return err
	}

	record := SessionRecord{
		ID:         sid,
		Subject:    principal.Subject,
		Persistent: persistent,
		IssuedAt:   claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
	}
	if err := s.m.store.Save(ctx, record, ttl); err != nil {
		return storeError("save session", err)
	}

	// no Expires keeps non persistent sessions as browser session cookies
	cookie := &router.Cookie{
		Name:     s.m.cfg.Name,
		Value:    token,
		Path:     "/",
		Domain:   s.m.cfg.Domain,
		HTTPOnly: true,
		Secure:   s.m.cfg.Secure,
		SameSite: s.m.cfg.SameSite,
	}
	if persistent {
		cookie.Expires = record.ExpiresAt
	}
	s.c.Cookie(cookie)

	return nil
}

// Terminate clears the cookie and drops the server side record. A missing
// or invalid cookie is not an error.
func (s *cookieSession) Terminate(ctx context.Context) error {
	defer s.clearCookie()

	raw := s.c.Cookies(s.m.cfg.Name)
	if raw == "" {
		return nil
	}

	claims, err := s.m.tokens.Validate(raw)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrSessionInvalid) {
			return nil
		}
		return err
	}

	if err := s.m.store.Delete(ctx, claims.SessionID()); err != nil {
		s.m.logger.Error("failed to delete session record", "session_id", claims.SessionID(), "error", err)
		return storeError("delete session", err)
	}
	return nil
}

func (s *cookieSession) clearCookie() {
	s.c.Cookie(&router.Cookie{
		Name:     s.m.cfg.Name,
		Value:    "",
		Path:     "/",
		Domain:   s.m.cfg.Domain,
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   s.m.cfg.Secure,
		SameSite: s.m.cfg.SameSite,
	})
}
