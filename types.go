package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger is the logging contract used across the package. Messages are
// followed by key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// IdentifierField selects which normalized column an identifier is matched against
type IdentifierField string

const (
	FieldUsername IdentifierField = "username"
	FieldEmail    IdentifierField = "email"
)

// CredentialStore holds user records and their lockout counters. Lookups
// return ErrIdentityNotFound for missing users, Create and Update return
// ErrDuplicateIdentifier on unique violations.
type CredentialStore interface {
	FindByNormalizedIdentifier(ctx context.Context, field IdentifierField, normalized string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	// IncrementFailedCount atomically adds one to the counter and returns the new value.
	IncrementFailedCount(ctx context.Context, id uuid.UUID) (int, error)
	SetLockoutEnd(ctx context.Context, id uuid.UUID, end *time.Time) error
	ResetFailedCount(ctx context.Context, id uuid.UUID) error
	IsLockedOut(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Create(ctx context.Context, user *User) (*User, error)
	// Update persists user using optimistic concurrency on User.Version.
	Update(ctx context.Context, user *User) (*User, error)
}

// ClaimsStore holds custom user claims and role memberships
type ClaimsStore interface {
	// GetCustomClaim returns ErrClaimNotFound when the row is missing.
	GetCustomClaim(ctx context.Context, userID uuid.UUID, claimType string) (*UserClaim, error)
	FindOrCreateCustomClaim(ctx context.Context, userID uuid.UUID, claimType, defaultValue string) (*UserClaim, error)
	UpsertCustomClaim(ctx context.Context, userID uuid.UUID, claimType, value string) (*UserClaim, error)
	GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error)
	GetRoleClaims(ctx context.Context, roleName string) ([]Claim, error)
}

// RoleStore manages roles, memberships and role scoped claims
type RoleStore interface {
	EnsureRole(ctx context.Context, name string) (*Role, error)
	AddToRole(ctx context.Context, userID uuid.UUID, roleName string) error
	AddRoleClaim(ctx context.Context, roleName string, claim Claim) error
}

// TokenStore persists confirmation and reset tokens
type TokenStore interface {
	Create(ctx context.Context, token *UserToken) (*UserToken, error)
	// FindActive returns ErrInvalidToken when no requested token matches.
	FindActive(ctx context.Context, purpose TokenPurpose, token string) (*UserToken, error)
	FindActiveForUser(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, token string) (*UserToken, error)
	MarkRedeemed(ctx context.Context, id uuid.UUID) error
	RevokeForUser(ctx context.Context, userID uuid.UUID, purpose TokenPurpose) error
	// RecordFailedAttempt counts a wrong code against the user's active
	// tokens of purpose and revokes them once the count reaches limit. It
	// reports whether they were revoked.
	RecordFailedAttempt(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, limit int) (bool, error)
}

// InteractionProvider resolves interaction ids issued by the external
// interaction service
type InteractionProvider interface {
	ResolveLogoutContext(ctx context.Context, id string) (*LogoutContext, error)
	ResolveErrorContext(ctx context.Context, id string) (*ErrorContext, error)
}

// Notifier delivers confirmation and reset tokens
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, token string) error
	SendSMS(ctx context.Context, to, token string) error
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// LogoutContext describes a pending logout flow
type LogoutContext struct {
	ID                    string `json:"id"`
	SubjectID             string `json:"subject_id,omitempty"`
	ClientID              string `json:"client_id,omitempty"`
	PostLogoutRedirectURI string `json:"post_logout_redirect_uri,omitempty"`
}

// ErrorContext describes a failed interaction
type ErrorContext struct {
	ID               string `json:"id"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	RedirectURI      string `json:"redirect_uri,omitempty"`
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] ACCOUNTS " + line(msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] ACCOUNTS " + line(msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] ACCOUNTS " + line(msg, args))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] ACCOUNTS " + line(msg, args))
}

func line(msg string, args []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	b.WriteString("\n")
	return b.String()
}
