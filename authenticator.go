package accounts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// LockoutPolicy is the fixed lockout policy applied on top of the
// per request escalation threshold
type LockoutPolicy struct {
	// MaxFailedAttempts locks the account once the counter exceeds it
	MaxFailedAttempts int           `env:"MAX_FAILED_ATTEMPTS" envDefault:"5"`
	Duration          time.Duration `env:"DURATION" envDefault:"5m"`
	// RequireConfirmedEmail rejects sign in for unconfirmed emails with not-allowed
	RequireConfirmedEmail bool `env:"REQUIRE_CONFIRMED_EMAIL" envDefault:"false"`
}

// DefaultLockoutPolicy five attempts, five minutes
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxFailedAttempts: 5,
		Duration:          5 * time.Minute,
	}
}

// AuthenticationRequest is a single sign in attempt
type AuthenticationRequest struct {
	Identifier string
	// Field selects the lookup column, detected from Identifier when empty
	Field    IdentifierField
	Password string
	Remember bool
	// LockoutThreshold escalates to locked-out once the failed counter
	// exceeds it. Zero disables escalation.
	LockoutThreshold int
}

// Validate rejects malformed requests before any store access
func (r AuthenticationRequest) Validate() error {
	if strings.TrimSpace(r.Identifier) == "" {
		return withMessage(ErrInvalidRequest, "identifier is required")
	}
	if r.Password == "" {
		return withMessage(ErrInvalidRequest, "password is required")
	}
	if r.LockoutThreshold < 0 {
		return withMessage(ErrInvalidRequest, "lockout threshold must not be negative")
	}
	return nil
}

// SessionAuthenticator decides whether a session may be established for
// a presented identifier and password
type SessionAuthenticator struct {
	credentials CredentialStore
	assembler   *ClaimsAssembler
	hasher      PasswordAuthenticator
	policy      LockoutPolicy
	activity    ActivitySink
	logger      Logger
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// AuthenticatorOption configures a SessionAuthenticator
type AuthenticatorOption func(*SessionAuthenticator)

func WithLockoutPolicy(p LockoutPolicy) AuthenticatorOption {
	return func(a *SessionAuthenticator) {
		a.policy = p
	}
}

func WithPasswordAuthenticator(h PasswordAuthenticator) AuthenticatorOption {
	return func(a *SessionAuthenticator) {
		if h != nil {
			a.hasher = h
		}
	}
}

func WithAuthenticatorActivitySink(s ActivitySink) AuthenticatorOption {
	return func(a *SessionAuthenticator) {
		a.activity = normalizeActivitySink(s)
	}
}

func WithAuthenticatorLogger(l Logger) AuthenticatorOption {
	return func(a *SessionAuthenticator) {
		a.logger = resolveLogger(l)
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) AuthenticatorOption {
	return func(a *SessionAuthenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewSessionAuthenticator wires the authenticator with bcrypt and the
// default lockout policy unless overridden
func NewSessionAuthenticator(credentials CredentialStore, assembler *ClaimsAssembler, opts ...AuthenticatorOption) *SessionAuthenticator {
	a := &SessionAuthenticator{
		credentials: credentials,
		assembler:   assembler,
		hasher:      NewBcryptHasher(),
		policy:      DefaultLockoutPolicy(),
		activity:    noopActivitySink{},
		logger:      defLogger{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate runs the ordered sign in checks. Failures of the
// authentication taxonomy are reported in the outcome; the error is
// reserved for invalid requests and store failures.
func (a *SessionAuthenticator) Authenticate(ctx context.Context, req AuthenticationRequest) (AuthenticationOutcome, error) {
	if err := req.Validate(); err != nil {
		return AuthenticationOutcome{}, err
	}

	field := resolveField(req.Field, req.Identifier)
	normalized := NormalizeIdentifier(req.Identifier)

	user, err := a.credentials.FindByNormalizedIdentifier(ctx, field, normalized)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			// keep timing close to a real comparison
			_ = a.hasher.ComparePasswordAndHash(req.Password, a.throwawayHash())
			outcome := failure(ReasonBadCredentials)
			a.recordFailure(ctx, "", req, outcome)
			return outcome, nil
		}
		return AuthenticationOutcome{}, storeError("find user", err)
	}

	if err := a.hasher.ComparePasswordAndHash(req.Password, user.PasswordHash); err != nil {
		if !errors.Is(err, ErrBadCredentials) {
			return AuthenticationOutcome{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compare password")
		}
		outcome, err := a.registerFailure(ctx, user, req.LockoutThreshold)
		if err != nil {
			return AuthenticationOutcome{}, err
		}
		a.recordFailure(ctx, user.ID.String(), req, outcome)
		return outcome, nil
	}

	locked, err := a.credentials.IsLockedOut(ctx, user.ID, a.now())
	if err != nil {
		return AuthenticationOutcome{}, storeError("check lockout", err)
	}

	if locked || (a.policy.RequireConfirmedEmail && !user.EmailConfirmed) {
		outcome := failure(ReasonNotAllowed)
		a.recordFailure(ctx, user.ID.String(), req, outcome)
		return outcome, nil
	}

	if err := a.credentials.ResetFailedCount(ctx, user.ID); err != nil {
		return AuthenticationOutcome{}, storeError("reset failed count", err)
	}

	principal, err := a.assembler.Assemble(ctx, user)
	if err != nil {
		return AuthenticationOutcome{}, err
	}

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"field":    string(field),
			"remember": req.Remember,
		},
	})

	return success(principal), nil
}

// SignIn authenticates and, only when the password was verified and the
// account allowed, hands the principal to the session layer
func (a *SessionAuthenticator) SignIn(ctx context.Context, req AuthenticationRequest, session SessionHandle) (AuthenticationOutcome, error) {
	outcome, err := a.Authenticate(ctx, req)
	if err != nil || !outcome.Succeeded {
		return outcome, err
	}

	if err := session.Establish(ctx, *outcome.Principal, req.Remember); err != nil {
		return AuthenticationOutcome{}, categorize(err, "failed to establish session")
	}

	return outcome, nil
}

// registerFailure increments the counter and applies the lockout rules on
// the value that includes this attempt
func (a *SessionAuthenticator) registerFailure(ctx context.Context, user *User, threshold int) (AuthenticationOutcome, error) {
	count, err := a.credentials.IncrementFailedCount(ctx, user.ID)
	if err != nil {
		return AuthenticationOutcome{}, storeError("increment failed count", err)
	}

	escalate := threshold > 0 && count > threshold
	exhausted := a.policy.MaxFailedAttempts > 0 && count > a.policy.MaxFailedAttempts

	if !escalate && !exhausted {
		return failure(ReasonBadCredentials), nil
	}

	if user.LockoutEnabled {
		end := a.now().Add(a.policy.Duration)
		if err := a.credentials.SetLockoutEnd(ctx, user.ID, &end); err != nil {
			return AuthenticationOutcome{}, storeError("set lockout end", err)
		}
	}

	a.logger.Warn("account locked out", "user_id", user.ID.String(), "failed_count", count)

	return failure(ReasonLockedOut), nil
}

func (a *SessionAuthenticator) throwawayHash() string {
	a.dummyOnce.Do(func() {
		h, err := a.hasher.HashPassword("throwaway-password-for-timing")
		if err != nil {
			a.logger.Error("failed to build throwaway hash", "error", err)
		}
		a.dummyHash = h
	})
	return a.dummyHash
}

func (a *SessionAuthenticator) recordFailure(ctx context.Context, userID string, req AuthenticationRequest, outcome AuthenticationOutcome) {
	a.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		UserID:    userID,
		Metadata: map[string]any{
			"reason": string(outcome.Reason),
			"field":  string(resolveField(req.Field, req.Identifier)),
		},
	})
}

func (a *SessionAuthenticator) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = a.now()
	}
	if err := normalizeActivitySink(a.activity).Record(ctx, event); err != nil {
		a.logger.Warn("activity sink error", "event", string(event.EventType), "error", err)
	}
}
