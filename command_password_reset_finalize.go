package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordResetMessage struct {
	Token    string `json:"token" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"Reset password token"`
	Password string `json:"password" doc:"New password"`
}

func (m FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	policy   PasswordPolicy
	lifetime time.Duration
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

var _ command.Commander[FinalizePasswordResetMessage] = (*FinalizePasswordResetHandler)(nil)

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		hasher:   NewBcryptHasher(),
		policy:   DefaultPasswordPolicy(),
		lifetime: DefaultTokenLifetime,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

func (h *FinalizePasswordResetHandler) WithPasswordPolicy(p PasswordPolicy) *FinalizePasswordResetHandler {
	h.policy = p
	return h
}

func (h *FinalizePasswordResetHandler) WithPasswordAuthenticator(a PasswordAuthenticator) *FinalizePasswordResetHandler {
	if a != nil {
		h.hasher = a
	}
	return h
}

func (h *FinalizePasswordResetHandler) WithTokenLifetime(d time.Duration) *FinalizePasswordResetHandler {
	if d > 0 {
		h.lifetime = d
	}
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	h.logger = resolveLogger(logger)
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx.Err(), "password reset finalization")
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Token == "" {
		return ErrInvalidToken
	}

	if err := h.policy.Validate(event.Password); err != nil {
		return err
	}

	hash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	var userID string
	err = h.repo.WithTx(ctx, func(ctx context.Context, repos Repositories) error {
		reset, err := repos.Tokens().FindActive(ctx, PurposePasswordReset, event.Token)
		if err != nil {
			return err
		}

		if err := redeemToken(ctx, repos.Tokens(), reset, h.lifetime, h.now()); err != nil {
			return err
		}

		user, err := repos.Credentials().FindByID(ctx, reset.UserID)
		if err != nil {
			if errors.Is(err, ErrIdentityNotFound) {
				return ErrInvalidToken
			}
			return storeError("find user", err)
		}

		user.PasswordHash = hash
		if _, err := repos.Credentials().Update(ctx, user); err != nil {
			return err
		}

		// a reset also lifts an active lockout
		if err := repos.Credentials().ResetFailedCount(ctx, user.ID); err != nil {
			return storeError("reset failed count", err)
		}

		userID = user.ID.String()
		return nil
	})

	if err != nil {
		return storeError("finalize password reset", err)
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		UserID:    userID,
	})

	return nil
}
