package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type ChangePasswordMessage struct {
	UserID          uuid.UUID `json:"-"`
	CurrentPassword string    `json:"current_password"`
	NewPassword     string    `json:"new_password"`
}

func (m ChangePasswordMessage) Type() string { return "user.password_change" }

type ChangePasswordHandler struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	policy   PasswordPolicy
	activity ActivitySink
	logger   Logger
}

var _ command.Commander[ChangePasswordMessage] = (*ChangePasswordHandler)(nil)

func NewChangePasswordHandler(repo RepositoryManager) *ChangePasswordHandler {
	return &ChangePasswordHandler{
		repo:     repo,
		hasher:   NewBcryptHasher(),
		policy:   DefaultPasswordPolicy(),
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *ChangePasswordHandler) WithPasswordPolicy(p PasswordPolicy) *ChangePasswordHandler {
	h.policy = p
	return h
}

func (h *ChangePasswordHandler) WithPasswordAuthenticator(a PasswordAuthenticator) *ChangePasswordHandler {
	if a != nil {
		h.hasher = a
	}
	return h
}

func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	h.logger = resolveLogger(logger)
	return h
}

// Execute replaces the password after verifying the current one. A wrong
// current password fails with ErrBadCredentials.
func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx.Err(), "password change")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.UserID == uuid.Nil || event.CurrentPassword == "" {
		return withMessage(ErrInvalidRequest, "user and current password are required")
	}

	if err := h.policy.Validate(event.NewPassword); err != nil {
		return err
	}

	user, err := h.repo.Credentials().FindByID(ctx, event.UserID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return ErrBadCredentials
		}
		return storeError("find user", err)
	}

	if err := h.hasher.ComparePasswordAndHash(event.CurrentPassword, user.PasswordHash); err != nil {
		return ErrBadCredentials
	}

	hash, err := h.hasher.HashPassword(event.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	user.PasswordHash = hash

	if _, err := h.repo.Credentials().Update(ctx, user); err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		return storeError("update password", err)
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		UserID:    user.ID.String(),
	})

	return nil
}
