package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ConfirmEmailMessage struct {
	Token string `json:"token"`
}

func (m ConfirmEmailMessage) Type() string { return "user.email_confirm" }

// ConfirmPhoneMessage carries the SMS code. Codes are short so they are
// only valid for the signed in user they were sent to.
type ConfirmPhoneMessage struct {
	UserID uuid.UUID `json:"-"`
	Code   string    `json:"code"`
}

func (m ConfirmPhoneMessage) Type() string { return "user.phone_confirm" }

// DefaultMaxCodeAttempts is how many wrong phone codes revoke the
// outstanding code
const DefaultMaxCodeAttempts = 5

// ConfirmContactHandler redeems email and phone confirmation tokens
type ConfirmContactHandler struct {
	repo        RepositoryManager
	lifetime    time.Duration
	maxAttempts int
	activity    ActivitySink
	logger      Logger
	now         func() time.Time
}

func NewConfirmContactHandler(repo RepositoryManager) *ConfirmContactHandler {
	return &ConfirmContactHandler{
		repo:        repo,
		lifetime:    DefaultTokenLifetime,
		maxAttempts: DefaultMaxCodeAttempts,
		activity:    noopActivitySink{},
		logger:      defLogger{},
		now:         time.Now,
	}
}

// WithMaxCodeAttempts sets how many wrong phone codes are tolerated before
// the code is revoked
func (h *ConfirmContactHandler) WithMaxCodeAttempts(n int) *ConfirmContactHandler {
	if n > 0 {
		h.maxAttempts = n
	}
	return h
}

func (h *ConfirmContactHandler) WithTokenLifetime(d time.Duration) *ConfirmContactHandler {
	if d > 0 {
		h.lifetime = d
	}
	return h
}

func (h *ConfirmContactHandler) WithActivitySink(sink ActivitySink) *ConfirmContactHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ConfirmContactHandler) WithLogger(logger Logger) *ConfirmContactHandler {
	h.logger = resolveLogger(logger)
	return h
}

// ConfirmEmail sets EmailConfirmed when the token was issued for the
// user's current email
func (h *ConfirmContactHandler) ConfirmEmail(ctx context.Context, event ConfirmEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	token := strings.TrimSpace(event.Token)
	if token == "" {
		return ErrInvalidToken
	}

	userID, err := h.confirm(ctx, func(ctx context.Context, tokens TokenStore) (*UserToken, error) {
		return tokens.FindActive(ctx, PurposeEmailConfirmation, token)
	}, func(u *User, target string) bool {
		if !strings.EqualFold(u.Email, target) {
			return false
		}
		u.EmailConfirmed = true
		return true
	})
	if err != nil {
		return err
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventEmailConfirmed,
		UserID:    userID,
	})
	return nil
}

// ConfirmPhone sets PhoneNumberConfirmed when the code was issued for the
// user's current phone number. Every wrong code counts against the
// outstanding one, which is revoked with ErrTooManyTokenAttempts once the
// limit is reached.
func (h *ConfirmContactHandler) ConfirmPhone(ctx context.Context, event ConfirmPhoneMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	code := strings.TrimSpace(event.Code)
	if code == "" || event.UserID == uuid.Nil {
		return ErrInvalidToken
	}

	userID, err := h.confirm(ctx, func(ctx context.Context, tokens TokenStore) (*UserToken, error) {
		return tokens.FindActiveForUser(ctx, event.UserID, PurposePhoneConfirmation, code)
	}, func(u *User, target string) bool {
		if u.PhoneNumber != target {
			return false
		}
		u.PhoneNumberConfirmed = true
		return true
	})
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return h.codeMiss(ctx, event.UserID, err)
		}
		return err
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPhoneNumberConfirmed,
		UserID:    userID,
	})
	return nil
}

func (h *ConfirmContactHandler) codeMiss(ctx context.Context, userID uuid.UUID, cause error) error {
	revoked, err := h.repo.Tokens().RecordFailedAttempt(ctx, userID, PurposePhoneConfirmation, h.maxAttempts)
	if err != nil {
		h.logger.Error("failed to record phone code attempt", "user_id", userID.String(), "error", err)
		return cause
	}
	if !revoked {
		return cause
	}

	h.logger.Warn("phone code revoked after repeated misses", "user_id", userID.String())
	return withMessage(ErrTooManyTokenAttempts, "phone code revoked, request a new one").
		WithMetadata(map[string]any{"max_attempts": h.maxAttempts})
}

func (h *ConfirmContactHandler) confirm(
	ctx context.Context,
	find func(context.Context, TokenStore) (*UserToken, error),
	apply func(u *User, target string) bool,
) (string, error) {
	var userID string

	err := h.repo.WithTx(ctx, func(ctx context.Context, repos Repositories) error {
		token, err := find(ctx, repos.Tokens())
		if err != nil {
			return err
		}

		if err := redeemToken(ctx, repos.Tokens(), token, h.lifetime, h.now()); err != nil {
			return err
		}

		user, err := repos.Credentials().FindByID(ctx, token.UserID)
		if err != nil {
			if errors.Is(err, ErrIdentityNotFound) {
				return ErrInvalidToken
			}
			return storeError("find user", err)
		}

		// the contact changed after the token was sent
		if !apply(user, token.Target) {
			return withMessage(ErrInvalidToken, "token target no longer matches")
		}

		if _, err := repos.Credentials().Update(ctx, user); err != nil {
			return err
		}

		userID = user.ID.String()
		return nil
	})

	if err != nil {
		return "", storeError("confirm contact", err)
	}

	return userID, nil
}
