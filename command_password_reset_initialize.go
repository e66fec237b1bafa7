package accounts

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-command"
)

type InitializePasswordResetMessage struct {
	Email string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

func (p InitializePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
	)
}

// InitializePasswordResetHandler issues a reset token and emails it. An
// unknown email completes the same way without sending anything.
type InitializePasswordResetHandler struct {
	repo       RepositoryManager
	dispatcher *Dispatcher
	activity   ActivitySink
	logger     Logger
}

var _ command.Commander[InitializePasswordResetMessage] = (*InitializePasswordResetHandler)(nil)

func NewInitializePasswordResetHandler(repo RepositoryManager, dispatcher *Dispatcher) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:       repo,
		dispatcher: dispatcher,
		activity:   noopActivitySink{},
		logger:     defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	h.logger = resolveLogger(logger)
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx.Err(), "password reset initialization")
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return withMessage(ErrInvalidRequest, "invalid password reset request: "+err.Error())
	}

	user, err := h.repo.Credentials().FindByNormalizedIdentifier(ctx, FieldEmail, NormalizeIdentifier(event.Email))
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			h.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return storeError("find user", err)
	}

	token, err := IssueToken(ctx, h.repo.Tokens(), user.ID, PurposePasswordReset, user.Email)
	if err != nil {
		return err
	}

	h.dispatcher.Dispatch(ctx, Notification{
		UserID:       user.ID.String(),
		Email:        user.Email,
		EmailSubject: SubjectPasswordReset,
		EmailToken:   token.Token,
	})

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetRequest,
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"token_id": token.ID.String(),
		},
	})

	return nil
}
