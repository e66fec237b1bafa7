package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

const (
	SubjectConfirmEmail  = "Confirm your email"
	SubjectPasswordReset = "Reset your password"
)

type RegisterUserMessage struct {
	Username    string `json:"username"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
	UseHashid   bool   `json:"-"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, validation.Length(3, 256), is.Email),
		validation.Field(&e.Username, validation.Length(1, 256)),
		validation.Field(&e.Name, validation.Length(0, 256)),
		validation.Field(&e.PhoneNumber, validation.Length(0, 32)),
		validation.Field(&e.Password, validation.Required, validation.Length(1, 256)),
	)
}

// RegisterUserHandler creates users with their name claim and requests
// email and SMS confirmation
type RegisterUserHandler struct {
	repo        RepositoryManager
	hasher      PasswordAuthenticator
	policy      PasswordPolicy
	dispatcher  *Dispatcher
	phoneRegion string
	useHashid   bool
	activity    ActivitySink
	logger      Logger
}

var _ command.Commander[RegisterUserMessage] = (*RegisterUserHandler)(nil)

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(repo RepositoryManager, dispatcher *Dispatcher) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:       repo,
		hasher:     NewBcryptHasher(),
		policy:     DefaultPasswordPolicy(),
		dispatcher: dispatcher,
		activity:   noopActivitySink{},
		logger:     defLogger{},
	}
}

func (h *RegisterUserHandler) WithPasswordPolicy(p PasswordPolicy) *RegisterUserHandler {
	h.policy = p
	return h
}

func (h *RegisterUserHandler) WithPasswordAuthenticator(a PasswordAuthenticator) *RegisterUserHandler {
	if a != nil {
		h.hasher = a
	}
	return h
}

func (h *RegisterUserHandler) WithPhoneRegion(region string) *RegisterUserHandler {
	h.phoneRegion = region
	return h
}

// WithHashid derives user ids from the normalized email
func (h *RegisterUserHandler) WithHashid(enabled bool) *RegisterUserHandler {
	h.useHashid = enabled
	return h
}

// WithActivitySink sets the sink used to emit registration events.
func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	h.logger = resolveLogger(logger)
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx.Err(), "user registration")
	default:
		_, err := h.Register(ctx, event)
		return err
	}
}

// Register fails with ErrDuplicateIdentifier, ErrWeakCredential or
// ErrInvalidRequest before anything is written. Confirmation dispatch never
// fails the registration.
func (h *RegisterUserHandler) Register(ctx context.Context, event RegisterUserMessage) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return nil, withMessage(ErrInvalidRequest, "invalid registration: "+err.Error())
	}

	if err := h.policy.Validate(event.Password); err != nil {
		return nil, err
	}

	phone, err := NormalizePhone(event.PhoneNumber, h.phoneRegion)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:             uuid.New(),
		PhoneNumber:    phone,
		LockoutEnabled: true,
		Version:        1,
	}
	user.SetUsername(getUsername(event.Username, event.Email))
	user.SetEmail(event.Email)

	if err := h.ensureAvailable(ctx, user); err != nil {
		return nil, err
	}

	useHashid := event.UseHashid || h.useHashid
	if useHashid {
		if id, err := hashid.NewUUID(user.NormalizedEmail); err == nil {
			user.ID = id
		}
	}

	hash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	user.PasswordHash = hash

	err = h.repo.WithTx(ctx, func(ctx context.Context, repos Repositories) error {
		created, err := repos.Credentials().Create(ctx, user)
		if err != nil {
			return err
		}
		user = created

		if _, err := repos.Claims().UpsertCustomClaim(ctx, user.ID, ClaimName, event.Name); err != nil {
			return storeError("create name claim", err)
		}
		return nil
	})
	if err != nil {
		return nil, storeError("register user", err)
	}

	h.requestConfirmations(ctx, user)

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"username": user.Username,
			"hashid":   useHashid,
		},
	})

	return user, nil
}

func (h *RegisterUserHandler) ensureAvailable(ctx context.Context, user *User) error {
	checks := []struct {
		field IdentifierField
		value string
	}{
		{FieldUsername, user.NormalizedUsername},
		{FieldEmail, user.NormalizedEmail},
	}

	for _, c := range checks {
		_, err := h.repo.Credentials().FindByNormalizedIdentifier(ctx, c.field, c.value)
		switch {
		case err == nil:
			return withMessage(ErrDuplicateIdentifier, fmt.Sprintf("%s already registered", c.field)).
				WithMetadata(map[string]any{"field": string(c.field)})
		case errors.Is(err, ErrIdentityNotFound):
			continue
		default:
			return storeError("check duplicate "+string(c.field), err)
		}
	}
	return nil
}

// requestConfirmations issues the email and phone tokens and hands them
// to the dispatcher. Failures are logged.
func (h *RegisterUserHandler) requestConfirmations(ctx context.Context, user *User) {
	n := Notification{UserID: user.ID.String()}

	if token, err := IssueToken(ctx, h.repo.Tokens(), user.ID, PurposeEmailConfirmation, user.Email); err != nil {
		h.logger.Error("failed to issue email confirmation token", "user_id", user.ID.String(), "error", err)
	} else {
		n.Email, n.EmailSubject, n.EmailToken = user.Email, SubjectConfirmEmail, token.Token
	}

	if user.PhoneNumber != "" {
		if token, err := IssueToken(ctx, h.repo.Tokens(), user.ID, PurposePhoneConfirmation, user.PhoneNumber); err != nil {
			h.logger.Error("failed to issue phone confirmation token", "user_id", user.ID.String(), "error", err)
		} else {
			n.Phone, n.SMSToken = user.PhoneNumber, token.Token
		}
	}

	h.dispatcher.Dispatch(ctx, n)
}
