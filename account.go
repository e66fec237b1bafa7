package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
)

// DefaultUpdateRetries is how many times an account update is retried on
// a version conflict
const DefaultUpdateRetries = 3

// Account is the self service view of a user
type Account struct {
	ID                   uuid.UUID `json:"id"`
	Username             string    `json:"username"`
	Name                 string    `json:"name"`
	Email                string    `json:"email"`
	EmailConfirmed       bool      `json:"email_confirmed"`
	PhoneNumber          string    `json:"phone_number"`
	PhoneNumberConfirmed bool      `json:"phone_number_confirmed"`
}

type UpdateAccountMessage struct {
	UserID      uuid.UUID `json:"-"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
}

func (m UpdateAccountMessage) Type() string { return "user.account_update" }

func (m UpdateAccountMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Length(0, 256)),
		validation.Field(&m.Email, validation.Required, validation.Length(3, 256), is.Email),
		validation.Field(&m.PhoneNumber, validation.Length(0, 32)),
	)
}

// AccountService reads and updates the signed in user's account. Changing
// the email or phone clears its confirmation and sends a new token.
type AccountService struct {
	repo        RepositoryManager
	dispatcher  *Dispatcher
	phoneRegion string
	retries     int
	activity    ActivitySink
	logger      Logger
}

func NewAccountService(repo RepositoryManager, dispatcher *Dispatcher) *AccountService {
	return &AccountService{
		repo:       repo,
		dispatcher: dispatcher,
		retries:    DefaultUpdateRetries,
		activity:   noopActivitySink{},
		logger:     defLogger{},
	}
}

func (s *AccountService) WithPhoneRegion(region string) *AccountService {
	s.phoneRegion = region
	return s
}

func (s *AccountService) WithActivitySink(sink ActivitySink) *AccountService {
	s.activity = normalizeActivitySink(sink)
	return s
}

func (s *AccountService) WithLogger(logger Logger) *AccountService {
	s.logger = resolveLogger(logger)
	return s
}

// Get returns the account, creating the empty name claim row if missing
func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	user, err := s.repo.Credentials().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, err
		}
		return nil, storeError("find user", err)
	}

	name, err := s.repo.Claims().FindOrCreateCustomClaim(ctx, user.ID, ClaimName, "")
	if err != nil {
		return nil, storeError("find or create name claim", err)
	}

	return toAccount(user, name.ClaimValue), nil
}

// Update applies the message on the latest stored version, retrying on
// concurrent modification
func (s *AccountService) Update(ctx context.Context, msg UpdateAccountMessage) (*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := msg.Validate(); err != nil {
		return nil, withMessage(ErrInvalidRequest, "invalid account update: "+err.Error())
	}

	phone, err := NormalizePhone(msg.PhoneNumber, s.phoneRegion)
	if err != nil {
		return nil, err
	}
	msg.PhoneNumber = phone
	msg.Email = strings.TrimSpace(msg.Email)

	var (
		user                       *User
		emailChanged, phoneChanged bool
	)

	for attempt := 0; attempt <= s.retries; attempt++ {
		user, emailChanged, phoneChanged, err = s.update(ctx, msg)
		if !errors.Is(err, ErrConcurrencyConflict) {
			break
		}
		s.logger.Debug("account update conflict, retrying", "user_id", msg.UserID.String(), "attempt", attempt+1)
	}
	if err != nil {
		return nil, err
	}

	s.requestConfirmations(ctx, user, emailChanged, phoneChanged)

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventAccountUpdated,
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"email_changed": emailChanged,
			"phone_changed": phoneChanged,
		},
	})

	return toAccount(user, msg.Name), nil
}

func (s *AccountService) update(ctx context.Context, msg UpdateAccountMessage) (*User, bool, bool, error) {
	var user *User
	var emailChanged, phoneChanged bool

	err := s.repo.WithTx(ctx, func(ctx context.Context, repos Repositories) error {
		current, err := repos.Credentials().FindByID(ctx, msg.UserID)
		if err != nil {
			if errors.Is(err, ErrIdentityNotFound) {
				return err
			}
			return storeError("find user", err)
		}

		if NormalizeIdentifier(msg.Email) != current.NormalizedEmail {
			other, err := repos.Credentials().FindByNormalizedIdentifier(ctx, FieldEmail, NormalizeIdentifier(msg.Email))
			switch {
			case err == nil && other.ID != current.ID:
				return withMessage(ErrDuplicateIdentifier, "email already registered").
					WithMetadata(map[string]any{"field": string(FieldEmail)})
			case err != nil && !errors.Is(err, ErrIdentityNotFound):
				return storeError("check duplicate email", err)
			}
			current.SetEmail(msg.Email)
			current.EmailConfirmed = false
			emailChanged = true
		} else if current.Email != msg.Email {
			// case only change keeps the confirmation
			current.Email = msg.Email
		}

		if current.PhoneNumber != msg.PhoneNumber {
			current.PhoneNumber = msg.PhoneNumber
			current.PhoneNumberConfirmed = false
			phoneChanged = msg.PhoneNumber != ""
		}

		updated, err := repos.Credentials().Update(ctx, current)
		if err != nil {
			return err
		}
		user = updated

		if _, err := repos.Claims().UpsertCustomClaim(ctx, user.ID, ClaimName, msg.Name); err != nil {
			return storeError("upsert name claim", err)
		}
		return nil
	})

	if err != nil {
		return nil, false, false, storeError("update account", err)
	}

	return user, emailChanged, phoneChanged, nil
}

func (s *AccountService) requestConfirmations(ctx context.Context, user *User, email, phone bool) {
	if !email && !phone {
		return
	}

	n := Notification{UserID: user.ID.String()}

	if email {
		if token, err := IssueToken(ctx, s.repo.Tokens(), user.ID, PurposeEmailConfirmation, user.Email); err != nil {
			s.logger.Error("failed to issue email confirmation token", "user_id", user.ID.String(), "error", err)
		} else {
			n.Email, n.EmailSubject, n.EmailToken = user.Email, SubjectConfirmEmail, token.Token
		}
	}

	if phone {
		if token, err := IssueToken(ctx, s.repo.Tokens(), user.ID, PurposePhoneConfirmation, user.PhoneNumber); err != nil {
			s.logger.Error("failed to issue phone confirmation token", "user_id", user.ID.String(), "error", err)
		} else {
			n.Phone, n.SMSToken = user.PhoneNumber, token.Token
		}
	}

	s.dispatcher.Dispatch(ctx, n)
}

func toAccount(u *User, name string) *Account {
	return &Account{
		ID:                   u.ID,
		Username:             u.Username,
		Name:                 name,
		Email:                u.Email,
		EmailConfirmed:       u.EmailConfirmed,
		PhoneNumber:          u.PhoneNumber,
		PhoneNumberConfirmed: u.PhoneNumberConfirmed,
	}
}
