package accounts_test

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockCredentialStore implements accounts.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) FindByNormalizedIdentifier(ctx context.Context, field accounts.IdentifierField, normalized string) (*accounts.User, error) {
	args := m.Called(ctx, field, normalized)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockCredentialStore) FindByID(ctx context.Context, id uuid.UUID) (*accounts.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockCredentialStore) IncrementFailedCount(ctx context.Context, id uuid.UUID) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *MockCredentialStore) SetLockoutEnd(ctx context.Context, id uuid.UUID, end *time.Time) error {
	args := m.Called(ctx, id, end)
	return args.Error(0)
}

func (m *MockCredentialStore) ResetFailedCount(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCredentialStore) IsLockedOut(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockCredentialStore) Create(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, user)
	created, _ := args.Get(0).(*accounts.User)
	return created, args.Error(1)
}

func (m *MockCredentialStore) Update(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, user)
	updated, _ := args.Get(0).(*accounts.User)
	return updated, args.Error(1)
}

// MockClaimsStore implements accounts.ClaimsStore
type MockClaimsStore struct {
	mock.Mock
}

func (m *MockClaimsStore) GetCustomClaim(ctx context.Context, userID uuid.UUID, claimType string) (*accounts.UserClaim, error) {
	args := m.Called(ctx, userID, claimType)
	claim, _ := args.Get(0).(*accounts.UserClaim)
	return claim, args.Error(1)
}

func (m *MockClaimsStore) FindOrCreateCustomClaim(ctx context.Context, userID uuid.UUID, claimType, defaultValue string) (*accounts.UserClaim, error) {
	args := m.Called(ctx, userID, claimType, defaultValue)
	claim, _ := args.Get(0).(*accounts.UserClaim)
	return claim, args.Error(1)
}

func (m *MockClaimsStore) UpsertCustomClaim(ctx context.Context, userID uuid.UUID, claimType, value string) (*accounts.UserClaim, error) {
	args := m.Called(ctx, userID, claimType, value)
	claim, _ := args.Get(0).(*accounts.UserClaim)
	return claim, args.Error(1)
}

func (m *MockClaimsStore) GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	args := m.Called(ctx, userID)
	roles, _ := args.Get(0).([]string)
	return roles, args.Error(1)
}

func (m *MockClaimsStore) GetRoleClaims(ctx context.Context, role string) ([]accounts.Claim, error) {
	args := m.Called(ctx, role)
	claims, _ := args.Get(0).([]accounts.Claim)
	return claims, args.Error(1)
}

// MockInteractionProvider implements accounts.InteractionProvider
type MockInteractionProvider struct {
	mock.Mock
}

func (m *MockInteractionProvider) ResolveLogoutContext(ctx context.Context, id string) (*accounts.LogoutContext, error) {
	args := m.Called(ctx, id)
	lc, _ := args.Get(0).(*accounts.LogoutContext)
	return lc, args.Error(1)
}

func (m *MockInteractionProvider) ResolveErrorContext(ctx context.Context, id string) (*accounts.ErrorContext, error) {
	args := m.Called(ctx, id)
	ec, _ := args.Get(0).(*accounts.ErrorContext)
	return ec, args.Error(1)
}

// MockSessionHandle implements accounts.SessionHandle
type MockSessionHandle struct {
	mock.Mock
}

func (m *MockSessionHandle) Establish(ctx context.Context, principal accounts.Principal, persistent bool) error {
	args := m.Called(ctx, principal, persistent)
	return args.Error(0)
}

func (m *MockSessionHandle) Terminate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// recordingNotifier captures notifications
type recordingNotifier struct {
	mu     sync.Mutex
	emails []sentEmail
	sms    []sentSMS
	err    error
}

type sentEmail struct {
	To, Subject, Token string
}

type sentSMS struct {
	To, Token string
}

func (n *recordingNotifier) SendEmail(_ context.Context, to, subject, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, sentEmail{to, subject, token})
	return n.err
}

func (n *recordingNotifier) SendSMS(_ context.Context, to, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sms = append(n.sms, sentSMS{to, token})
	return n.err
}

func (n *recordingNotifier) Emails() []sentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEmail(nil), n.emails...)
}

func (n *recordingNotifier) SMS() []sentSMS {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentSMS(nil), n.sms...)
}

// recordingSink captures activity events
type recordingSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event accounts.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []accounts.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]accounts.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// plainHasher skips bcrypt cost in unit tests
type plainHasher struct{}

func (plainHasher) HashPassword(password string) (string, error) {
	return "plain:" + password, nil
}

func (plainHasher) ComparePasswordAndHash(password, hash string) error {
	if hash != "plain:"+password {
		return accounts.ErrBadCredentials
	}
	return nil
}
