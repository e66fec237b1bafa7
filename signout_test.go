package accounts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSignOutReturnsRedirect(t *testing.T) {
	provider := new(MockInteractionProvider)
	session := new(MockSessionHandle)
	sink := &recordingSink{}

	provider.On("ResolveLogoutContext", mock.Anything, "abc").Return(&accounts.LogoutContext{
		ID:                    "abc",
		SubjectID:             "user-1",
		PostLogoutRedirectURI: "https://app.example.com/bye",
	}, nil)
	session.On("Terminate", mock.Anything).Return(nil).Once()

	svc := accounts.NewInteractionService(provider).WithActivitySink(sink)
	redirect, err := svc.SignOut(context.Background(), "abc", session)
	require.NoError(t, err)

	assert.Equal(t, "https://app.example.com/bye", redirect)
	session.AssertExpectations(t)
	assert.Equal(t, []accounts.ActivityEventType{accounts.ActivityEventSignOut}, sink.Types())
}

func TestSignOutEmptyID(t *testing.T) {
	provider := new(MockInteractionProvider)
	session := new(MockSessionHandle)

	_, err := accounts.NewInteractionService(provider).SignOut(context.Background(), "  ", session)
	assert.ErrorIs(t, err, accounts.ErrInvalidInteractionID)

	provider.AssertNotCalled(t, "ResolveLogoutContext", mock.Anything, mock.Anything)
	session.AssertNotCalled(t, "Terminate", mock.Anything)
}

func TestSignOutUnknownIDStillTerminates(t *testing.T) {
	provider := new(MockInteractionProvider)
	session := new(MockSessionHandle)

	provider.On("ResolveLogoutContext", mock.Anything, "gone").Return(nil, accounts.ErrInteractionNotFound)
	session.On("Terminate", mock.Anything).Return(nil).Once()

	redirect, err := accounts.NewInteractionService(provider).SignOut(context.Background(), "gone", session)
	require.NoError(t, err)
	assert.Empty(t, redirect)
	session.AssertExpectations(t)
}

func TestSignOutProviderFailureStillTerminates(t *testing.T) {
	provider := new(MockInteractionProvider)
	session := new(MockSessionHandle)

	provider.On("ResolveLogoutContext", mock.Anything, "abc").Return(nil, errors.New("redis down"))
	session.On("Terminate", mock.Anything).Return(nil).Once()

	_, err := accounts.NewInteractionService(provider).SignOut(context.Background(), "abc", session)
	assert.ErrorIs(t, err, accounts.ErrStoreUnavailable)
	session.AssertExpectations(t)
}

func TestErrorContext(t *testing.T) {
	provider := new(MockInteractionProvider)
	provider.On("ResolveErrorContext", mock.Anything, "e-1").Return(&accounts.ErrorContext{ID: "e-1", Error: "access_denied"}, nil)
	provider.On("ResolveErrorContext", mock.Anything, "e-2").Return(nil, accounts.ErrInteractionNotFound)

	svc := accounts.NewInteractionService(provider)

	ec, err := svc.Error(context.Background(), "e-1")
	require.NoError(t, err)
	assert.Equal(t, "access_denied", ec.Error)

	_, err = svc.Error(context.Background(), "e-2")
	assert.ErrorIs(t, err, accounts.ErrInvalidInteractionID)

	_, err = svc.Error(context.Background(), "")
	assert.ErrorIs(t, err, accounts.ErrInvalidInteractionID)
}
