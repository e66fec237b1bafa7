package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// InteractionService resolves interaction contexts owned by the external
// interaction service and tears down local sessions
type InteractionService struct {
	provider InteractionProvider
	activity ActivitySink
	logger   Logger
}

func NewInteractionService(provider InteractionProvider) *InteractionService {
	return &InteractionService{
		provider: provider,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit sign out events.
func (s *InteractionService) WithActivitySink(sink ActivitySink) *InteractionService {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithLogger overrides the logger used by the service.
func (s *InteractionService) WithLogger(logger Logger) *InteractionService {
	s.logger = resolveLogger(logger)
	return s
}

// SignOut terminates the session and returns the post logout redirect of
// the interaction. An unknown or expired id yields an empty redirect, the
// caller falls back to its landing page. The session is terminated even
// when resolution fails.
func (s *InteractionService) SignOut(ctx context.Context, interactionID string, session SessionHandle) (string, error) {
	interactionID = strings.TrimSpace(interactionID)
	if interactionID == "" {
		return "", ErrInvalidInteractionID
	}

	logout, resolveErr := s.provider.ResolveLogoutContext(ctx, interactionID)

	if err := session.Terminate(ctx); err != nil {
		return "", categorize(err, "failed to terminate session")
	}

	var redirect, subject string
	switch {
	case resolveErr == nil && logout != nil:
		redirect = logout.PostLogoutRedirectURI
		subject = logout.SubjectID
	case resolveErr == nil, errors.Is(resolveErr, ErrInteractionNotFound):
		s.logger.Debug("logout context not found", "interaction_id", interactionID)
	default:
		return "", storeError("resolve logout context", resolveErr)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventSignOut,
		UserID:    subject,
		Metadata: map[string]any{
			"interaction_id": interactionID,
			"redirect":       redirect,
		},
	})

	return redirect, nil
}

// Error returns the error context of an interaction
func (s *InteractionService) Error(ctx context.Context, interactionID string) (*ErrorContext, error) {
	interactionID = strings.TrimSpace(interactionID)
	if interactionID == "" {
		return nil, ErrInvalidInteractionID
	}

	ec, err := s.provider.ResolveErrorContext(ctx, interactionID)
	if err != nil {
		if errors.Is(err, ErrInteractionNotFound) {
			return nil, withMessage(ErrInvalidInteractionID, fmt.Sprintf("error context %q not found", interactionID))
		}
		return nil, storeError("resolve error context", err)
	}

	if ec == nil {
		return nil, withMessage(ErrInvalidInteractionID, fmt.Sprintf("error context %q not found", interactionID))
	}

	return ec, nil
}
