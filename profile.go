package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ProfileService answers profile and liveness questions about a subject
// for relying parties.
type ProfileService struct {
	credentials CredentialStore
	assembler   *ClaimsAssembler
}

func NewProfileService(credentials CredentialStore, assembler *ClaimsAssembler) *ProfileService {
	return &ProfileService{
		credentials: credentials,
		assembler:   assembler,
	}
}

// ProfileData returns the subject's principal limited to requestedTypes.
// Role claims are always kept. An empty request returns every claim.
func (s *ProfileService) ProfileData(ctx context.Context, subject string, requestedTypes []string) (Principal, error) {
	user, err := s.findSubject(ctx, subject)
	if err != nil {
		return Principal{}, err
	}

	p, err := s.assembler.Assemble(ctx, user)
	if err != nil {
		return Principal{}, err
	}

	if len(requestedTypes) == 0 {
		return p, nil
	}

	types := append([]string{ClaimRole}, requestedTypes...)
	return p.Filter(types...), nil
}

// IsActive reports whether the subject still exists
func (s *ProfileService) IsActive(ctx context.Context, subject string) (bool, error) {
	_, err := s.findSubject(ctx, subject)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrIdentityNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *ProfileService) findSubject(ctx context.Context, subject string) (*User, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, withMessage(ErrIdentityNotFound, fmt.Sprintf("subject %q is not a user id", subject))
	}

	user, err := s.credentials.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, err
		}
		return nil, storeError("find user by id", err)
	}
	return user, nil
}
