package accounts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultTokenLifetime bounds confirmation and reset tokens
const DefaultTokenLifetime = 24 * time.Hour

const phoneCodeDigits = 6

// NewPhoneCode returns a numeric code suitable for SMS
func NewPhoneCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate phone code")
	}
	return fmt.Sprintf("%0*d", phoneCodeDigits, n.Int64()), nil
}

// IssueToken revokes the user's outstanding tokens for purpose and stores a
// new one for target
func IssueToken(ctx context.Context, store TokenStore, userID uuid.UUID, purpose TokenPurpose, target string) (*UserToken, error) {
	value := uuid.NewString()
	if purpose == PurposePhoneConfirmation {
		code, err := NewPhoneCode()
		if err != nil {
			return nil, err
		}
		value = code
	}

	if err := store.RevokeForUser(ctx, userID, purpose); err != nil {
		return nil, storeError("revoke tokens", err)
	}

	token, err := store.Create(ctx, &UserToken{
		ID:      uuid.New(),
		UserID:  userID,
		Purpose: purpose,
		Token:   value,
		Target:  target,
		Status:  TokenRequestedStatus,
	})
	if err != nil {
		return nil, storeError("create token", err)
	}

	return token, nil
}

// tokenExpired checks the token creation time against lifetime
func tokenExpired(token *UserToken, lifetime time.Duration, now time.Time) bool {
	if token.CreatedAt == nil {
		return true
	}
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	return !token.CreatedAt.After(now.Add(-lifetime))
}

// redeemToken marks an active token as used. Unknown, used and expired
// tokens all fail with ErrInvalidToken.
func redeemToken(ctx context.Context, store TokenStore, token *UserToken, lifetime time.Duration, now time.Time) error {
	if token == nil || token.Status != TokenRequestedStatus {
		return ErrInvalidToken
	}

	if tokenExpired(token, lifetime, now) {
		return withMessage(ErrInvalidToken, "token expired")
	}

	if err := store.MarkRedeemed(ctx, token.ID); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return err
		}
		return storeError("mark token redeemed", err)
	}

	return nil
}
