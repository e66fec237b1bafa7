package accounts

import (
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeIdentityNotFound      = "IDENTITY_NOT_FOUND"
	TextCodeBadCredentials        = "BAD_CREDENTIALS"
	TextCodeLockedOut             = "LOCKED_OUT"
	TextCodeNotAllowed            = "NOT_ALLOWED"
	TextCodeDuplicateIdentifier   = "DUPLICATE_IDENTIFIER"
	TextCodeWeakCredential        = "WEAK_CREDENTIAL"
	TextCodeInvalidInteractionID  = "INVALID_INTERACTION_ID"
	TextCodeInteractionNotFound   = "INTERACTION_NOT_FOUND"
	TextCodeInvalidRequest        = "INVALID_REQUEST"
	TextCodeInvalidToken          = "INVALID_TOKEN"
	TextCodeClaimNotFound         = "CLAIM_NOT_FOUND"
	TextCodeConcurrencyConflict   = "CONCURRENCY_CONFLICT"
	TextCodeStoreUnavailable      = "STORE_UNAVAILABLE"
	TextCodeSessionExpired        = "SESSION_EXPIRED"
	TextCodeSessionInvalid        = "SESSION_INVALID"
	TextCodeTooManyTokenAttempts  = "TOO_MANY_TOKEN_ATTEMPTS"
	TextCodeOperationCancelled    = "OPERATION_CANCELLED"
	TextCodeUnexpectedServerError = "UNEXPECTED_SERVER_ERROR"
)

// ErrIdentityNotFound is returned by stores for non found users. It never
// leaves the authentication flow as is.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrBadCredentials is the uniform failure for unknown identifiers and wrong passwords
var ErrBadCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeBadCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrLockedOut the attempt pushed the account over the lockout policy
var ErrLockedOut = goerrors.New("account locked out", goerrors.CategoryAuth).
	WithTextCode(TextCodeLockedOut).
	WithCode(goerrors.CodeUnauthorized)

// ErrNotAllowed the account is locked or not allowed to sign in, independent of the attempt
var ErrNotAllowed = goerrors.New("sign in not allowed", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotAllowed).
	WithCode(goerrors.CodeUnauthorized)

// ErrDuplicateIdentifier the normalized username or email is already taken
var ErrDuplicateIdentifier = goerrors.New("duplicate identifier", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateIdentifier).
	WithCode(goerrors.CodeConflict)

// ErrWeakCredential the password was rejected by the password policy
var ErrWeakCredential = goerrors.New("weak credential", goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakCredential).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidInteractionID the interaction id is empty or unknown
var ErrInvalidInteractionID = goerrors.New("invalid interaction id", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidInteractionID).
	WithCode(goerrors.CodeBadRequest)

// ErrInteractionNotFound is returned by interaction providers for unknown or expired ids
var ErrInteractionNotFound = goerrors.New("interaction not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeInteractionNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidRequest the caller supplied an invalid request
var ErrInvalidRequest = goerrors.New("invalid request", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidRequest).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidToken the confirmation or reset token is unknown, used or expired
var ErrInvalidToken = goerrors.New("invalid or expired token", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeBadRequest)

// ErrClaimNotFound is returned by claim stores when the claim row is missing
var ErrClaimNotFound = goerrors.New("claim not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeClaimNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrConcurrencyConflict the record changed since it was read
var ErrConcurrencyConflict = goerrors.New("concurrency conflict", goerrors.CategoryConflict).
	WithTextCode(TextCodeConcurrencyConflict).
	WithCode(goerrors.CodeConflict)

// ErrStoreUnavailable marks infrastructure failures of a backing store
var ErrStoreUnavailable = goerrors.New("store unavailable", goerrors.CategoryInternal).
	WithTextCode(TextCodeStoreUnavailable).
	WithCode(goerrors.CodeInternal)

// ErrTooManyTokenAttempts the phone code was guessed wrong too many times
// and has been revoked
var ErrTooManyTokenAttempts = goerrors.New("too many invalid token attempts", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTooManyTokenAttempts).
	WithCode(goerrors.CodeBadRequest)

// withMessage returns a copy of base carrying msg that still matches base
// under errors.Is
func withMessage(base *goerrors.Error, msg string) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Message = msg
	clone.Source = base
	return clone
}

// cancelled wraps a context error the same way across command handlers
func cancelled(err error, during string) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, "context cancelled during "+during).
		WithTextCode(TextCodeOperationCancelled)
}

// categorize keeps an already categorized error intact and marks anything
// else as internal
func categorize(err error, msg string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}

// StoreError wraps a backing store failure with the operation that failed.
// It matches ErrStoreUnavailable.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

var domainErrors = []error{
	ErrIdentityNotFound,
	ErrBadCredentials,
	ErrLockedOut,
	ErrNotAllowed,
	ErrDuplicateIdentifier,
	ErrWeakCredential,
	ErrInvalidInteractionID,
	ErrInteractionNotFound,
	ErrInvalidRequest,
	ErrInvalidToken,
	ErrClaimNotFound,
	ErrConcurrencyConflict,
	ErrTooManyTokenAttempts,
	ErrSessionExpired,
	ErrSessionInvalid,
}

// storeError marks err as an infrastructure failure. Domain errors and
// errors already marked pass through untouched.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}

	clone := ErrStoreUnavailable.Clone()
	if clone == nil {
		return &StoreError{Op: op, Err: err}
	}
	clone.Message = "store " + op + " failed"
	clone.Source = &StoreError{Op: op, Err: err}
	return clone.WithMetadata(map[string]any{"operation": op})
}

// PolicyError lists the password policy rules a password failed
type PolicyError struct {
	Problems []string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrWeakCredential.Message, strings.Join(e.Problems, "; "))
}

func (e *PolicyError) Unwrap() error {
	return ErrWeakCredential
}

// IsAuthenticationError reports whether err belongs to the authentication
// taxonomy, as opposed to an infrastructure failure
func IsAuthenticationError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrStoreUnavailable):
		return false
	case errors.Is(err, ErrBadCredentials),
		errors.Is(err, ErrLockedOut),
		errors.Is(err, ErrNotAllowed),
		errors.Is(err, ErrDuplicateIdentifier),
		errors.Is(err, ErrWeakCredential),
		errors.Is(err, ErrInvalidInteractionID),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTooManyTokenAttempts):
		return true
	default:
		return false
	}
}
