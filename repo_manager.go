package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
)

// Repositories groups the stores bound to one connection or transaction
type Repositories interface {
	Credentials() CredentialStore
	Claims() ClaimsStore
	Roles() RoleStore
	Tokens() TokenStore
}

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Repositories
	// WithTx calls f with repositories bound to a single transaction.
	// Returning an error rolls the transaction back.
	WithTx(ctx context.Context, f func(ctx context.Context, repos Repositories) error) error
}
