package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type stores struct {
	credentials *UserStore
	claims      *ClaimStore
	roles       *RoleStore
	tokens      *TokenStore
}

func (s stores) Credentials() accounts.CredentialStore { return s.credentials }
func (s stores) Claims() accounts.ClaimsStore          { return s.claims }
func (s stores) Roles() accounts.RoleStore             { return s.roles }
func (s stores) Tokens() accounts.TokenStore           { return s.tokens }

type mngr struct {
	stores
	db         *bun.DB
	usersRepo  repository.Repository[*accounts.User]
	tokensRepo repository.Repository[*accounts.UserToken]
}

var (
	_ accounts.RepositoryManager    = (*mngr)(nil)
	_ repository.TransactionManager = (*mngr)(nil)
)

func NewRepositoryManager(db *bun.DB) accounts.RepositoryManager {
	m := &mngr{
		db:         db,
		usersRepo:  NewUsersRepository(db),
		tokensRepo: NewTokensRepository(db),
	}
	m.stores = m.bind(db)
	return m
}

// bind returns the stores running against idb
func (m *mngr) bind(idb bun.IDB) stores {
	return stores{
		credentials: bindUserStore(m.usersRepo, idb),
		claims:      NewClaimStore(idb),
		roles:       NewRoleStore(idb),
		tokens:      bindTokenStore(m.tokensRepo, idb),
	}
}

func (m *mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.usersRepo == nil || m.tokensRepo == nil {
		return errors.New("repository users and tokens should be initialized")
	}

	if m.credentials == nil || m.claims == nil || m.roles == nil || m.tokens == nil {
		return errors.New("repository stores should be initialized")
	}

	return nil
}

func (m *mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m *mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

// WithTx hands f a set of stores bound to the transaction
func (m *mngr) WithTx(ctx context.Context, f func(ctx context.Context, repos accounts.Repositories) error) error {
	return m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return f(ctx, m.bind(tx))
	})
}
