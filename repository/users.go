package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IncrementFailedCountSQL bumps the counter in a single statement so
// concurrent attempts never lose an increment
var IncrementFailedCountSQL = `UPDATE "users"
SET
	"access_failed_count" = "access_failed_count" + 1,
	"updated_at" = ?
WHERE
	"id" = ?
RETURNING *;`

// userColumns are the columns Update may write. The failed counter and the
// lockout end are only written through their atomic statements.
var userColumns = []string{
	"username",
	"normalized_username",
	"email",
	"normalized_email",
	"phone_number",
	"password_hash",
	"email_confirmed",
	"phone_number_confirmed",
	"lockout_enabled",
	"version",
	"updated_at",
}

// NewUsersRepository builds the generic users repository. Lookups by
// identifier go through the normalized email.
func NewUsersRepository(db *bun.DB) repository.Repository[*accounts.User] {
	return repository.NewRepository[*accounts.User](db, repository.ModelHandlers[*accounts.User]{
		NewRecord: func() *accounts.User { return &accounts.User{} },
		GetID: func(u *accounts.User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *accounts.User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "normalized_email"
		},
	})
}

// UserStore implements accounts.CredentialStore. Reads and inserts go
// through the generic repository, the lockout bookkeeping through its own
// statements.
type UserStore struct {
	repository.Repository[*accounts.User]
	db bun.IDB
}

var _ accounts.CredentialStore = (*UserStore)(nil)

// NewUserStore returns a store on db
func NewUserStore(db *bun.DB) *UserStore {
	return bindUserStore(NewUsersRepository(db), db)
}

// bindUserStore runs repo against idb, which may be a transaction
func bindUserStore(repo repository.Repository[*accounts.User], idb bun.IDB) *UserStore {
	return &UserStore{Repository: repo, db: idb}
}

func (s *UserStore) FindByNormalizedIdentifier(ctx context.Context, field accounts.IdentifierField, normalized string) (*accounts.User, error) {
	if field == accounts.FieldEmail {
		user, err := s.Repository.GetByIdentifierTx(ctx, s.db, normalized)
		if err != nil {
			if IsRecordNotFound(err) {
				return nil, accounts.ErrIdentityNotFound
			}
			return nil, err
		}
		return user, nil
	}

	user := new(accounts.User)
	err := s.db.NewSelect().
		Model(user).
		Where("normalized_username = ?", normalized).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, accounts.ErrIdentityNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *UserStore) FindByID(ctx context.Context, id uuid.UUID) (*accounts.User, error) {
	user, err := s.Repository.GetByIDTx(ctx, s.db, id.String())
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, accounts.ErrIdentityNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *UserStore) IncrementFailedCount(ctx context.Context, id uuid.UUID) (int, error) {
	users, err := s.Repository.RawTx(ctx, s.db, IncrementFailedCountSQL, time.Now().UTC(), id)
	if err != nil {
		if IsRecordNotFound(err) {
			return 0, accounts.ErrIdentityNotFound
		}
		return 0, err
	}
	if len(users) == 0 || users[0] == nil {
		return 0, accounts.ErrIdentityNotFound
	}
	return users[0].AccessFailedCount, nil
}

func (s *UserStore) SetLockoutEnd(ctx context.Context, id uuid.UUID, end *time.Time) error {
	res, err := s.db.NewUpdate().
		Table("users").
		Set("lockout_end = ?", end).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, accounts.ErrIdentityNotFound)
}

// ResetFailedCount zeroes the counter and lifts any lockout
func (s *UserStore) ResetFailedCount(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewUpdate().
		Table("users").
		Set("access_failed_count = 0").
		Set("lockout_end = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, accounts.ErrIdentityNotFound)
}

// IsLockedOut evaluates the stored lockout window against now
func (s *UserStore) IsLockedOut(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	user := new(accounts.User)
	err := s.db.NewSelect().
		Model(user).
		Column("id", "lockout_enabled", "lockout_end").
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if IsRecordNotFound(err) {
			return false, accounts.ErrIdentityNotFound
		}
		return false, err
	}
	return user.IsLockedOut(now), nil
}

func (s *UserStore) Create(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Version == 0 {
		user.Version = 1
	}
	now := time.Now().UTC()
	user.CreatedAt = &now
	user.UpdatedAt = &now

	created, err := s.Repository.CreateTx(ctx, s.db, user)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, withMessage(accounts.ErrDuplicateIdentifier, "user already exists")
		}
		return nil, err
	}
	return created, nil
}

// Update writes user when the stored version still matches and bumps it
func (s *UserStore) Update(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	prevVersion := user.Version
	prevUpdated := user.UpdatedAt

	now := time.Now().UTC()
	user.Version = prevVersion + 1
	user.UpdatedAt = &now

	res, err := s.db.NewUpdate().
		Model(user).
		Column(userColumns...).
		WherePK().
		Where("version = ?", prevVersion).
		Exec(ctx)
	if err != nil {
		user.Version, user.UpdatedAt = prevVersion, prevUpdated
		if IsUniqueViolation(err) {
			return nil, withMessage(accounts.ErrDuplicateIdentifier, "identifier taken by another user")
		}
		return nil, err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		user.Version, user.UpdatedAt = prevVersion, prevUpdated
		if _, err := s.FindByID(ctx, user.ID); err != nil {
			return nil, err
		}
		return nil, accounts.ErrConcurrencyConflict
	}

	return user, nil
}
