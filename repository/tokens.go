package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func NewTokensRepository(db *bun.DB) repository.Repository[*accounts.UserToken] {
	return repository.NewRepository[*accounts.UserToken](db, repository.ModelHandlers[*accounts.UserToken]{
		NewRecord: func() *accounts.UserToken { return &accounts.UserToken{} },
		GetID: func(t *accounts.UserToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *accounts.UserToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})
}

// TokenStore implements accounts.TokenStore
type TokenStore struct {
	repository.Repository[*accounts.UserToken]
	db bun.IDB
}

var _ accounts.TokenStore = (*TokenStore)(nil)

func NewTokenStore(db *bun.DB) *TokenStore {
	return bindTokenStore(NewTokensRepository(db), db)
}

func bindTokenStore(repo repository.Repository[*accounts.UserToken], idb bun.IDB) *TokenStore {
	return &TokenStore{Repository: repo, db: idb}
}

func (s *TokenStore) Create(ctx context.Context, token *accounts.UserToken) (*accounts.UserToken, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if token.Status == "" {
		token.Status = accounts.TokenRequestedStatus
	}
	if token.CreatedAt == nil {
		now := time.Now().UTC()
		token.CreatedAt = &now
	}

	return s.Repository.CreateTx(ctx, s.db, token)
}

func (s *TokenStore) FindActive(ctx context.Context, purpose accounts.TokenPurpose, token string) (*accounts.UserToken, error) {
	return s.findActive(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("purpose = ?", purpose).Where("token = ?", token)
	})
}

func (s *TokenStore) FindActiveForUser(ctx context.Context, userID uuid.UUID, purpose accounts.TokenPurpose, token string) (*accounts.UserToken, error) {
	return s.findActive(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("user_id = ?", userID).Where("purpose = ?", purpose).Where("token = ?", token)
	})
}

func (s *TokenStore) findActive(ctx context.Context, filter func(*bun.SelectQuery) *bun.SelectQuery) (*accounts.UserToken, error) {
	record := new(accounts.UserToken)
	err := filter(s.db.NewSelect().Model(record)).
		Where("status = ?", accounts.TokenRequestedStatus).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, accounts.ErrInvalidToken
		}
		return nil, err
	}
	return record, nil
}

// MarkRedeemed only succeeds once per token
func (s *TokenStore) MarkRedeemed(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewUpdate().
		Table("user_tokens").
		Set("status = ?", accounts.TokenRedeemedStatus).
		Set("redeemed_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", accounts.TokenRequestedStatus).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, accounts.ErrInvalidToken)
}

func (s *TokenStore) RevokeForUser(ctx context.Context, userID uuid.UUID, purpose accounts.TokenPurpose) error {
	_, err := s.db.NewUpdate().
		Table("user_tokens").
		Set("status = ?", accounts.TokenRevokedStatus).
		Where("user_id = ?", userID).
		Where("purpose = ?", purpose).
		Where("status = ?", accounts.TokenRequestedStatus).
		Exec(ctx)
	return err
}

func (s *TokenStore) RecordFailedAttempt(ctx context.Context, userID uuid.UUID, purpose accounts.TokenPurpose, limit int) (bool, error) {
	res, err := s.db.NewUpdate().
		Table("user_tokens").
		Set("failed_attempts = failed_attempts + 1").
		Where("user_id = ?", userID).
		Where("purpose = ?", purpose).
		Where("status = ?", accounts.TokenRequestedStatus).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return false, nil
	}

	if limit <= 0 {
		return false, nil
	}

	res, err = s.db.NewUpdate().
		Table("user_tokens").
		Set("status = ?", accounts.TokenRevokedStatus).
		Where("user_id = ?", userID).
		Where("purpose = ?", purpose).
		Where("status = ?", accounts.TokenRequestedStatus).
		Where("failed_attempts >= ?", limit).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}
