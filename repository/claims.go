package repository

import (
	"context"

	"github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ClaimStore implements accounts.ClaimsStore on bun
type ClaimStore struct {
	db bun.IDB
}

var _ accounts.ClaimsStore = (*ClaimStore)(nil)

func NewClaimStore(db bun.IDB) *ClaimStore {
	return &ClaimStore{db: db}
}

func (s *ClaimStore) GetCustomClaim(ctx context.Context, userID uuid.UUID, claimType string) (*accounts.UserClaim, error) {
	claim := new(accounts.UserClaim)
	err := s.db.NewSelect().
		Model(claim).
		Where("user_id = ?", userID).
		Where("claim_type = ?", claimType).
		Scan(ctx)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, accounts.ErrClaimNotFound
		}
		return nil, err
	}
	return claim, nil
}

// FindOrCreateCustomClaim inserts defaultValue unless a row exists and
// returns the stored row. The unique (user_id, claim_type) index makes
// concurrent calls converge on one row.
func (s *ClaimStore) FindOrCreateCustomClaim(ctx context.Context, userID uuid.UUID, claimType, defaultValue string) (*accounts.UserClaim, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO user_claims (user_id, claim_type, claim_value) VALUES (?, ?, ?) ON CONFLICT (user_id, claim_type) DO NOTHING",
		userID, claimType, defaultValue,
	)
	if err != nil {
		return nil, err
	}
	return s.GetCustomClaim(ctx, userID, claimType)
}

func (s *ClaimStore) UpsertCustomClaim(ctx context.Context, userID uuid.UUID, claimType, value string) (*accounts.UserClaim, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO user_claims (user_id, claim_type, claim_value) VALUES (?, ?, ?) ON CONFLICT (user_id, claim_type) DO UPDATE SET claim_value = excluded.claim_value",
		userID, claimType, value,
	)
	if err != nil {
		return nil, err
	}
	return s.GetCustomClaim(ctx, userID, claimType)
}

// GetRoles returns the user's role names ordered by name
func (s *ClaimStore) GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var names []string
	err := s.db.NewRaw(
		"SELECT r.name FROM roles AS r JOIN user_roles AS ur ON ur.role_id = r.id WHERE ur.user_id = ? ORDER BY r.name",
		userID,
	).Scan(ctx, &names)
	if err != nil && !IsRecordNotFound(err) {
		return nil, err
	}
	return names, nil
}

// GetRoleClaims returns the role's claims in insertion order
func (s *ClaimStore) GetRoleClaims(ctx context.Context, roleName string) ([]accounts.Claim, error) {
	var rows []accounts.RoleClaim
	err := s.db.NewSelect().
		Model(&rows).
		Join("JOIN roles AS r ON r.id = rc.role_id").
		Where("r.normalized_name = ?", accounts.NormalizeIdentifier(roleName)).
		OrderExpr("rc.id ASC").
		Scan(ctx)
	if err != nil && !IsRecordNotFound(err) {
		return nil, err
	}

	claims := make([]accounts.Claim, 0, len(rows))
	for _, row := range rows {
		claims = append(claims, accounts.Claim{Type: row.ClaimType, Value: row.ClaimValue})
	}
	return claims, nil
}
