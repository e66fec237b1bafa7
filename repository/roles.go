package repository

import (
	"context"
	"fmt"

	"github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RoleStore implements accounts.RoleStore on bun
type RoleStore struct {
	db bun.IDB
}

var _ accounts.RoleStore = (*RoleStore)(nil)

func NewRoleStore(db bun.IDB) *RoleStore {
	return &RoleStore{db: db}
}

// EnsureRole creates the role if needed and returns the stored row
func (s *RoleStore) EnsureRole(ctx context.Context, name string) (*accounts.Role, error) {
	role := accounts.NewRole(name)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO roles (id, name, normalized_name) VALUES (?, ?, ?) ON CONFLICT (normalized_name) DO NOTHING",
		role.ID, role.Name, role.NormalizedName,
	)
	if err != nil {
		return nil, err
	}
	return s.findRole(ctx, name)
}

func (s *RoleStore) AddToRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	role, err := s.findRole(ctx, roleName)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO user_roles (user_id, role_id) VALUES (?, ?) ON CONFLICT (user_id, role_id) DO NOTHING",
		userID, role.ID,
	)
	return err
}

func (s *RoleStore) AddRoleClaim(ctx context.Context, roleName string, claim accounts.Claim) error {
	role, err := s.findRole(ctx, roleName)
	if err != nil {
		return err
	}

	_, err = s.db.NewInsert().
		Model(&accounts.RoleClaim{
			RoleID:     role.ID,
			ClaimType:  claim.Type,
			ClaimValue: claim.Value,
		}).
		Exec(ctx)
	return err
}

func (s *RoleStore) findRole(ctx context.Context, name string) (*accounts.Role, error) {
	role := new(accounts.Role)
	err := s.db.NewSelect().
		Model(role).
		Where("normalized_name = ?", accounts.NormalizeIdentifier(name)).
		Scan(ctx)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, withMessage(accounts.ErrInvalidRequest, fmt.Sprintf("role %q not found", name))
		}
		return nil, err
	}
	return role, nil
}
