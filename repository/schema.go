package repository

import (
	"context"
	"fmt"

	"github.com/goliatone/go-accounts"
	"github.com/uptrace/bun"
)

// Models lists every table owned by the accounts schema
func Models() []any {
	return []any{
		(*accounts.User)(nil),
		(*accounts.UserClaim)(nil),
		(*accounts.Role)(nil),
		(*accounts.UserRoleMembership)(nil),
		(*accounts.RoleClaim)(nil),
		(*accounts.UserToken)(nil),
	}
}

// CreateSchema creates missing tables and indexes
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range Models() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*accounts.UserToken)(nil), "idx_user_tokens_purpose_token", []string{"purpose", "token"}},
		{(*accounts.UserToken)(nil), "idx_user_tokens_user_purpose", []string{"user_id", "purpose"}},
		{(*accounts.RoleClaim)(nil), "idx_role_claims_role", []string{"role_id"}},
	}

	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}

	return nil
}
