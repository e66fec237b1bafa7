package repository

import (
	"context"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, CreateSchema(context.Background(), db))
	return db
}

func seedUser(t *testing.T, store *UserStore, username, email string) *accounts.User {
	t.Helper()

	user := &accounts.User{
		ID:             uuid.New(),
		PasswordHash:   "hash",
		LockoutEnabled: true,
	}
	user.SetUsername(username)
	user.SetEmail(email)

	created, err := store.Create(context.Background(), user)
	require.NoError(t, err)
	return created
}
