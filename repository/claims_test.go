package repository

import (
	"context"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimStoreFindOrCreate(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	users := NewUserStore(db)
	claims := NewClaimStore(db)
	user := seedUser(t, users, "alice", "alice@example.com")

	_, err := claims.GetCustomClaim(ctx, user.ID, accounts.ClaimName)
	assert.ErrorIs(t, err, accounts.ErrClaimNotFound)

	created, err := claims.FindOrCreateCustomClaim(ctx, user.ID, accounts.ClaimName, "")
	require.NoError(t, err)
	assert.Empty(t, created.ClaimValue)

	_, err = claims.UpsertCustomClaim(ctx, user.ID, accounts.ClaimName, "Alice Liddell")
	require.NoError(t, err)

	again, err := claims.FindOrCreateCustomClaim(ctx, user.ID, accounts.ClaimName, "")
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", again.ClaimValue)
	assert.Equal(t, created.ID, again.ID)

	var rows int
	require.NoError(t, db.NewRaw("SELECT COUNT(*) FROM user_claims WHERE user_id = ?", user.ID).Scan(ctx, &rows))
	assert.Equal(t, 1, rows)
}

func TestClaimStoreRoles(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	users := NewUserStore(db)
	claims := NewClaimStore(db)
	roles := NewRoleStore(db)
	user := seedUser(t, users, "alice", "alice@example.com")

	noRoles, err := claims.GetRoles(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, noRoles)

	for _, name := range []string{"editor", "admin"} {
		_, err := roles.EnsureRole(ctx, name)
		require.NoError(t, err)
		require.NoError(t, roles.AddToRole(ctx, user.ID, name))
	}

	// idempotent
	_, err = roles.EnsureRole(ctx, "Admin")
	require.NoError(t, err)
	require.NoError(t, roles.AddToRole(ctx, user.ID, "admin"))

	require.NoError(t, roles.AddRoleClaim(ctx, "admin", accounts.Claim{Type: "permission", Value: "users.write"}))
	require.NoError(t, roles.AddRoleClaim(ctx, "admin", accounts.Claim{Type: "permission", Value: "users.read"}))

	names, err := claims.GetRoles(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "editor"}, names)

	roleClaims, err := claims.GetRoleClaims(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, []accounts.Claim{
		{Type: "permission", Value: "users.write"},
		{Type: "permission", Value: "users.read"},
	}, roleClaims)

	empty, err := claims.GetRoleClaims(ctx, "editor")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRoleStoreUnknownRole(t *testing.T) {
	roles := NewRoleStore(setupDB(t))

	err := roles.AddToRole(context.Background(), uuid.New(), "missing")
	assert.ErrorIs(t, err, accounts.ErrInvalidRequest)
}

func TestClaimsAssemblerWithStore(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	users := NewUserStore(db)
	claims := NewClaimStore(db)
	roles := NewRoleStore(db)
	user := seedUser(t, users, "alice", "alice@example.com")

	_, err := roles.EnsureRole(ctx, "admin")
	require.NoError(t, err)
	require.NoError(t, roles.AddToRole(ctx, user.ID, "admin"))
	require.NoError(t, roles.AddRoleClaim(ctx, "admin", accounts.Claim{Type: "permission", Value: "all"}))

	principal, err := accounts.NewClaimsAssembler(claims).Assemble(ctx, user)
	require.NoError(t, err)

	assert.Equal(t, []accounts.Claim{
		{Type: accounts.ClaimSubject, Value: user.ID.String()},
		{Type: accounts.ClaimName, Value: ""},
		{Type: accounts.ClaimRole, Value: "admin"},
		{Type: "permission", Value: "all"},
	}, principal.Claims)
}
