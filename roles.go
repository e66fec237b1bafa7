package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role groups users and carries role scoped claims
type Role struct {
	bun.BaseModel  `bun:"table:roles,alias:r"`
	ID             uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Name           string     `bun:"name,notnull" json:"name"`
	NormalizedName string     `bun:"normalized_name,notnull,unique" json:"-"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
}

// UserRoleMembership links a user to a role
type UserRoleMembership struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid"`
}

// RoleClaim is a claim granted to every member of a role. ID keeps
// insertion order.
type RoleClaim struct {
	bun.BaseModel `bun:"table:role_claims,alias:rc"`
	ID            int64     `bun:"id,pk,autoincrement"`
	RoleID        uuid.UUID `bun:"role_id,notnull,type:uuid"`
	ClaimType     string    `bun:"claim_type,notnull"`
	ClaimValue    string    `bun:"claim_value,notnull"`
}

// NewRole builds a role with its normalized name
func NewRole(name string) *Role {
	return &Role{
		ID:             uuid.New(),
		Name:           name,
		NormalizedName: NormalizeIdentifier(name),
	}
}
