package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the credential record
type User struct {
	bun.BaseModel        `bun:"table:users,alias:usr"`
	ID                   uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Username             string     `bun:"username,notnull" json:"username"`
	NormalizedUsername   string     `bun:"normalized_username,notnull,unique" json:"-"`
	Email                string     `bun:"email,notnull" json:"email"`
	NormalizedEmail      string     `bun:"normalized_email,notnull,unique" json:"-"`
	PhoneNumber          string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash         string     `bun:"password_hash,notnull" json:"-"`
	EmailConfirmed       bool       `bun:"email_confirmed,notnull,default:false" json:"email_confirmed"`
	PhoneNumberConfirmed bool       `bun:"phone_number_confirmed,notnull,default:false" json:"phone_number_confirmed"`
	AccessFailedCount    int        `bun:"access_failed_count,notnull,default:0" json:"-"`
	LockoutEnabled       bool       `bun:"lockout_enabled,notnull,default:true" json:"-"`
	LockoutEnd           *time.Time `bun:"lockout_end,nullzero" json:"-"`
	Version              int        `bun:"version,notnull,default:1" json:"-"`
	CreatedAt            *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt            *time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsLockedOut reports whether the lockout window is still open at now
func (u *User) IsLockedOut(now time.Time) bool {
	if u == nil || !u.LockoutEnabled || u.LockoutEnd == nil {
		return false
	}
	return u.LockoutEnd.After(now)
}

// SetEmail updates the email and its normalized lookup column
func (u *User) SetEmail(email string) {
	u.Email = email
	u.NormalizedEmail = NormalizeIdentifier(email)
}

// SetUsername updates the username and its normalized lookup column
func (u *User) SetUsername(username string) {
	u.Username = username
	u.NormalizedUsername = NormalizeIdentifier(username)
}

// UserClaim is a custom claim attached to a user. There is at most one
// row per (user, claim type).
type UserClaim struct {
	bun.BaseModel `bun:"table:user_claims,alias:uc"`
	ID            int64     `bun:"id,pk,autoincrement" json:"-"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid,unique:uq_user_claims_user_type" json:"user_id"`
	ClaimType     string    `bun:"claim_type,notnull,unique:uq_user_claims_user_type" json:"claim_type"`
	ClaimValue    string    `bun:"claim_value,notnull,default:''" json:"claim_value"`
}

// TokenPurpose tells what a UserToken can be redeemed for
type TokenPurpose = string

const (
	PurposeEmailConfirmation TokenPurpose = "email-confirmation"
	PurposePhoneConfirmation TokenPurpose = "phone-confirmation"
	PurposePasswordReset     TokenPurpose = "password-reset"
)

const (
	// TokenRequestedStatus token issued and not yet used
	TokenRequestedStatus = "requested"
	// TokenRedeemedStatus token was used
	TokenRedeemedStatus = "redeemed"
	// TokenRevokedStatus a newer token replaced this one
	TokenRevokedStatus = "revoked"
)

// UserToken is a single use confirmation or password reset token. Email
// and reset tokens are random uuids, phone tokens are short codes and are
// only looked up together with their user.
type UserToken struct {
	bun.BaseModel  `bun:"table:user_tokens,alias:utk"`
	ID             uuid.UUID    `bun:"id,pk,type:uuid" json:"id"`
	UserID         uuid.UUID    `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Purpose        TokenPurpose `bun:"purpose,notnull" json:"purpose"`
	Token          string       `bun:"token,notnull" json:"-"`
	Target         string       `bun:"target,notnull" json:"target"`
	Status         string       `bun:"status,notnull" json:"status"`
	FailedAttempts int          `bun:"failed_attempts,notnull,default:0" json:"-"`
	RedeemedAt     *time.Time   `bun:"redeemed_at,nullzero" json:"redeemed_at,omitempty"`
	CreatedAt      *time.Time   `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
}
