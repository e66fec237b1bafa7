package accounts_test

import (
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordPolicyDefault(t *testing.T) {
	policy := accounts.DefaultPasswordPolicy()

	assert.NoError(t, policy.Validate("S3cret!"))

	tests := []struct {
		name     string
		password string
		problems []string
	}{
		{"empty", "", []string{"password is required"}},
		{"short", "S3c!", []string{"password must be at least 6 characters"}},
		{"no digit", "Secret!", []string{"password must contain a digit"}},
		{"no lower", "S3CRET!", []string{"password must contain a lowercase letter"}},
		{"no upper", "s3cret!", []string{"password must contain an uppercase letter"}},
		{"no symbol", "S3cret1", []string{"password must contain a non alphanumeric character"}},
		{"several", "secret", []string{
			"password must contain a digit",
			"password must contain an uppercase letter",
			"password must contain a non alphanumeric character",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Validate(tt.password)
			require.Error(t, err)
			assert.ErrorIs(t, err, accounts.ErrWeakCredential)

			var policyErr *accounts.PolicyError
			require.ErrorAs(t, err, &policyErr)
			assert.Equal(t, tt.problems, policyErr.Problems)
		})
	}
}

func TestPasswordPolicyRelaxed(t *testing.T) {
	policy := accounts.PasswordPolicy{MinLength: 4}

	assert.NoError(t, policy.Validate("abcd"))
	assert.Error(t, policy.Validate("abc"))
}
