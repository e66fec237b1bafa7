package accounts

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
)

var (
	digitRx       = regexp.MustCompile(`[0-9]`)
	lowerRx       = regexp.MustCompile(`[a-z]`)
	upperRx       = regexp.MustCompile(`[A-Z]`)
	nonAlphanumRx = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// PasswordPolicy lists the rules a new password must satisfy
type PasswordPolicy struct {
	MinLength              int  `env:"MIN_LENGTH" envDefault:"6"`
	RequireDigit           bool `env:"REQUIRE_DIGIT" envDefault:"true"`
	RequireLowercase       bool `env:"REQUIRE_LOWERCASE" envDefault:"true"`
	RequireUppercase       bool `env:"REQUIRE_UPPERCASE" envDefault:"true"`
	RequireNonAlphanumeric bool `env:"REQUIRE_NON_ALPHANUMERIC" envDefault:"true"`
}

// DefaultPasswordPolicy six characters with a digit, a lower and upper
// case letter and a symbol
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:              6,
		RequireDigit:           true,
		RequireLowercase:       true,
		RequireUppercase:       true,
		RequireNonAlphanumeric: true,
	}
}

func (p PasswordPolicy) rules() []validation.Rule {
	rules := []validation.Rule{
		validation.Required.Error("password is required"),
	}

	if p.MinLength > 0 {
		rules = append(rules, validation.Length(p.MinLength, 0).
			Error(fmt.Sprintf("password must be at least %d characters", p.MinLength)))
	}
	if p.RequireDigit {
		rules = append(rules, validation.Match(digitRx).Error("password must contain a digit"))
	}
	if p.RequireLowercase {
		rules = append(rules, validation.Match(lowerRx).Error("password must contain a lowercase letter"))
	}
	if p.RequireUppercase {
		rules = append(rules, validation.Match(upperRx).Error("password must contain an uppercase letter"))
	}
	if p.RequireNonAlphanumeric {
		rules = append(rules, validation.Match(nonAlphanumRx).Error("password must contain a non alphanumeric character"))
	}

	return rules
}

// Validate returns a *PolicyError listing every failed rule
func (p PasswordPolicy) Validate(password string) error {
	var problems []string
	for _, rule := range p.rules() {
		if err := validation.Validate(password, rule); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return &PolicyError{Problems: problems}
	}
	return nil
}
