package accounts

import (
	"fmt"
	"strings"

	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse phone numbers without a country prefix
var DefaultPhoneRegion = "US"

// NormalizeIdentifier returns the invariant form used by the unique
// username and email columns
func NormalizeIdentifier(identifier string) string {
	return strings.ToUpper(strings.TrimSpace(identifier))
}

// NormalizePhone formats a phone number as E.164. An empty number stays empty.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	if region == "" {
		region = DefaultPhoneRegion
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", withMessage(ErrInvalidRequest, "unable to parse phone number")
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", withMessage(ErrInvalidRequest, fmt.Sprintf("phone number %q is not valid", raw))
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// DetectField picks the email column for identifiers that look like an
// email address and the username column otherwise
func DetectField(identifier string) IdentifierField {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") && is.Email.Validate(identifier) == nil {
		return FieldEmail
	}
	return FieldUsername
}

func resolveField(field IdentifierField, identifier string) IdentifierField {
	switch field {
	case FieldEmail, FieldUsername:
		return field
	default:
		return DetectField(identifier)
	}
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
