package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/gearline/crm/pkg/domain"
)

// DefaultRegion is assumed for numbers without a country code.
const DefaultRegion = "IN"

// Normalize parses a raw mobile number and returns it as bare E.164 digits
// without the leading plus, the format the messaging provider expects.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", domain.NewValidationError("mobile number is required")
	}

	num, err := phonenumbers.Parse(trimmed, DefaultRegion)
	if err != nil {
		return "", domain.NewValidationError("mobile number could not be parsed")
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", domain.NewValidationError("mobile number is not valid")
	}

	e164 := phonenumbers.Format(num, phonenumbers.E164)
	return strings.TrimPrefix(e164, "+"), nil
}

// IsValid reports whether a raw mobile number normalizes cleanly.
func IsValid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}
