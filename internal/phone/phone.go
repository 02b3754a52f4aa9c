// Package phone turns user-entered phone numbers into WhatsApp destinations.
package phone

import (
	"errors"
	"strings"

	"github.com/matheus3301/wppgw/internal/config"
)

// ErrEmpty is returned when the input contains no digits.
var ErrEmpty = errors.New("phone number has no digits")

// Policy is a locale heuristic: numbers typed without a country code have
// exactly LocalLength digits and get CountryCode prepended.
type Policy struct {
	CountryCode string
	LocalLength int
	Domain      string
}

// FromConfig builds the policy from the [phone] config section.
func FromConfig(c config.PhoneConfig) Policy {
	return Policy{
		CountryCode: c.CountryCode,
		LocalLength: c.LocalLength,
		Domain:      c.Domain,
	}
}

// Normalize strips non-digits and applies the country-code rule.
func (p Policy) Normalize(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return "", ErrEmpty
	}
	if p.LocalLength > 0 && len(digits) == p.LocalLength {
		digits = p.CountryCode + digits
	}
	return digits, nil
}

// JID returns the normalized number with the messaging domain appended
// ("51987654321@s.whatsapp.net").
func (p Policy) JID(raw string) (normalized, jid string, err error) {
	normalized, err = p.Normalize(raw)
	if err != nil {
		return "", "", err
	}
	return normalized, normalized + "@" + p.Domain, nil
}
