package messaging

import "strings"

// PhonePolicy normalizes phone numbers before they reach the gateway. The
// country-code default is a deployment decision, not a law: an 11-digit
// number from another country would be prefixed too, so deployments outside
// Brazil must override both knobs.
type PhonePolicy struct {
	// CountryCode is prepended to short numbers (default "55").
	CountryCode string
	// LocalMaxDigits is the longest digit string still considered local
	// (default 11: Brazilian DDD + 9-digit mobile).
	LocalMaxDigits int
}

// DefaultPhonePolicy mirrors the gateway's Brazilian deployment.
func DefaultPhonePolicy() PhonePolicy {
	return PhonePolicy{CountryCode: "55", LocalMaxDigits: 11}
}

// Normalize strips every non-digit rune, then prepends the country code when
// the remainder looks like a local number without one.
func (p PhonePolicy) Normalize(phone string) string {
	digits := sanitizePhone(phone)
	if digits == "" {
		return ""
	}
	if p.CountryCode == "" {
		return digits
	}
	max := p.LocalMaxDigits
	if max <= 0 {
		max = 11
	}
	if len(digits) <= max && !strings.HasPrefix(digits, p.CountryCode) {
		return p.CountryCode + digits
	}
	return digits
}

func sanitizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
