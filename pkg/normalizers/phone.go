package normalizers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

const (
	// MinPhoneDigits is the shortest accepted normalized phone (DDD + 8-digit landline).
	MinPhoneDigits = 10
	// MaxPhoneDigits is the longest accepted normalized phone (DDD + 9-digit mobile).
	MaxPhoneDigits = 11

	countryCode = "55"
)

// NormalizePhone removes all non-digit characters from a phone number
func NormalizePhone(s string) string {
	return DigitsOnly(s)
}

// IsValidPhone reports whether a normalized phone has an accepted length.
func IsValidPhone(normalized string) bool {
	n := len(normalized)
	return n >= MinPhoneDigits && n <= MaxPhoneDigits && n == len(DigitsOnly(normalized))
}

// ParsePhone normalizes raw phone text and rejects it unless it has 10 or 11 digits.
func ParsePhone(raw string) (string, error) {
	normalized := NormalizePhone(raw)
	if normalized == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "phone is required")
	}
	if !IsValidPhone(normalized) {
		return "", httperror.NewHTTPErrorf(http.StatusBadRequest,
			"phone must have %d or %d digits, got %d", MinPhoneDigits, MaxPhoneDigits, len(normalized))
	}
	return normalized, nil
}

// FormatPhone renders a normalized phone as "(DD) NNNNN-NNNN" or "(DD) NNNN-NNNN".
func FormatPhone(normalized string) string {
	if !IsValidPhone(normalized) {
		return normalized
	}
	ddd, number := normalized[:2], normalized[2:]
	split := len(number) - 4
	return fmt.Sprintf("(%s) %s-%s", ddd, number[:split], number[split:])
}

// PhoneVariants returns the forms under which an external system may have stored the
// phone, most canonical first. Matching on the results is still done on digits only.
func PhoneVariants(normalized string) []string {
	seen := map[string]bool{}
	var variants []string
	add := func(v string) {
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		variants = append(variants, v)
	}

	local := normalized
	switch {
	case strings.HasPrefix(local, "0") && IsValidPhone(local[1:]):
		local = local[1:]
	case strings.HasPrefix(local, countryCode) && IsValidPhone(local[len(countryCode):]):
		local = local[len(countryCode):]
	}

	add(normalized)
	add(local)
	if IsValidPhone(local) {
		add(countryCode + local)
		add(FormatPhone(local))
	}
	return variants
}
