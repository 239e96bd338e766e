package validate

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Sanitize trims s, collapses runs of whitespace into a single ASCII space, drops control
// and format characters (including zero-width joiners and byte-order marks), and returns the
// NFC form of the result.
//
// Stripping happens before composition so that removing an embedded control character can
// never expose a new composable pair on a second pass.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}

	stripped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)

	return norm.NFC.String(strings.Join(strings.Fields(stripped), " "))
}

// NormalizeEmail returns the sanitized, lower-cased form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(Sanitize(email))
}

// NormalizePhone returns the sanitized phone number with common separators
// (spaces, dashes, dots, parentheses) and a leading '+' removed. Any other
// non-digit character is kept so that validation can reject it.
func NormalizePhone(raw string) string {
	s := strings.TrimPrefix(Sanitize(raw), "+")
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, s)
}
