package validate

import (
	"strings"
	"unicode/utf8"
)

// Strength is the coarse password strength class used by the sign-up policy.
type Strength uint8

const (
	// Weak passwords are rejected at sign-up.
	Weak Strength = iota
	// Medium passwords satisfy every character class at minimum length.
	Medium
	// Strong passwords add length on top of every character class.
	Strong
)

func (s Strength) String() string {
	switch s {
	case Weak:
		return "WEAK"
	case Medium:
		return "MEDIUM"
	case Strong:
		return "STRONG"
	default:
		return "UNKNOWN"
	}
}

// AllowedSymbols is the fixed set of special characters accepted in sign-up passwords.
const AllowedSymbols = "@$!%*?&#^()_-+="

const (
	passwordMinLen      = 8
	passwordMaxLen      = 32
	passwordLongLen     = 12
	passwordVeryLongLen = 16
)

type charClasses struct {
	lower, upper, digit, symbol bool
	unsupported                 bool
}

func (c charClasses) count() int {
	n := 0
	for _, ok := range [...]bool{c.lower, c.upper, c.digit, c.symbol} {
		if ok {
			n++
		}
	}
	return n
}

func classify(password string) charClasses {
	var c charClasses
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			c.lower = true
		case r >= 'A' && r <= 'Z':
			c.upper = true
		case r >= '0' && r <= '9':
			c.digit = true
		case strings.ContainsRune(AllowedSymbols, r):
			c.symbol = true
		default:
			c.unsupported = true
		}
	}
	return c
}

// PasswordStrength scores password by satisfied character classes plus one point
// each for reaching 12 and 16 characters. Anything shorter than 8 characters, or
// scoring two or less, is Weak; a score of five or more is Strong.
func PasswordStrength(password string) Strength {
	n := utf8.RuneCountInString(password)
	score := classify(password).count()
	if n >= passwordLongLen {
		score++
	}
	if n >= passwordVeryLongLen {
		score++
	}

	switch {
	case n < passwordMinLen || score <= 2:
		return Weak
	case score <= 4:
		return Medium
	default:
		return Strong
	}
}

func checkPassword(password string) string {
	if password == "" {
		return "Password is required"
	}
	n := utf8.RuneCountInString(password)
	if n < passwordMinLen {
		return "Password must be at least 8 characters"
	}
	if n > passwordMaxLen {
		return "Password must be at most 32 characters"
	}

	c := classify(password)
	if c.unsupported {
		return "Password may only contain letters, digits and " + AllowedSymbols
	}
	if PasswordStrength(password) == Weak {
		return "Password is too weak"
	}
	switch {
	case !c.lower:
		return "Password must contain a lowercase letter"
	case !c.upper:
		return "Password must contain an uppercase letter"
	case !c.digit:
		return "Password must contain a digit"
	case !c.symbol:
		return "Password must contain one of " + AllowedSymbols
	}
	return ""
}
