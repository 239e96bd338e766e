package validate

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind selects the rule set applied by [Validator.Validate].
type Kind uint8

const (
	// KindEmail checks the local@domain.tld shape and length bounds.
	KindEmail Kind = iota
	// KindPassword applies the sign-up password policy, including strength.
	KindPassword
	// KindSignInPassword only requires a non-blank value.
	KindSignInPassword
	// KindName allows letters and spaces only.
	KindName
	// KindPhone checks digit-only numbers of the configured length.
	KindPhone
	// KindOTP requires exactly six digits.
	KindOTP
)

// Field returns the input field name a Kind validates.
func (k Kind) Field() string {
	switch k {
	case KindEmail:
		return "email"
	case KindPassword, KindSignInPassword:
		return "password"
	case KindName:
		return "name"
	case KindPhone:
		return "phone"
	case KindOTP:
		return "otp"
	default:
		return "unknown"
	}
}

const (
	emailMinLen = 5
	emailMaxLen = 100
	nameMinLen  = 2
	nameMaxLen  = 50
	phoneMinLen = 10
	phoneMaxLen = 15
	otpLength   = 6
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}$`)

// ErrInvalid is matched by every [*FieldError] through errors.Is.
var ErrInvalid = errors.New("invalid input")

// FieldError is the error form of an invalid [Result]. Reason is safe to show to end users.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return e.Reason }

// Unwrap lets errors.Is(err, ErrInvalid) match any validation failure.
func (e *FieldError) Unwrap() error { return ErrInvalid }

// Result is either valid (empty Reason) or invalid with a user-facing reason.
type Result struct {
	Kind   Kind
	Reason string
}

// Valid reports whether the checked value passed every rule.
func (r Result) Valid() bool {
	return r.Reason == ""
}

// Err returns nil for a valid result and a [*FieldError] otherwise.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &FieldError{Field: r.Kind.Field(), Reason: r.Reason}
}

// Rules carries the market-specific switches of a [Validator].
type Rules struct {
	// IndiaOnlyPhone restricts phone numbers to 10 digits starting with 6-9.
	IndiaOnlyPhone bool
}

// Validator applies [Rules] to individual inputs. The zero value is usable and
// equivalent to New(Rules{}).
type Validator struct {
	rules Rules
}

// New returns a Validator for the given rules.
func New(rules Rules) *Validator {
	return &Validator{rules: rules}
}

var defaultValidator = &Validator{}

// Validate checks value with the default rules.
func Validate(kind Kind, value string) Result {
	return defaultValidator.Validate(kind, value)
}

// Validate sanitizes value and checks it against the rule set for kind.
func (v *Validator) Validate(kind Kind, value string) Result {
	var reason string
	switch kind {
	case KindEmail:
		reason = checkEmail(NormalizeEmail(value))
	case KindPassword:
		reason = checkPassword(Sanitize(value))
	case KindSignInPassword:
		if Sanitize(value) == "" {
			reason = "Password is required"
		}
	case KindName:
		reason = checkName(Sanitize(value))
	case KindPhone:
		reason = v.checkPhone(NormalizePhone(value))
	case KindOTP:
		reason = checkOTP(Sanitize(value))
	default:
		reason = "Unsupported input"
	}
	return Result{Kind: kind, Reason: reason}
}

func checkEmail(email string) string {
	if email == "" {
		return "Email is required"
	}
	n := utf8.RuneCountInString(email)
	if n < emailMinLen || n > emailMaxLen {
		return "Email must be between 5 and 100 characters"
	}
	if !emailPattern.MatchString(email) {
		return "Enter a valid email address"
	}
	return ""
}

func checkName(name string) string {
	if name == "" {
		return "Name is required"
	}
	n := utf8.RuneCountInString(name)
	if n < nameMinLen || n > nameMaxLen {
		return "Name must be between 2 and 50 characters"
	}
	for _, r := range name {
		if r != ' ' && !unicode.IsLetter(r) {
			return "Name may contain only letters and spaces"
		}
	}
	return ""
}

func (v *Validator) checkPhone(phone string) string {
	if phone == "" {
		return "Phone number is required"
	}
	if !allDigits(phone) {
		return "Phone number may contain only digits"
	}
	if v != nil && v.rules.IndiaOnlyPhone {
		if len(phone) == 12 && strings.HasPrefix(phone, "91") {
			phone = phone[2:]
		}
		if len(phone) != 10 || phone[0] < '6' || phone[0] > '9' {
			return "Enter a valid 10-digit mobile number"
		}
		return ""
	}
	if len(phone) < phoneMinLen || len(phone) > phoneMaxLen {
		return "Phone number must be between 10 and 15 digits"
	}
	return ""
}

func checkOTP(code string) string {
	if len(code) != otpLength || !allDigits(code) {
		return "Verification code must be 6 digits"
	}
	return ""
}

// allDigits reports whether s is non-empty and made of ASCII digits only.
func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// CanonicalPhone returns the number the rules would accept, in the form used for
// rate-limit keys and provider calls. For India-only rules a leading 91 country
// code is dropped.
func (v *Validator) CanonicalPhone(raw string) string {
	phone := NormalizePhone(raw)
	if v != nil && v.rules.IndiaOnlyPhone && len(phone) == 12 && strings.HasPrefix(phone, "91") {
		return phone[2:]
	}
	return phone
}
