package rate

import (
	"strings"
	"unicode"

	"github.com/MrEthical07/authflow/validate"
)

// Action namespaces used in rate-limit keys.
const (
	ActionLogin     = "login"
	ActionSignUp    = "signup"
	ActionPhoneAuth = "phone_auth"
	ActionOTPVerify = "otp_verify"
	ActionFederated = "federated"
)

// Key returns the rate-limit key for action and identifier.
func Key(action, identifier string) string {
	id := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, validate.Sanitize(identifier))
	return action + "_" + id
}
