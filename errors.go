package authflow

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorKind is the stable classification of a failed operation. Every kind is
// recoverable: the user corrects input, waits, or retries.
type ErrorKind string

const (
	// KindValidation is bad input shape.
	KindValidation ErrorKind = "VALIDATION"
	// KindRateLimited is too many attempts inside the window.
	KindRateLimited ErrorKind = "RATE_LIMITED"
	// KindNetwork is missing connectivity or a provider timeout.
	KindNetwork ErrorKind = "NETWORK"
	// KindCredentialRejected is a wrong password, unknown account, existing
	// account or bad code.
	KindCredentialRejected ErrorKind = "CREDENTIAL_REJECTED"
	// KindProviderUnavailable is a provider-side or backing-store outage.
	KindProviderUnavailable ErrorKind = "PROVIDER_UNAVAILABLE"
	// KindUnknown is anything unclassified.
	KindUnknown ErrorKind = "UNKNOWN"
)

var (
	// ErrValidation matches every *AuthError of kind VALIDATION.
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited matches every *AuthError of kind RATE_LIMITED.
	ErrRateLimited = errors.New("rate limited")
	// ErrNetwork matches every *AuthError of kind NETWORK.
	ErrNetwork = errors.New("network unavailable")
	// ErrCredentialRejected matches every *AuthError of kind CREDENTIAL_REJECTED.
	ErrCredentialRejected = errors.New("credential rejected")
	// ErrProviderUnavailable matches every *AuthError of kind PROVIDER_UNAVAILABLE.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrUnknown matches every *AuthError of kind UNKNOWN.
	ErrUnknown = errors.New("unknown auth failure")

	// ErrNotStarted is returned by operations invoked before Start.
	ErrNotStarted = errors.New("coordinator not started")
	// ErrClosed is returned by operations invoked after Close.
	ErrClosed = errors.New("coordinator closed")
	// ErrAlreadyAuthenticated is returned when signing in over an existing session.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	// ErrBusy is returned when a different auth action is already in flight.
	ErrBusy = errors.New("another auth action is in flight")
	// ErrOTPUnsupported is returned when the provider cannot send one-time codes.
	ErrOTPUnsupported = errors.New("identity provider does not support otp")
	// ErrProviderTimeout is the cause recorded when the provider call exceeds
	// Config.Provider.Timeout.
	ErrProviderTimeout = errors.New("identity provider call timed out")
	// ErrInterrupted is returned by an action whose result arrived after a
	// sign-out; its session is discarded.
	ErrInterrupted = errors.New("auth action interrupted by sign-out")
)

var kindSentinels = map[ErrorKind]error{
	KindValidation:          ErrValidation,
	KindRateLimited:         ErrRateLimited,
	KindNetwork:             ErrNetwork,
	KindCredentialRejected:  ErrCredentialRejected,
	KindProviderUnavailable: ErrProviderUnavailable,
	KindUnknown:             ErrUnknown,
}

// AuthError is the error returned by Coordinator operations. Message is safe to
// show to end users; Cause is for logs only and never surfaced in AuthState.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrRateLimited) and friends match by kind.
func (e *AuthError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// ProviderError is the failure shape an IdentityProvider returns. Code is an
// optional provider-native code (for example "auth/wrong-password"); Message is
// the provider-native text. Neither is shown to users.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return "provider: " + e.Code + ": " + e.Message
	}
	return "provider: " + e.Message
}

// KindOf extracts the ErrorKind of err, or KindUnknown when err is not an
// *AuthError.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Fixed user-facing messages. Provider text never reaches users.
const (
	msgOffline             = "No internet connection. Check your network and try again."
	msgTimeout             = "The request timed out. Please try again."
	msgRateLimited         = "Too many attempts. Please wait a few minutes and try again."
	msgWrongCredentials    = "Incorrect email or password."
	msgAccountExists       = "An account with this email already exists. Try signing in."
	msgInvalidCode         = "The verification code is invalid or has expired."
	msgCredentialRejected  = "We couldn't verify those details. Please check and try again."
	msgProviderUnavailable = "The sign-in service is temporarily unavailable. Please try again later."
	msgUnknown             = "Something went wrong. Please try again."
	msgPasswordMismatch    = "Passwords do not match"
	msgUnsupportedMethod   = "This sign-in method is not supported"
	msgSessionSave         = "Could not save your session. Please try again."
	msgSessionClear        = "Could not clear your session. Please try again."
	msgSessionLoad         = "Could not load your session. Please try again."
	msgMissingChallenge    = "Request a verification code first."
	msgMissingToken        = "Sign-in with this provider did not complete. Please try again."
)

type classification struct {
	pattern string
	kind    ErrorKind
	message string
}

// providerTable maps provider codes and message fragments to a kind and a
// fixed message. Order matters: the first matching pattern wins.
var providerTable = []classification{
	{"network", KindNetwork, msgOffline},
	{"timed out", KindNetwork, msgTimeout},
	{"timeout", KindNetwork, msgTimeout},
	{"unreachable", KindNetwork, msgOffline},
	{"connection", KindNetwork, msgOffline},

	{"too many", KindRateLimited, msgRateLimited},
	{"too-many", KindRateLimited, msgRateLimited},
	{"blocked all requests", KindRateLimited, msgRateLimited},
	{"quota", KindRateLimited, msgRateLimited},

	{"already in use", KindCredentialRejected, msgAccountExists},
	{"already exists", KindCredentialRejected, msgAccountExists},
	{"email-already", KindCredentialRejected, msgAccountExists},
	{"verification code", KindCredentialRejected, msgInvalidCode},
	{"invalid code", KindCredentialRejected, msgInvalidCode},
	{"code expired", KindCredentialRejected, msgInvalidCode},
	{"session-expired", KindCredentialRejected, msgInvalidCode},
	{"password is invalid", KindCredentialRejected, msgWrongCredentials},
	{"wrong-password", KindCredentialRejected, msgWrongCredentials},
	{"wrong password", KindCredentialRejected, msgWrongCredentials},
	{"invalid credential", KindCredentialRejected, msgWrongCredentials},
	{"invalid-credential", KindCredentialRejected, msgWrongCredentials},
	{"no user record", KindCredentialRejected, msgWrongCredentials},
	{"user-not-found", KindCredentialRejected, msgWrongCredentials},
	{"user not found", KindCredentialRejected, msgWrongCredentials},
	{"no such account", KindCredentialRejected, msgWrongCredentials},
	{"disabled", KindCredentialRejected, msgCredentialRejected},
	{"invalid token", KindCredentialRejected, msgCredentialRejected},
	{"token is expired", KindCredentialRejected, msgCredentialRejected},

	{"unavailable", KindProviderUnavailable, msgProviderUnavailable},
	{"internal error", KindProviderUnavailable, msgProviderUnavailable},
	{"internal-error", KindProviderUnavailable, msgProviderUnavailable},
	{"service", KindProviderUnavailable, msgProviderUnavailable},
}

// classifyProviderError maps a provider failure to a kind and a fixed message.
// callCtx is the context the provider was called with; its deadline firing is a
// NETWORK failure regardless of what the provider returned.
func classifyProviderError(callCtx context.Context, err error) (ErrorKind, string) {
	if errors.Is(err, ErrProviderTimeout) || errors.Is(err, context.DeadlineExceeded) ||
		(callCtx != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded)) {
		return KindNetwork, msgTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindNetwork, msgTimeout
		}
		return KindNetwork, msgOffline
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		return KindUnknown, msgUnknown
	}

	text := strings.ToLower(pe.Code + " " + pe.Message)
	for _, c := range providerTable {
		if strings.Contains(text, c.pattern) {
			return c.kind, c.message
		}
	}
	return KindUnknown, msgUnknown
}

func newAuthError(kind ErrorKind, message string, cause error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Cause: cause}
}
