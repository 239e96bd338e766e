package authflow

import (
	"context"
	"fmt"
)

// Method names the credential shape behind an operation. It appears in audit
// events and flight keys.
type Method string

const (
	// MethodEmailPassword is an email + password sign-in.
	MethodEmailPassword Method = "email_password"
	// MethodEmailSignUp is a name + email + password registration.
	MethodEmailSignUp Method = "email_sign_up"
	// MethodPhone is a request for a one-time code sent to a phone number.
	MethodPhone Method = "phone"
	// MethodOTP is the verification of a previously requested one-time code.
	MethodOTP Method = "otp"
	// MethodFederated is a sign-in with a token issued by a federated provider.
	MethodFederated Method = "federated"
)

// Credential is the closed set of inputs accepted by [Coordinator.SignIn]:
// [EmailPassword], [EmailPasswordConfirm], [PhoneNumber], [OTPCode] and
// [FederatedToken]. Values are per-request and never persisted.
type Credential interface {
	Method() Method
	sealed()
}

// EmailPassword signs in an existing account.
type EmailPassword struct {
	Email    string
	Password string
}

// EmailPasswordConfirm registers a new account.
type EmailPasswordConfirm struct {
	Name     string
	Email    string
	Password string
	Confirm  string
}

// PhoneNumber identifies the phone a one-time code should be sent to.
type PhoneNumber struct {
	Raw string
}

// OTPCode answers the challenge returned by [Coordinator.RequestPhoneOTP].
type OTPCode struct {
	Code        string
	ChallengeID string
}

// FederatedToken carries a token minted by a federated identity broker, for
// example an ID token from a social sign-in. Provider names the broker.
type FederatedToken struct {
	Provider string
	Token    string
}

func (EmailPassword) Method() Method        { return MethodEmailPassword }
func (EmailPasswordConfirm) Method() Method { return MethodEmailSignUp }
func (PhoneNumber) Method() Method          { return MethodPhone }
func (OTPCode) Method() Method              { return MethodOTP }
func (FederatedToken) Method() Method       { return MethodFederated }

func (EmailPassword) sealed()        {}
func (EmailPasswordConfirm) sealed() {}
func (PhoneNumber) sealed()          {}
func (OTPCode) sealed()              {}
func (FederatedToken) sealed()       {}

// Passwords never reach fmt output.
func (c EmailPassword) String() string {
	return fmt.Sprintf("EmailPassword{Email:%q}", c.Email)
}

func (c EmailPasswordConfirm) String() string {
	return fmt.Sprintf("EmailPasswordConfirm{Name:%q Email:%q}", c.Name, c.Email)
}

func (c OTPCode) String() string {
	return fmt.Sprintf("OTPCode{ChallengeID:%q}", c.ChallengeID)
}

func (c FederatedToken) String() string {
	return fmt.Sprintf("FederatedToken{Provider:%q}", c.Provider)
}

// SubjectIdentity is the verified user identity returned by an
// [IdentityProvider].
type SubjectIdentity struct {
	SubjectID     string
	Email         string
	DisplayName   string
	EmailVerified bool
	// PhotoRef is empty when the provider has no picture for the subject.
	PhotoRef string
}

// IdentityProvider verifies credentials on behalf of the Coordinator. It is
// owned outside this module. Failures should be returned as [*ProviderError]
// so the Coordinator can classify them; any other error is treated as UNKNOWN
// unless it is a context or network timeout.
type IdentityProvider interface {
	// Verify authenticates an EmailPassword, OTPCode or FederatedToken.
	Verify(ctx context.Context, cred Credential) (SubjectIdentity, error)
	// Register creates an account and returns its identity.
	Register(ctx context.Context, name, email, password string) (SubjectIdentity, error)
	// SignOut ends the provider-side session. Failures are logged, not fatal.
	SignOut(ctx context.Context) error
}

// OTPRequester is implemented by providers able to send one-time codes to a
// phone number. RequestOTP returns the challenge id to pass back in [OTPCode].
type OTPRequester interface {
	RequestOTP(ctx context.Context, phone string) (challengeID string, err error)
}

// ConnectivityCheck reports whether the network is reachable. It must be
// synchronous and must not block.
type ConnectivityCheck interface {
	IsNetworkAvailable() bool
}

// DerivedCache is per-user data derived from the session, such as recently
// viewed items or search history, that sign-out must erase.
type DerivedCache interface {
	Name() string
	Purge(ctx context.Context) error
}
