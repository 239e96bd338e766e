package authflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/validate"
)

// SignIn authenticates cred and, on success, writes a fresh session and moves
// to Authenticated. It accepts EmailPassword, OTPCode and FederatedToken; an
// EmailPasswordConfirm is handed to SignUp. Phone numbers start a flow with
// RequestPhoneOTP instead and are rejected here as invalid input.
//
// Failures are returned as *AuthError and mirrored in State. The coordinator
// runs one auth flow at a time: calling SignIn while a different action is in
// flight returns ErrBusy, and an identical call joins the one in flight.
func (c *Coordinator) SignIn(ctx context.Context, cred Credential) (SubjectIdentity, error) {
	var a *action
	switch cr := cred.(type) {
	case EmailPassword:
		a = c.emailPasswordAction(cr)
	case *EmailPassword:
		a = c.emailPasswordAction(*cr)
	case EmailPasswordConfirm:
		return c.SignUp(ctx, cr.Name, cr.Email, cr.Password, cr.Confirm)
	case *EmailPasswordConfirm:
		return c.SignUp(ctx, cr.Name, cr.Email, cr.Password, cr.Confirm)
	case OTPCode:
		a = c.otpCodeAction(cr)
	case *OTPCode:
		a = c.otpCodeAction(*cr)
	case FederatedToken:
		a = c.federatedAction(cr)
	case *FederatedToken:
		a = c.federatedAction(*cr)
	default:
		a = c.unsupportedAction(cred)
	}

	out, err := c.run(ctx, a)
	if err != nil {
		return SubjectIdentity{}, err
	}
	return out.subject, nil
}

func (c *Coordinator) emailPasswordAction(cr EmailPassword) *action {
	email := validate.NormalizeEmail(cr.Email)
	password := validate.Sanitize(cr.Password)
	return &action{
		method:     MethodEmailPassword,
		eventType:  AuditSignIn,
		rateAction: rate.ActionLogin,
		identifier: email,
		email:      email,
		policy:     c.config.RateLimit.Login,
		secret:     password,
		session:    true,
		success:    MetricSignInSuccess,
		failure:    MetricSignInFailure,
		validate: func() *AuthError {
			return c.firstInvalid(
				fieldCheck{validate.KindEmail, email},
				fieldCheck{validate.KindSignInPassword, password},
			)
		},
		call: func(ctx context.Context) (outcome, error) {
			subject, err := c.provider.Verify(ctx, EmailPassword{Email: email, Password: password})
			return outcome{subject: subject}, err
		},
	}
}

func (c *Coordinator) otpCodeAction(cr OTPCode) *action {
	code := validate.Sanitize(cr.Code)
	challenge := validate.Sanitize(cr.ChallengeID)
	return &action{
		method:     MethodOTP,
		eventType:  AuditSignIn,
		rateAction: rate.ActionOTPVerify,
		identifier: challenge,
		policy:     c.config.RateLimit.OTPVerify,
		secret:     code,
		session:    true,
		success:    MetricSignInSuccess,
		failure:    MetricSignInFailure,
		validate: func() *AuthError {
			if challenge == "" {
				return newAuthError(KindValidation, msgMissingChallenge, nil)
			}
			return c.firstInvalid(fieldCheck{validate.KindOTP, code})
		},
		call: func(ctx context.Context) (outcome, error) {
			subject, err := c.provider.Verify(ctx, OTPCode{Code: code, ChallengeID: challenge})
			return outcome{subject: subject}, err
		},
	}
}

func (c *Coordinator) federatedAction(cr FederatedToken) *action {
	provider := validate.Sanitize(cr.Provider)
	token := cr.Token
	return &action{
		method:     MethodFederated,
		eventType:  AuditSignIn,
		rateAction: rate.ActionFederated,
		identifier: federatedIdentifier(provider, token),
		policy:     c.config.RateLimit.Federated,
		secret:     token,
		session:    true,
		success:    MetricSignInSuccess,
		failure:    MetricSignInFailure,
		validate: func() *AuthError {
			if provider == "" || validate.Sanitize(token) == "" {
				return newAuthError(KindValidation, msgMissingToken, nil)
			}
			return nil
		},
		call: func(ctx context.Context) (outcome, error) {
			subject, err := c.provider.Verify(ctx, FederatedToken{Provider: provider, Token: token})
			return outcome{subject: subject}, err
		},
	}
}

// federatedIdentifier keys federated attempts by broker and token digest. The
// token is unverified at this point, so it is never stored or logged as is.
func federatedIdentifier(provider, token string) string {
	sum := sha256.Sum256([]byte(validate.Sanitize(token)))
	return provider + ":" + hex.EncodeToString(sum[:16])
}

// unsupportedAction fails validation for credentials SignIn cannot verify.
// It still goes through run so the rejection is admitted and published like
// any other.
func (c *Coordinator) unsupportedAction(cred Credential) *action {
	var method Method
	if cred != nil {
		method = cred.Method()
	}
	return &action{
		method:     method,
		eventType:  AuditSignIn,
		rateAction: rate.ActionLogin,
		policy:     c.config.RateLimit.Login,
		failure:    MetricSignInFailure,
		validate: func() *AuthError {
			return newAuthError(KindValidation, msgUnsupportedMethod, nil)
		},
	}
}
