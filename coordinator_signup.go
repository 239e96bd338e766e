package authflow

import (
	"context"

	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/validate"
)

// SignUp registers a new account and signs it in. Name, email and password are
// checked before anything else: the password must satisfy the sign-up policy,
// which rejects WEAK passwords, and must equal confirm. The IdentityProvider
// is not called for invalid input.
func (c *Coordinator) SignUp(ctx context.Context, name, email, password, confirm string) (SubjectIdentity, error) {
	name = validate.Sanitize(name)
	email = validate.NormalizeEmail(email)
	password = validate.Sanitize(password)
	confirm = validate.Sanitize(confirm)

	a := &action{
		method:     MethodEmailSignUp,
		eventType:  AuditSignUp,
		rateAction: rate.ActionSignUp,
		identifier: email,
		email:      email,
		policy:     c.config.RateLimit.SignUp,
		secret:     name + "\x00" + password + "\x00" + confirm,
		session:    true,
		success:    MetricSignUpSuccess,
		failure:    MetricSignUpFailure,
		validate: func() *AuthError {
			if ae := c.firstInvalid(
				fieldCheck{validate.KindName, name},
				fieldCheck{validate.KindEmail, email},
				fieldCheck{validate.KindPassword, password},
			); ae != nil {
				return ae
			}
			if password != confirm {
				return newAuthError(KindValidation, msgPasswordMismatch, nil)
			}
			return nil
		},
		call: func(ctx context.Context) (outcome, error) {
			subject, err := c.provider.Register(ctx, name, email, password)
			return outcome{subject: subject}, err
		},
	}

	out, err := c.run(ctx, a)
	if err != nil {
		return SubjectIdentity{}, err
	}
	return out.subject, nil
}
