package authflow

import (
	"context"

	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/validate"
)

// RequestPhoneOTP asks the provider to send a one-time code to phone and
// returns the challenge id to submit with the code as an OTPCode. The state
// passes through Loading and settles on Unauthenticated; no session is
// written. It returns ErrOTPUnsupported when the IdentityProvider does not
// implement OTPRequester.
func (c *Coordinator) RequestPhoneOTP(ctx context.Context, phone PhoneNumber) (string, error) {
	requester, ok := c.provider.(OTPRequester)
	if !ok {
		return "", ErrOTPUnsupported
	}

	raw := phone.Raw
	canonical := c.validator.CanonicalPhone(raw)
	a := &action{
		method:     MethodPhone,
		eventType:  AuditOTPRequest,
		rateAction: rate.ActionPhoneAuth,
		identifier: canonical,
		policy:     c.config.RateLimit.PhoneAuth,
		success:    MetricOTPRequested,
		failure:    MetricOTPRequestFailure,
		validate: func() *AuthError {
			return c.firstInvalid(fieldCheck{validate.KindPhone, raw})
		},
		call: func(ctx context.Context) (outcome, error) {
			id, err := requester.RequestOTP(ctx, canonical)
			return outcome{challengeID: id}, err
		},
	}

	out, err := c.run(ctx, a)
	if err != nil {
		return "", err
	}
	return out.challengeID, nil
}
