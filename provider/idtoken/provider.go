package idtoken

import (
	"context"
	"errors"

	"github.com/MrEthical07/authflow"
	"github.com/golang-jwt/jwt/v5"
)

// Provider verifies FederatedToken credentials for the brokers it has a
// Verifier for and hands everything else to the wrapped provider.
type Provider struct {
	next      authflow.IdentityProvider
	verifiers map[string]*Verifier
}

type otpProvider struct {
	*Provider
	authflow.OTPRequester
}

// Wrap decorates next. The result implements authflow.OTPRequester exactly
// when next does.
func Wrap(next authflow.IdentityProvider, verifiers ...*Verifier) authflow.IdentityProvider {
	p := &Provider{next: next, verifiers: make(map[string]*Verifier, len(verifiers))}
	for _, v := range verifiers {
		p.verifiers[v.Provider()] = v
	}
	if r, ok := next.(authflow.OTPRequester); ok {
		return &otpProvider{Provider: p, OTPRequester: r}
	}
	return p
}

func (p *Provider) Verify(ctx context.Context, cred authflow.Credential) (authflow.SubjectIdentity, error) {
	ft, ok := cred.(authflow.FederatedToken)
	if !ok {
		return p.next.Verify(ctx, cred)
	}
	v, ok := p.verifiers[ft.Provider]
	if !ok {
		return p.next.Verify(ctx, cred)
	}

	claims, err := v.Parse(ft.Token)
	if err != nil {
		return authflow.SubjectIdentity{}, providerError(err)
	}
	return authflow.SubjectIdentity{
		SubjectID:     ft.Provider + ":" + claims.Subject,
		Email:         claims.Email,
		DisplayName:   claims.Name,
		EmailVerified: claims.EmailVerified,
		PhotoRef:      claims.Picture,
	}, nil
}

func (p *Provider) Register(ctx context.Context, name, email, password string) (authflow.SubjectIdentity, error) {
	return p.next.Register(ctx, name, email, password)
}

func (p *Provider) SignOut(ctx context.Context) error {
	return p.next.SignOut(ctx)
}

// providerError reports token failures with the wording the coordinator's
// classifier recognizes. The jwt error text is kept for logs only.
func providerError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return &authflow.ProviderError{Code: "auth/id-token-expired", Message: "token is expired: " + err.Error()}
	}
	return &authflow.ProviderError{Code: "auth/invalid-id-token", Message: "invalid token: " + err.Error()}
}
