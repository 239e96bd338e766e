package prometheus

import (
	"context"

	"github.com/MrEthical07/authflow"
)

type nopProvider struct{}

func (nopProvider) Verify(context.Context, authflow.Credential) (authflow.SubjectIdentity, error) {
	return authflow.SubjectIdentity{}, nil
}

func (nopProvider) Register(context.Context, string, string, string) (authflow.SubjectIdentity, error) {
	return authflow.SubjectIdentity{}, nil
}

func (nopProvider) SignOut(context.Context) error { return nil }
