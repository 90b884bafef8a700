package orchestrator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/giantswarm/ispauth/internal/identity"
	"github.com/giantswarm/ispauth/internal/serviceuser"
	"github.com/giantswarm/ispauth/pkg/auth"
)

// Strategy performs a full login for one auth method.
type Strategy interface {
	Method() auth.AuthMethod
	Login(ctx context.Context, profile auth.AuthProfile, secret auth.Secret) (*auth.Token, error)
}

// Refresher is implemented by strategies that can renew a token without a
// full login.
type Refresher interface {
	Refresh(ctx context.Context, profile auth.AuthProfile, token *auth.Token) (*auth.Token, error)
}

// HTTPClientFactory returns a fresh client, with its own cookie jar, for
// each login or refresh.
type HTTPClientFactory func() (*http.Client, error)

// IdentityStrategy logs in through the challenge/response exchange. It
// serves both the identity and the default method.
type IdentityStrategy struct {
	method        auth.AuthMethod
	newHTTPClient HTTPClientFactory
	clientOpts    []identity.Option
	reuseSession  bool
}

// NewIdentityStrategy returns a strategy for method, which must be
// auth.MethodIdentity or auth.MethodDefault.
func NewIdentityStrategy(method auth.AuthMethod, newHTTPClient HTTPClientFactory, reuseSession bool, opts ...identity.Option) *IdentityStrategy {
	return &IdentityStrategy{
		method:        method,
		newHTTPClient: newHTTPClient,
		clientOpts:    opts,
		reuseSession:  reuseSession,
	}
}

func (s *IdentityStrategy) Method() auth.AuthMethod { return s.method }

func (s *IdentityStrategy) Login(ctx context.Context, profile auth.AuthProfile, secret auth.Secret) (*auth.Token, error) {
	return challengeLogin(ctx, s.method, s.newHTTPClient, s.clientOpts, profile, secret)
}

func (s *IdentityStrategy) Refresh(ctx context.Context, profile auth.AuthProfile, token *auth.Token) (*auth.Token, error) {
	hc, err := s.newHTTPClient()
	if err != nil {
		return nil, err
	}
	client := identity.NewClient(hc, s.clientOpts...)
	tok, err := client.Refresh(ctx, token, identity.RefreshOptions{
		Application:  auth.DefaultServiceUserApplication,
		ReuseSession: s.reuseSession,
	})
	if err != nil {
		return nil, err
	}
	tok.Method = s.method
	return tok, nil
}

// DirectStrategy runs the challenge/response exchange against a fixed
// endpoint. Its tokens are never refreshed.
type DirectStrategy struct {
	newHTTPClient HTTPClientFactory
	clientOpts    []identity.Option
}

func NewDirectStrategy(newHTTPClient HTTPClientFactory, opts ...identity.Option) *DirectStrategy {
	return &DirectStrategy{newHTTPClient: newHTTPClient, clientOpts: opts}
}

func (s *DirectStrategy) Method() auth.AuthMethod { return auth.MethodDirect }

func (s *DirectStrategy) Login(ctx context.Context, profile auth.AuthProfile, secret auth.Secret) (*auth.Token, error) {
	if profile.Direct == nil || profile.Direct.Endpoint == "" {
		return nil, &auth.EndpointResolutionError{Username: profile.Username, Reason: "direct method needs an endpoint"}
	}
	return challengeLogin(ctx, auth.MethodDirect, s.newHTTPClient, s.clientOpts, profile, secret)
}

// ServiceUserStrategy logs in service users with their static token.
type ServiceUserStrategy struct {
	newHTTPClient HTTPClientFactory
	clientOpts    []serviceuser.Option
}

func NewServiceUserStrategy(newHTTPClient HTTPClientFactory, opts ...serviceuser.Option) *ServiceUserStrategy {
	return &ServiceUserStrategy{newHTTPClient: newHTTPClient, clientOpts: opts}
}

func (s *ServiceUserStrategy) Method() auth.AuthMethod { return auth.MethodIdentityServiceUser }

func (s *ServiceUserStrategy) Login(ctx context.Context, profile auth.AuthProfile, secret auth.Secret) (*auth.Token, error) {
	hc, err := s.newHTTPClient()
	if err != nil {
		return nil, err
	}
	var settings auth.ServiceUserSettings
	if profile.ServiceUser != nil {
		settings = *profile.ServiceUser
	}
	return serviceuser.NewClient(hc, s.clientOpts...).Login(ctx, profile.Username, settings, secret)
}

func challengeLogin(ctx context.Context, method auth.AuthMethod, newHTTPClient HTTPClientFactory, opts []identity.Option, profile auth.AuthProfile, secret auth.Secret) (*auth.Token, error) {
	settings := profile.EffectiveIdentitySettings()
	if settings == nil {
		return nil, fmt.Errorf("method %s has no challenge/response settings", method)
	}

	hc, err := newHTTPClient()
	if err != nil {
		return nil, err
	}
	tok, err := identity.NewClient(hc, opts...).Login(ctx, identity.LoginRequest{
		Username: profile.Username,
		Settings: *settings,
		Secret:   secret,
	})
	if err != nil {
		return nil, err
	}
	tok.Method = method
	return tok, nil
}

// DefaultStrategies returns one strategy per supported method.
func DefaultStrategies(newHTTPClient HTTPClientFactory, reuseSession bool, identityOpts []identity.Option, serviceUserOpts []serviceuser.Option) []Strategy {
	return []Strategy{
		NewIdentityStrategy(auth.MethodIdentity, newHTTPClient, reuseSession, identityOpts...),
		NewIdentityStrategy(auth.MethodDefault, newHTTPClient, reuseSession, identityOpts...),
		NewDirectStrategy(newHTTPClient, identityOpts...),
		NewServiceUserStrategy(newHTTPClient, serviceUserOpts...),
	}
}
