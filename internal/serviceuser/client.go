// Package serviceuser obtains tokens for non-interactive service users with
// the OAuth2 client credentials grant followed by an implicit authorize
// call that yields the platform id_token.
package serviceuser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/giantswarm/ispauth/internal/httpx"
	"github.com/giantswarm/ispauth/internal/identity"
	"github.com/giantswarm/ispauth/pkg/auth"
	"github.com/giantswarm/ispauth/pkg/logging"
)

const (
	// TokenLifetime is the validity assumed for service user tokens.
	TokenLifetime = 4 * time.Hour

	// RedirectURI is registered for the platform OIDC application.
	RedirectURI = "https://cyberark.cloud/redirect"

	authorizeScope = "openid profile api"
	tokenScope     = "api"
)

// Client runs the service user flow. It holds no per-login state and may
// be reused and retried.
type Client struct {
	httpClient *http.Client
	resolver   *identity.Resolver
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithDeployEnv resolves endpoints in env instead of DEPLOY_ENV.
func WithDeployEnv(env string) Option {
	return func(c *Client) {
		c.resolver = identity.NewResolver(c.httpClient, env)
	}
}

// NewClient returns a service user client sending requests through
// httpClient.
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	c := &Client{
		httpClient: httpClient,
		resolver:   identity.NewResolver(httpClient, ""),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login authenticates username with its service token.
func (c *Client) Login(ctx context.Context, username string, settings auth.ServiceUserSettings, secret auth.Secret) (*auth.Token, error) {
	if secret.IsEmpty() {
		return nil, &auth.ServiceTokenRejectedError{Reason: "service token is empty"}
	}

	endpoint, err := c.resolver.Resolve(ctx, username, settings.URL, settings.TenantSubdomain)
	if err != nil {
		return nil, err
	}
	app := settings.Application()

	access, err := c.accessToken(ctx, endpoint, app, username, secret)
	if err != nil {
		return nil, err
	}

	idToken, err := c.authorize(ctx, endpoint, app, access)
	if err != nil {
		return nil, err
	}

	logging.Debug("ServiceUser", "Obtained platform token for %s from %s", username, endpoint)
	return &auth.Token{
		Token:     auth.NewSecret(idToken),
		Username:  username,
		Endpoint:  endpoint,
		Type:      auth.TokenTypeJWT,
		Method:    auth.MethodIdentityServiceUser,
		ExpiresAt: c.now().Add(TokenLifetime),
		Metadata: map[string]string{
			auth.MetadataEnv: c.resolver.Env(),
		},
	}, nil
}

// tokenResponse is the body of the client credentials call, success or
// error.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type,omitempty"`
	ExpiresIn        int    `json:"expires_in,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// accessToken performs the client credentials grant. The tenant expects the
// raw username and token in the Basic header, so the form-encoding of
// RFC 6749 section 2.3.1 is not applied.
func (c *Client) accessToken(ctx context.Context, endpoint, app, username string, secret auth.Secret) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", tokenScope)
	tokenURL := endpoint + "/Oauth2/Token/" + url.PathEscape(app)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &auth.ServiceTokenRejectedError{Reason: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(username, secret.Reveal())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &auth.ServiceTokenRejectedError{Reason: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &auth.ServiceTokenRejectedError{StatusCode: resp.StatusCode, Reason: "failed to read response", Err: err}
	}

	var tr tokenResponse
	decodeErr := json.Unmarshal(body, &tr)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := tr.Error
		if reason == "" {
			reason = strings.TrimSpace(string(body))
		}
		return "", &auth.ServiceTokenRejectedError{StatusCode: resp.StatusCode, Reason: reason}
	}
	if decodeErr != nil {
		return "", &auth.ServiceTokenRejectedError{StatusCode: resp.StatusCode, Reason: "malformed token response", Err: decodeErr}
	}
	if tr.AccessToken == "" {
		return "", &auth.ServiceTokenRejectedError{StatusCode: resp.StatusCode, Reason: "response has no access_token"}
	}
	return tr.AccessToken, nil
}

// authorize exchanges the access token for an id_token delivered in the
// redirect fragment.
func (c *Client) authorize(ctx context.Context, endpoint, app, accessToken string) (string, error) {
	q := url.Values{}
	q.Set("client_id", app)
	q.Set("response_type", "id_token")
	q.Set("scope", authorizeScope)
	q.Set("redirect_uri", RedirectURI)
	authorizeURL := endpoint + "/OAuth2/Authorize/" + url.PathEscape(app) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authorizeURL, nil)
	if err != nil {
		return "", &auth.AuthorizeRedirectMissingError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := httpx.NoRedirect(c.httpClient).Do(req)
	if err != nil {
		return "", &auth.AuthorizeRedirectMissingError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	location := resp.Header.Get("Location")
	if resp.StatusCode < 300 || resp.StatusCode > 399 || location == "" {
		return "", &auth.AuthorizeRedirectMissingError{StatusCode: resp.StatusCode, Location: location}
	}

	idToken := idTokenFromLocation(location)
	if idToken == "" {
		return "", &auth.AuthorizeRedirectMissingError{StatusCode: resp.StatusCode, Location: location}
	}
	return idToken, nil
}

func idTokenFromLocation(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.Fragment == "" {
		return ""
	}
	values, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return ""
	}
	return values.Get("id_token")
}
