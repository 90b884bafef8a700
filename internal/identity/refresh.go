package identity

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/ispauth/pkg/auth"
	"github.com/giantswarm/ispauth/pkg/logging"
)

// ErrNoRefreshToken is returned by Refresh for tokens that cannot be renewed.
var ErrNoRefreshToken = errors.New("token has no refresh token")

// RefreshOptions tunes a refresh.
type RefreshOptions struct {
	// Application is the OAuth application the refresh token was issued for.
	Application string
	// ReuseSession restores the cached session cookies first, so the
	// provider sees the session that passed MFA.
	ReuseSession bool
}

// Refresh exchanges tok's refresh token for a new token. The returned token
// keeps the username, endpoint and metadata of tok. When the provider does
// not rotate the refresh token the old one is kept.
func (c *Client) Refresh(ctx context.Context, tok *auth.Token, opts RefreshOptions) (*auth.Token, error) {
	if !tok.HasRefreshToken() {
		return nil, ErrNoRefreshToken
	}
	if tok.Endpoint == "" {
		return nil, &auth.EndpointResolutionError{Username: tok.Username, Reason: "cached token has no endpoint"}
	}
	app := opts.Application
	if app == "" {
		app = auth.DefaultServiceUserApplication
	}

	if opts.ReuseSession {
		if err := c.restoreCookies(tok.Endpoint, tok.Meta(auth.MetadataCookies)); err != nil {
			logging.Warn("Identity", "Ignoring cached session cookies: %v", err)
		}
	}

	cfg := &oauth2.Config{
		ClientID: app,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tok.Endpoint + "/OAuth2/RefreshToken/" + app,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	// Force the exchange: the stored access token is expired or nearly so.
	stale := tok.ToOAuth2Token()
	stale.AccessToken = ""

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	fresh, err := cfg.TokenSource(ctx, stale).Token()
	if err != nil {
		return nil, &auth.AuthenticationRejectedError{Summary: "RefreshFailed", Message: err.Error(), Err: err}
	}

	expiresAt := fresh.Expiry
	if expiresAt.IsZero() {
		expiresAt = c.now().Add(DefaultTokenLifetime)
	}

	out := tok.Clone()
	out.Token = auth.NewSecret(fresh.AccessToken)
	out.ExpiresAt = expiresAt
	if fresh.RefreshToken != "" {
		out.RefreshToken = auth.NewSecret(fresh.RefreshToken)
	}
	if cookies, err := c.exportCookies(tok.Endpoint); err == nil && cookies != "" {
		if out.Metadata == nil {
			out.Metadata = map[string]string{}
		}
		out.Metadata[auth.MetadataCookies] = cookies
	}

	logging.Debug("Identity", "Refreshed token for %s, valid until %s", tok.Username, expiresAt.Format(time.RFC3339))
	return out, nil
}
