package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/giantswarm/ispauth/pkg/auth"
	"github.com/giantswarm/ispauth/pkg/logging"
)

// DeployEnvVar selects the deployment the endpoints are resolved in.
const DeployEnvVar = "DEPLOY_ENV"

// DefaultDeployEnv is used when DEPLOY_ENV is unset.
const DefaultDeployEnv = "prod"

var rootDomains = map[string]string{
	"prod":        "cyberark.cloud",
	"gov-prod":    "cyberarkgov.cloud",
	"integration": "integration-cyberark.cloud",
	"dev":         "dev-cyberark.cloud",
}

// DeployEnv returns the normalized DEPLOY_ENV value. Unknown values fall
// back to prod.
func DeployEnv() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(DeployEnvVar)))
	if env == "" {
		return DefaultDeployEnv
	}
	if _, ok := rootDomains[env]; !ok {
		logging.Warn("Identity", "Unknown %s %q, using %s", DeployEnvVar, env, DefaultDeployEnv)
		return DefaultDeployEnv
	}
	return env
}

// RootDomain returns the root domain of a deployment environment.
func RootDomain(env string) string {
	if d, ok := rootDomains[env]; ok {
		return d
	}
	return rootDomains[DefaultDeployEnv]
}

// Resolver maps a user to the identity tenant URL.
type Resolver struct {
	httpClient *http.Client
	env        string

	// discoveryBase overrides https://platform-discovery.<root> in tests.
	discoveryBase string
}

// NewResolver returns a resolver for env. An empty env reads DEPLOY_ENV.
func NewResolver(httpClient *http.Client, env string) *Resolver {
	if env == "" {
		env = DeployEnv()
	}
	return &Resolver{httpClient: httpClient, env: env}
}

// Env returns the deployment environment the resolver works in.
func (r *Resolver) Env() string {
	return r.env
}

type discoveryService struct {
	UI  string `json:"ui"`
	API string `json:"api"`
}

type discoveryResponse struct {
	IdentityUserPortal     *discoveryService `json:"identity_user_portal,omitempty"`
	IdentityAdministration *discoveryService `json:"identity_administration,omitempty"`
}

// Resolve returns the identity base URL without a trailing slash.
//
// Order: explicit URL, configured tenant subdomain, tenant derived from the
// username's domain. Every failure is an *auth.EndpointResolutionError.
func (r *Resolver) Resolve(ctx context.Context, username, explicitURL, subdomain string) (string, error) {
	if explicitURL != "" {
		return NormalizeURL(explicitURL), nil
	}

	if subdomain == "" {
		subdomain = r.subdomainFromUsername(username)
	}
	if subdomain == "" {
		return "", &auth.EndpointResolutionError{
			Username: username,
			Reason:   "no identity URL or tenant subdomain configured and the username does not name a tenant",
		}
	}

	endpoint, err := r.discover(ctx, subdomain)
	if err != nil {
		return "", &auth.EndpointResolutionError{
			Username: username,
			Reason:   fmt.Sprintf("platform discovery for tenant %q failed", subdomain),
			Err:      err,
		}
	}
	logging.Debug("Identity", "Resolved tenant %s to %s", subdomain, endpoint)
	return endpoint, nil
}

// subdomainFromUsername extracts "tenant" from user@tenant.<root>.
func (r *Resolver) subdomainFromUsername(username string) string {
	at := strings.LastIndex(username, "@")
	if at < 0 {
		return ""
	}
	domain := strings.ToLower(username[at+1:])
	suffix := "." + RootDomain(r.env)
	if !strings.HasSuffix(domain, suffix) {
		return ""
	}
	sub := strings.TrimSuffix(domain, suffix)
	if sub == "" || strings.Contains(sub, ".") {
		return ""
	}
	return sub
}

func (r *Resolver) discoveryURL(subdomain string) string {
	base := r.discoveryBase
	if base == "" {
		base = "https://platform-discovery." + RootDomain(r.env)
	}
	return fmt.Sprintf("%s/api/v2/services/subdomain/%s", strings.TrimSuffix(base, "/"), url.PathEscape(subdomain))
}

func (r *Resolver) discover(ctx context.Context, subdomain string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.discoveryURL(subdomain), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("discovery request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read discovery response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery returned status %d", resp.StatusCode)
	}

	var d discoveryResponse
	if err := json.Unmarshal(body, &d); err != nil {
		return "", fmt.Errorf("failed to parse discovery response: %w", err)
	}

	for _, svc := range []*discoveryService{d.IdentityUserPortal, d.IdentityAdministration} {
		if svc != nil && svc.API != "" {
			return NormalizeURL(svc.API), nil
		}
	}
	return "", fmt.Errorf("discovery response has no identity endpoint")
}

// NormalizeURL adds https:// when no scheme is present and trims trailing
// slashes.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if !strings.Contains(u, "://") {
		u = "https://" + u
	}
	return strings.TrimRight(u, "/")
}
