// Package httpx builds the HTTP client used by the identity and service-user
// flows: timeout, session cookie jar and optional outbound proxy.
package httpx

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

// DefaultTimeout is used when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures NewClient.
type Options struct {
	Timeout time.Duration
	// Proxy is an http, https or socks5 URL. Empty means the environment
	// proxy settings apply.
	Proxy string
}

// NewClient returns a client with its own cookie jar. Each login attempt
// should use a fresh client so cookies from one tenant never leak into
// another.
func NewClient(opts Options) (*http.Client, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport, err := newTransport(opts.Proxy)
	if err != nil {
		return nil, err
	}

	return &http.Client{
		Timeout:   timeout,
		Jar:       jar,
		Transport: transport,
	}, nil
}

func newTransport(proxyURL string) (*http.Transport, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL == "" {
		return base, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		base.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if u.User != nil {
			password, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("create SOCKS5 dialer failed: %w", err)
		}
		base.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			base.DialContext = cd.DialContext
		} else {
			base.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	return base, nil
}

// NoRedirect returns a shallow copy of c that hands 3xx responses back to
// the caller instead of following them.
func NoRedirect(c *http.Client) *http.Client {
	cp := *c
	cp.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &cp
}
