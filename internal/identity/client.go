package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/giantswarm/ispauth/internal/prompt"
)

const (
	// DefaultTokenLifetime applies when the provider omits TokenLifetime.
	DefaultTokenLifetime = 3600 * time.Second

	// DefaultPollInterval is the delay between out-of-band poll requests.
	DefaultPollInterval = 2 * time.Second

	// DefaultMaxPollDuration bounds how long a push approval is waited for.
	DefaultMaxPollDuration = 5 * time.Minute

	// maxAnswerRetries is how many times a rejected answer is asked again.
	maxAnswerRetries = 1
)

// State is the position of a login in the challenge/response exchange.
type State int

const (
	StateIdle State = iota
	StateResolvingEndpoint
	StateAwaitingChallenge
	StateAwaitingMechanismAnswer
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingEndpoint:
		return "resolving_endpoint"
	case StateAwaitingChallenge:
		return "awaiting_challenge"
	case StateAwaitingMechanismAnswer:
		return "awaiting_mechanism_answer"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Client runs the StartAuthentication/AdvanceAuthentication exchange.
//
// A Client keeps the session cookies of its HTTP client between calls, so
// use one Client per login.
type Client struct {
	httpClient      *http.Client
	resolver        *Resolver
	prompter        prompt.Prompter
	pollInterval    time.Duration
	maxPollDuration time.Duration
	now             func() time.Time

	mu        sync.RWMutex
	state     State
	lastError error
}

// Option configures a Client.
type Option func(*Client)

// WithPrompter sets where interactive answers come from.
func WithPrompter(p prompt.Prompter) Option {
	return func(c *Client) {
		c.prompter = p
	}
}

// WithPollInterval sets the delay between push approval polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithMaxPollDuration bounds push approval polling.
func WithMaxPollDuration(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxPollDuration = d
		}
	}
}

// WithDeployEnv resolves endpoints in env instead of DEPLOY_ENV.
func WithDeployEnv(env string) Option {
	return func(c *Client) {
		c.resolver.env = env
	}
}

// WithDiscoveryBaseURL replaces the platform discovery host.
func WithDiscoveryBaseURL(base string) Option {
	return func(c *Client) {
		c.resolver.discoveryBase = base
	}
}

// NewClient creates a client that sends requests through httpClient. The
// client should carry a cookie jar, see httpx.NewClient.
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	c := &Client{
		httpClient:      httpClient,
		resolver:        NewResolver(httpClient, ""),
		pollInterval:    DefaultPollInterval,
		maxPollDuration: DefaultMaxPollDuration,
		now:             time.Now,
		state:           StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the state the last login reached.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastError returns the error that moved the client to StateFailed.
func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	if s == StateFailed {
		c.lastError = err
	} else if s == StateResolvingEndpoint {
		c.lastError = nil
	}
}

// postJSON sends body to url and decodes a 2xx JSON response into out.
func (c *Client) postJSON(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-IDAP-NATIVE-CLIENT", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned status %d: %s", url, resp.StatusCode, truncate(data, 200))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", url, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
