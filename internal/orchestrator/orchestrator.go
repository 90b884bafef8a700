package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/ispauth/internal/tokencache"
	"github.com/giantswarm/ispauth/pkg/auth"
	"github.com/giantswarm/ispauth/pkg/logging"
)

// ErrNoRefreshableToken is returned by Refresh when nothing is cached that
// could be refreshed.
var ErrNoRefreshableToken = errors.New("no refreshable token cached")

// ErrRefreshNotSupported is returned by Refresh for methods without a
// refresh flow.
var ErrRefreshNotSupported = errors.New("auth method does not support refresh")

// Config holds the configuration for the orchestrator.
type Config struct {
	// Cache persists tokens. Nil disables caching.
	Cache *tokencache.Cache

	// StickySessionRefresh lets Authenticate refresh an expired token with
	// the session cookies of the login that passed MFA.
	StickySessionRefresh bool

	Strategies []Strategy
}

// Orchestrator decides per call whether a cached token, a refreshed token
// or a full login answers an authentication request.
type Orchestrator struct {
	cache         *tokencache.Cache
	stickyRefresh bool
	strategies    map[auth.AuthMethod]Strategy

	group singleflight.Group

	mu          sync.RWMutex
	states      map[stateKey]stateEntry
	subscribers []chan<- StateChangedEvent
}

// New creates an orchestrator with the strategies in cfg.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		cache:         cfg.Cache,
		stickyRefresh: cfg.StickySessionRefresh,
		strategies:    make(map[auth.AuthMethod]Strategy),
		states:        make(map[stateKey]stateEntry),
	}
	for _, s := range cfg.Strategies {
		o.Register(s)
	}
	return o
}

// Register adds or replaces the strategy for s.Method().
func (o *Orchestrator) Register(s Strategy) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.strategies[s.Method()] = s
}

func (o *Orchestrator) strategy(method auth.AuthMethod) (Strategy, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.strategies[method]
	return s, ok
}

// Authenticate returns a token for profile.
//
// Unless force is set, a valid cached token for the same username is
// returned without any network call. An expired but refreshable entry is
// refreshed once; if that fails a full login follows. Every error is an
// *auth.AuthenticationFailedError wrapping the flow error.
//
// Concurrent calls share one attempt only when profile, method, username
// and secret all match.
func (o *Orchestrator) Authenticate(ctx context.Context, profile string, ap auth.AuthProfile, secret auth.Secret, force bool) (*auth.Token, error) {
	key := flightKey(profile, ap, secret, force)
	v, err, shared := o.group.Do(key, func() (interface{}, error) {
		return o.authenticate(ctx, profile, ap, secret, force)
	})
	if shared {
		logging.Debug("Orchestrator", "Shared authentication result for profile %s", profile)
	}
	if err != nil {
		return nil, err
	}
	return v.(*auth.Token).Clone(), nil
}

// flightKey identifies an authentication attempt. The secret enters only as
// a digest so it never sits in the singleflight map in clear text.
func flightKey(profile string, ap auth.AuthProfile, secret auth.Secret, force bool) string {
	sum := sha256.Sum256([]byte(secret.Reveal()))
	return fmt.Sprintf("%s/%s/%s/%s/%t", profile, ap.Method, ap.Username, hex.EncodeToString(sum[:8]), force)
}

func (o *Orchestrator) authenticate(ctx context.Context, profile string, ap auth.AuthProfile, secret auth.Secret, force bool) (*auth.Token, error) {
	method := ap.Method
	o.transition(profile, method, StateCacheCheck, nil)

	strategy, ok := o.strategy(method)
	if !ok {
		return nil, o.fail(profile, method, &auth.UnsupportedAuthMethodError{Method: method})
	}
	if err := ap.Validate(); err != nil {
		return nil, o.fail(profile, method, err)
	}

	if o.cache != nil {
		if force {
			if err := o.cache.Clear(profile, method); err != nil {
				logging.Warn("Orchestrator", "Could not evict cached token for profile %s: %v", profile, err)
			}
		} else if tok := o.fromCache(ctx, profile, ap, strategy); tok != nil {
			return tok, nil
		}
	}

	o.transition(profile, method, StateLoggingIn, nil)
	tok, err := strategy.Login(ctx, ap, secret)
	if err != nil {
		return nil, o.fail(profile, method, err)
	}
	return o.succeed(profile, method, tok, "login"), nil
}

// fromCache returns a cached or refreshed token, or nil when a full login
// is needed.
func (o *Orchestrator) fromCache(ctx context.Context, profile string, ap auth.AuthProfile, strategy Strategy) *auth.Token {
	method := ap.Method

	// Read the refreshable entry first: Load removes expired entries.
	refreshable := o.cache.LoadRefreshable(profile, method)

	if tok := o.cache.Load(profile, method); tok != nil {
		if tok.Username == ap.Username {
			o.transition(profile, method, StateCached, nil)
			o.transition(profile, method, StateAuthenticated, nil)
			return tok
		}
		logging.Debug("Orchestrator", "Cached token for profile %s belongs to %s, not %s", profile, tok.Username, ap.Username)
		return nil
	}

	refresher, canRefresh := strategy.(Refresher)
	if refreshable == nil || !canRefresh || !o.stickyRefresh || refreshable.Username != ap.Username {
		return nil
	}

	o.transition(profile, method, StateRefreshing, nil)
	tok, err := refresher.Refresh(ctx, ap, refreshable)
	if err != nil {
		logging.Warn("Orchestrator", "Refresh for profile %s failed, falling back to login: %v", profile, err)
		o.audit("token_refresh", "failure", profile, method, err.Error())
		if err := o.cache.Clear(profile, method); err != nil {
			logging.Warn("Orchestrator", "Could not evict cached token for profile %s: %v", profile, err)
		}
		return nil
	}
	return o.succeed(profile, method, tok, "refresh")
}

// Refresh renews the cached token of profile using its refresh token.
func (o *Orchestrator) Refresh(ctx context.Context, profile string, ap auth.AuthProfile) (*auth.Token, error) {
	method := ap.Method
	strategy, ok := o.strategy(method)
	if !ok {
		return nil, o.fail(profile, method, &auth.UnsupportedAuthMethodError{Method: method})
	}
	refresher, ok := strategy.(Refresher)
	if !ok {
		return nil, o.fail(profile, method, ErrRefreshNotSupported)
	}
	if o.cache == nil {
		return nil, o.fail(profile, method, ErrNoRefreshableToken)
	}

	cached := o.cache.LoadRefreshable(profile, method)
	if cached == nil || cached.Username != ap.Username {
		return nil, o.fail(profile, method, ErrNoRefreshableToken)
	}

	v, err, _ := o.group.Do(fmt.Sprintf("%s/%s/refresh", profile, method), func() (interface{}, error) {
		o.transition(profile, method, StateRefreshing, nil)
		tok, err := refresher.Refresh(ctx, ap, cached)
		if err != nil {
			if clearErr := o.cache.Clear(profile, method); clearErr != nil {
				logging.Warn("Orchestrator", "Could not evict cached token for profile %s: %v", profile, clearErr)
			}
			return nil, o.fail(profile, method, err)
		}
		return o.succeed(profile, method, tok, "refresh"), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*auth.Token).Clone(), nil
}

// Logout removes cached tokens of profile. An empty method removes the
// tokens of every method.
func (o *Orchestrator) Logout(profile string, method auth.AuthMethod) error {
	if o.cache == nil {
		return nil
	}
	methods := []auth.AuthMethod{method}
	if method == "" {
		methods = auth.AllMethods
	}
	for _, m := range methods {
		if err := o.cache.Clear(profile, m); err != nil {
			return err
		}
		o.transition(profile, m, StateIdle, nil)
	}
	o.audit("logout", "success", profile, method, "")
	return nil
}

// LogoutAll removes every cached token.
func (o *Orchestrator) LogoutAll() (int, error) {
	if o.cache == nil {
		return 0, nil
	}
	return o.cache.ClearAll()
}

// Status lists the cached tokens.
func (o *Orchestrator) Status() ([]auth.TokenStatus, error) {
	if o.cache == nil {
		return nil, nil
	}
	return o.cache.List()
}

func (o *Orchestrator) succeed(profile string, method auth.AuthMethod, tok *auth.Token, via string) *auth.Token {
	if o.cache != nil {
		if err := o.cache.Save(profile, method, tok); err != nil {
			logging.Warn("Orchestrator", "Token for profile %s could not be cached: %v", profile, err)
		}
	}
	o.transition(profile, method, StateAuthenticated, nil)
	o.audit("authenticate", "success", profile, method, via)
	return tok
}

func (o *Orchestrator) fail(profile string, method auth.AuthMethod, err error) error {
	wrapped := &auth.AuthenticationFailedError{Profile: profile, Method: method, Err: err}
	o.transition(profile, method, StateFailed, wrapped)
	o.audit("authenticate", "failure", profile, method, err.Error())
	return wrapped
}

func (o *Orchestrator) audit(action, outcome, profile string, method auth.AuthMethod, detail string) {
	logging.Audit(logging.AuditEvent{
		Action:  action,
		Outcome: outcome,
		Profile: profile,
		Method:  string(method),
		Detail:  detail,
	})
}
