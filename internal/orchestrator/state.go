package orchestrator

import (
	"time"

	"github.com/giantswarm/ispauth/pkg/auth"
	"github.com/giantswarm/ispauth/pkg/logging"
)

// State is where an Authenticate call is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateCacheCheck
	StateCached
	StateRefreshing
	StateLoggingIn
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCacheCheck:
		return "cache_check"
	case StateCached:
		return "cached"
	case StateRefreshing:
		return "refreshing"
	case StateLoggingIn:
		return "logging_in"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateChangedEvent is published on every transition.
type StateChangedEvent struct {
	Profile   string
	Method    auth.AuthMethod
	OldState  State
	NewState  State
	Error     error
	Timestamp time.Time
}

type stateKey struct {
	profile string
	method  auth.AuthMethod
}

type stateEntry struct {
	state State
	err   error
}

// LastState returns the state the most recent call for (profile, method)
// ended in, and the error if it failed.
func (o *Orchestrator) LastState(profile string, method auth.AuthMethod) (State, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.states[stateKey{profile, method}]
	if !ok {
		return StateIdle, nil
	}
	return e.state, e.err
}

// SubscribeToStateChanges returns a channel receiving every transition.
// Slow subscribers miss events rather than block authentication.
func (o *Orchestrator) SubscribeToStateChanges() <-chan StateChangedEvent {
	ch := make(chan StateChangedEvent, 100)
	o.mu.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.mu.Unlock()
	return ch
}

func (o *Orchestrator) transition(profile string, method auth.AuthMethod, to State, err error) {
	key := stateKey{profile, method}

	o.mu.Lock()
	from := o.states[key].state
	o.states[key] = stateEntry{state: to, err: err}
	subscribers := make([]chan<- StateChangedEvent, len(o.subscribers))
	copy(subscribers, o.subscribers)
	o.mu.Unlock()

	logging.Debug("Orchestrator", "Profile %s (%s): %s -> %s", profile, method, from, to)

	event := StateChangedEvent{
		Profile:   profile,
		Method:    method,
		OldState:  from,
		NewState:  to,
		Error:     err,
		Timestamp: time.Now(),
	}
	for _, sub := range subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}
