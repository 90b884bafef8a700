package auth

import (
	"errors"
	"fmt"
)

// EndpointResolutionError is returned when no identity URL can be derived
// for a user.
type EndpointResolutionError struct {
	Username string
	Reason   string
	Err      error
}

func (e *EndpointResolutionError) Error() string {
	msg := fmt.Sprintf("cannot resolve identity endpoint for %q: %s", e.Username, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EndpointResolutionError) Unwrap() error { return e.Err }

// NoChallengeAvailableError is returned when StartAuthentication offers no
// mechanism to answer.
type NoChallengeAvailableError struct {
	Username string
}

func (e *NoChallengeAvailableError) Error() string {
	return fmt.Sprintf("identity provider offered no authentication mechanism for %q", e.Username)
}

// InteractiveInputRequiredError is returned when a mechanism needs a user
// answer but the caller is not interactive and no secret was provided.
type InteractiveInputRequiredError struct {
	Mechanism string
}

func (e *InteractiveInputRequiredError) Error() string {
	return fmt.Sprintf("mechanism %s requires interactive input", e.Mechanism)
}

// AuthenticationRejectedError is returned when the identity provider refuses
// the answers given.
type AuthenticationRejectedError struct {
	Summary string
	Message string
	// Err is the transport or decoding failure behind the rejection, if any.
	Err error
}

func (e *AuthenticationRejectedError) Error() string {
	switch {
	case e.Message != "" && e.Summary != "":
		return fmt.Sprintf("authentication rejected (%s): %s", e.Summary, e.Message)
	case e.Message != "":
		return "authentication rejected: " + e.Message
	case e.Summary != "" && e.Err != nil:
		return fmt.Sprintf("authentication rejected (%s): %v", e.Summary, e.Err)
	case e.Summary != "":
		return fmt.Sprintf("authentication rejected (%s)", e.Summary)
	case e.Err != nil:
		return fmt.Sprintf("authentication rejected: %v", e.Err)
	default:
		return "authentication rejected"
	}
}

func (e *AuthenticationRejectedError) Unwrap() error { return e.Err }

// ServiceTokenRejectedError is returned when the OAuth token endpoint does
// not issue an access token for a service user.
type ServiceTokenRejectedError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *ServiceTokenRejectedError) Error() string {
	msg := "service user token request rejected"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ServiceTokenRejectedError) Unwrap() error { return e.Err }

// AuthorizeRedirectMissingError is returned when the authorize call does
// not redirect with an id_token fragment.
type AuthorizeRedirectMissingError struct {
	StatusCode int
	Location   string
	Err        error
}

func (e *AuthorizeRedirectMissingError) Error() string {
	if e.Err != nil {
		return "authorize request failed: " + e.Err.Error()
	}
	if e.Location == "" {
		return fmt.Sprintf("authorize endpoint returned status %d without a redirect", e.StatusCode)
	}
	return fmt.Sprintf("authorize redirect (status %d) carries no id_token", e.StatusCode)
}

func (e *AuthorizeRedirectMissingError) Unwrap() error { return e.Err }

// UnsupportedAuthMethodError is returned when no strategy is registered for
// a method.
type UnsupportedAuthMethodError struct {
	Method AuthMethod
}

func (e *UnsupportedAuthMethodError) Error() string {
	return fmt.Sprintf("unsupported auth method %q", string(e.Method))
}

// AuthenticationFailedError is the single error surfaced by the
// orchestrator. The flow specific error is kept as the cause.
type AuthenticationFailedError struct {
	Profile string
	Method  AuthMethod
	Err     error
}

func (e *AuthenticationFailedError) Error() string {
	return fmt.Sprintf("authentication failed for profile %q (%s): %v", e.Profile, e.Method, e.Err)
}

func (e *AuthenticationFailedError) Unwrap() error { return e.Err }

// Is matches any AuthenticationFailedError so callers can use errors.Is
// with an empty target.
func (e *AuthenticationFailedError) Is(target error) bool {
	_, ok := target.(*AuthenticationFailedError)
	return ok
}

// ValidationError reports an invalid AuthProfile field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NeedsInteraction reports whether err was caused by a missing interactive
// answer. The CLI maps it to the "auth required" exit code.
func NeedsInteraction(err error) bool {
	var target *InteractiveInputRequiredError
	return errors.As(err, &target)
}
