// Package orchestrator is the single entry point for obtaining a token.
//
// Authenticate checks the token cache first, then tries one refresh of an
// expired entry, and finally performs a full login through the strategy
// registered for the profile's auth method:
//
//	identity               challenge/response, refreshable
//	default                challenge/response with default settings, refreshable
//	direct                 challenge/response against a fixed endpoint
//	identity_service_user  client credentials plus authorize redirect
//
// Each call moves through Idle, CacheCheck, then Cached, Refreshing or
// LoggingIn, and ends in Authenticated or Failed. Transitions are logged at
// debug level and published to subscribers.
//
// Errors returned to callers are always *auth.AuthenticationFailedError
// with the flow error as the cause.
package orchestrator
