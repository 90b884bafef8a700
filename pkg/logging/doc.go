// Package logging is a thin layer over log/slog used by every ispauth package.
//
// Each record carries a subsystem attribute so output from the identity
// flow, the service-user flow, the token cache and the orchestrator can be
// told apart:
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stderr)
//	logging.Info("TokenCache", "Cached token for profile %s", name)
//	logging.Error("Identity", err, "StartAuthentication failed")
//
// Credential lifecycle events (store, clear, refresh) go through Audit and
// are prefixed with [AUDIT] so they can be filtered by log collectors.
//
// Token values must never be formatted into a message. Values wrapped in
// auth.Secret print as [REDACTED] if passed by mistake.
package logging
