// Package tokencache stores issued tokens on disk so later runs can reuse
// them without contacting the identity provider.
//
// Each (profile, method) pair maps to one JSON file named after a hash of
// the pair. Token and refresh token values are obfuscated at rest and
// session cookies are base64 encoded. Unreadable files are treated as cache
// misses, never as errors.
package tokencache
