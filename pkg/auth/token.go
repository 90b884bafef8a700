package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiryMargin is subtracted from a token's lifetime when deciding
// whether it can still be presented. It covers clock skew and latency.
const DefaultExpiryMargin = 30 * time.Second

// Metadata keys written by the flows.
const (
	MetadataEnv       = "env"
	MetadataCookies   = "cookies"
	MetadataAttemptID = "attempt_id"
)

// Token is a bearer credential usable against downstream APIs.
//
// Tokens are replaced wholesale on refresh; callers must not mutate a token
// returned by the orchestrator.
type Token struct {
	Token        Secret
	Username     string
	Endpoint     string
	Type         TokenType
	Method       AuthMethod
	ExpiresAt    time.Time
	RefreshToken Secret
	Metadata     map[string]string
}

// IsExpired reports whether the token is expired or about to be.
func (t *Token) IsExpired() bool {
	return t.IsExpiredWithMargin(DefaultExpiryMargin)
}

// IsExpiredWithMargin reports whether the token expires within margin.
// A token without an expiry never expires.
func (t *Token) IsExpiredWithMargin(margin time.Duration) bool {
	if t == nil {
		return true
	}
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(t.ExpiresAt)
}

// HasRefreshToken reports whether the token can be refreshed.
func (t *Token) HasRefreshToken() bool {
	return t != nil && !t.RefreshToken.IsEmpty()
}

// AuthorizationHeader returns the value for an Authorization header.
func (t *Token) AuthorizationHeader() string {
	return "Bearer " + t.Token.Reveal()
}

// Meta returns a metadata value or "".
func (t *Token) Meta(key string) string {
	if t == nil || t.Metadata == nil {
		return ""
	}
	return t.Metadata[key]
}

// ToOAuth2Token converts the token for use with golang.org/x/oauth2.
func (t *Token) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.Token.Reveal(),
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken.Reveal(),
		Expiry:       t.ExpiresAt,
	}
}

// Clone returns a deep copy.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
