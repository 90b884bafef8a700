package auth

import "time"

// TokenStatus describes a cached token without exposing any secret value.
// It is what `ispauth status` renders.
type TokenStatus struct {
	Profile         string     `json:"profile"`
	Method          AuthMethod `json:"method"`
	Username        string     `json:"username"`
	Endpoint        string     `json:"endpoint,omitempty"`
	ExpiresAt       time.Time  `json:"expiresAt,omitempty"`
	Expired         bool       `json:"expired"`
	HasRefreshToken bool       `json:"hasRefreshToken"`
	Env             string     `json:"env,omitempty"`
	CachedAt        time.Time  `json:"cachedAt,omitempty"`
}
