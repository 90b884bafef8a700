package config

import "time"

// Config is the top-level configuration read from config.yaml.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	HTTP     HTTPConfig     `yaml:"http"`
	Identity IdentityConfig `yaml:"identity"`
	Log      LogConfig      `yaml:"log"`
}

// CacheConfig controls the on-disk token cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir,omitempty"` // defaults to <config dir>/tokens
}

// HTTPConfig controls the HTTP client shared by both flows.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// Proxy is an http, https or socks5 URL.
	Proxy string `yaml:"proxy,omitempty"`
}

// IdentityConfig tunes the challenge/response flow.
type IdentityConfig struct {
	// PollInterval is the delay between out-of-band (push) poll requests.
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`
	// StickySessionRefresh allows refreshing a token by reusing the session
	// cookies of the original MFA login. When false every expiry leads to a
	// full login.
	StickySessionRefresh bool `yaml:"stickySessionRefresh"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	// File enables rotated file output instead of stderr.
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"maxSizeMB,omitempty"`
	MaxBackups int    `yaml:"maxBackups,omitempty"`
}
