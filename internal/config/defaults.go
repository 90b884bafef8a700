package config

import "time"

const (
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultPollInterval = 2 * time.Second
	DefaultLogMaxSizeMB = 10
	DefaultLogBackups   = 3

	// tokensSubdir is where the token cache lives below the config dir.
	tokensSubdir = "tokens"
)

// GetDefaultConfig returns the configuration used when config.yaml is
// missing or leaves fields unset.
func GetDefaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			Enabled: true,
		},
		HTTP: HTTPConfig{
			Timeout: DefaultHTTPTimeout,
		},
		Identity: IdentityConfig{
			PollInterval:         DefaultPollInterval,
			StickySessionRefresh: true,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogBackups,
		},
	}
}
