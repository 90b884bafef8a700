// Package config loads ispauth configuration.
//
// Configuration lives in a single directory, ~/.config/ispauth by default or
// whatever --config-path points at. The directory holds:
//   - config.yaml (this package)
//   - profiles.yaml (see internal/profile)
//   - tokens/ (the token cache, see internal/tokencache)
//
// Example config.yaml:
//
//	cache:
//	  enabled: true
//	http:
//	  timeout: 30s
//	  proxy: socks5://127.0.0.1:1080
//	identity:
//	  pollInterval: 2s
//	  stickySessionRefresh: true
//	log:
//	  level: debug
//	  file: ispauth.log
//
// Fields missing from the file keep their defaults.
package config
