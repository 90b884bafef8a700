package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/giantswarm/ispauth/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/ispauth"
	configFileName = "config.yaml"
)

// osUserHomeDir is swapped in tests.
var osUserHomeDir = os.UserHomeDir

// GetDefaultConfigPath returns ~/.config/ispauth.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads config.yaml from configPath on top of the defaults.
// A missing file is not an error. Relative paths are resolved against
// configPath and the cache directory defaults to <configPath>/tokens.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
		}
		logging.Debug("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	config.applyPaths(configPath)

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", configFilePath, err)
	}
	return config, nil
}

func (c *Config) applyPaths(configPath string) {
	if c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(configPath, tokensSubdir)
	} else if !filepath.IsAbs(c.Cache.Dir) {
		c.Cache.Dir = filepath.Join(configPath, c.Cache.Dir)
	}
	if c.Log.File != "" && !filepath.IsAbs(c.Log.File) {
		c.Log.File = filepath.Join(configPath, c.Log.File)
	}
}
