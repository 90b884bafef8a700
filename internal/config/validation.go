package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/giantswarm/ispauth/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	messages := make([]string, 0, len(ve))
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value interface{}) {
	*ve = append(*ve, ValidationError{Field: field, Value: value, Message: message})
}

// Validate checks durations, the proxy URL and the log settings.
func (c Config) Validate() error {
	var errs ValidationErrors

	if c.HTTP.Timeout < 0 {
		errs.Add("http.timeout", "must not be negative", c.HTTP.Timeout)
	}
	if c.Identity.PollInterval <= 0 {
		errs.Add("identity.pollInterval", "must be positive", c.Identity.PollInterval)
	}
	if c.HTTP.Proxy != "" {
		u, err := url.Parse(c.HTTP.Proxy)
		if err != nil || u.Host == "" {
			errs.Add("http.proxy", "must be an absolute URL", c.HTTP.Proxy)
		} else {
			switch u.Scheme {
			case "http", "https", "socks5", "socks5h":
			default:
				errs.Add("http.proxy", "scheme must be http, https or socks5", c.HTTP.Proxy)
			}
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs.Add("log.level", err.Error(), c.Log.Level)
	}
	switch logging.Format(c.Log.Format) {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		errs.Add("log.format", "must be text or json", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
