package cacheinfra

import "github.com/goliatone/go-errors"

// ErrMiss is returned by a backend when the key is absent or expired.
var ErrMiss = errors.New("cache miss", errors.CategoryNotFound)

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
