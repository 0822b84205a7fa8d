package httpapi

import (
	"strings"
	"time"

	"github.com/goliatone/go-errors"
)

// Config holds the HTTP listener settings.
type Config struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr is required")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		problems = append(problems, "timeouts must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		problems = append(problems, "shutdown_timeout must be positive")
	}
	if len(problems) > 0 {
		return errors.New("invalid server config: "+strings.Join(problems, "; "), errors.CategoryValidation).
			WithTextCode("INVALID_SERVER_CONFIG")
	}
	return nil
}
