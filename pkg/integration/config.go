// Package integration provides resilience primitives for calls to external
// model and retrieval services.
package integration

import (
	"fmt"
	"time"
)

// Config configures a client for one external service.
type Config struct {
	ServiceName string            `mapstructure:"service_name"`
	BaseURL     string            `mapstructure:"base_url"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Headers     map[string]string `mapstructure:"headers"`
	BearerToken string            `mapstructure:"bearer_token"`
	UserAgent   string            `mapstructure:"user_agent"`

	Retry          RetryConfig          `mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		UserAgent:      "hivemind/1.0",
		Retry:          DefaultRetryConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return &ConfigError{Field: "ServiceName", Message: "service name is required"}
	}
	if c.BaseURL == "" {
		return &ConfigError{Field: "BaseURL", Message: "base URL is required"}
	}
	if c.Timeout <= 0 {
		return &ConfigError{Field: "Timeout", Message: "timeout must be positive"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}
