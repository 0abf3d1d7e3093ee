// Package dispatch delivers final answers to the adapter that asked the
// question, through asynq queues named by the route destination.
package dispatch

import (
	"errors"
	"time"
)

// Config holds delivery settings.
type Config struct {
	// MaxRetry is how often the consumer may retry a delivered task.
	MaxRetry int `mapstructure:"max_retry"`
	// Timeout is the consumer's processing timeout per task.
	Timeout time.Duration `mapstructure:"timeout"`
	// Retention keeps completed tasks inspectable.
	Retention time.Duration `mapstructure:"retention"`
	// EnqueueTimeout bounds one enqueue call.
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetry:       3,
		Timeout:        30 * time.Second,
		Retention:      24 * time.Hour,
		EnqueueTimeout: 5 * time.Second,
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.MaxRetry < 0 {
		return errors.New("dispatch: max_retry cannot be negative")
	}
	if c.Timeout < 0 || c.Retention < 0 {
		return errors.New("dispatch: durations cannot be negative")
	}
	if c.EnqueueTimeout <= 0 {
		return errors.New("dispatch: enqueue_timeout must be positive")
	}
	return nil
}
