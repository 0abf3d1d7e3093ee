// Package logging provides structured logging that carries workflow and
// request identifiers from the context into every record.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds the logging configuration.
type Config struct {
	// Level sets the minimum log level: debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format specifies the output format: json or text
	Format string `mapstructure:"format"`

	// Output specifies the output destination: stdout, stderr, or a file path
	Output string `mapstructure:"output"`

	AddSource bool `mapstructure:"add_source"`
}

// DefaultConfig returns sensible defaults for logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
}

// ConfigFromEnv creates a configuration from LOG_* environment variables.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = strings.ToLower(level)
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = strings.ToLower(format)
	}
	if output := os.Getenv("LOG_OUTPUT"); output != "" {
		cfg.Output = output
	}
	if os.Getenv("LOG_ADD_SOURCE") == "true" {
		cfg.AddSource = true
	}
	return cfg
}

// ParseLevel converts a string level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetOutput returns the io.Writer for the configured output.
func (c Config) GetOutput() io.Writer {
	switch c.Output {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return os.Stdout
		}
		return f
	}
}
