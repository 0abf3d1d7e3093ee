// Package temporal dials the Temporal frontend.
package temporal

import (
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
)

// ClientConfig holds configuration for the Temporal client.
type ClientConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	Identity  string `mapstructure:"identity"`
}

// DefaultClientConfig returns a default Temporal client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HostPort:  "localhost:7233",
		Namespace: "default",
		Identity:  "hivemind",
	}
}

// Validate checks the configuration.
func (c ClientConfig) Validate() error {
	if c.HostPort == "" {
		return fmt.Errorf("temporal: host_port is required")
	}
	if c.Namespace == "" {
		return fmt.Errorf("temporal: namespace is required")
	}
	return nil
}

// NewClient dials Temporal, routing SDK logs through logger.
func NewClient(cfg ClientConfig, logger *slog.Logger) (client.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Identity:  cfg.Identity,
		Logger:    tlog.NewStructuredLogger(logger.With("component", "temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Temporal client: %w", err)
	}
	return c, nil
}
