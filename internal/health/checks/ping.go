// Package checks provides health checkers for hivemind's dependencies.
package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/bargom/hivemind/internal/health"
)

// Pinger is anything that can verify its connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// PingChecker reports a dependency healthy when its Ping succeeds.
type PingChecker struct {
	name     string
	pinger   Pinger
	timeout  time.Duration
	severity health.Severity
}

// Option is a functional option for PingChecker.
type Option func(*PingChecker)

// WithTimeout sets the ping timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *PingChecker) {
		c.timeout = d
	}
}

// WithSeverity sets the severity level.
func WithSeverity(s health.Severity) Option {
	return func(c *PingChecker) {
		c.severity = s
	}
}

// NewPingChecker creates a critical checker with a 2s timeout.
func NewPingChecker(name string, p Pinger, opts ...Option) *PingChecker {
	c := &PingChecker{
		name:     name,
		pinger:   p,
		timeout:  2 * time.Second,
		severity: health.SeverityCritical,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the name of this health check.
func (c *PingChecker) Name() string {
	return c.name
}

// Severity returns the severity level of this check.
func (c *PingChecker) Severity() health.Severity {
	return c.severity
}

// Check pings the dependency.
func (c *PingChecker) Check(ctx context.Context) health.CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.pinger.Ping(ctx); err != nil {
		return health.CheckResult{
			Status:  health.StatusUnhealthy,
			Message: fmt.Sprintf("%s ping failed: %v", c.name, err),
		}
	}
	return health.CheckResult{Status: health.StatusHealthy}
}
