// Package health reports whether the worker and audit API can reach the
// stores and services they depend on.
package health

import (
	"context"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Severity represents the severity level of a health check.
type Severity string

const (
	// SeverityCritical checks decide readiness.
	SeverityCritical Severity = "critical"
	// SeverityWarning checks can only degrade the overall status.
	SeverityWarning Severity = "warning"
)

// Response represents a health check response.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult represents the result of an individual health check.
type CheckResult struct {
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// Checker is the interface that health checks must implement.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
	Severity() Severity
}
