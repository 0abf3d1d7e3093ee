package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockChecker struct {
	name      string
	severity  Severity
	result    CheckResult
	delay     time.Duration
	callCount int64
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Severity() Severity { return m.severity }

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	atomic.AddInt64(&m.callCount, 1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return CheckResult{Status: StatusUnhealthy, Message: "timeout"}
		}
	}
	return m.result
}

func healthy(name string, sev Severity) *mockChecker {
	return &mockChecker{name: name, severity: sev, result: CheckResult{Status: StatusHealthy}}
}

func failing(name string, sev Severity) *mockChecker {
	return &mockChecker{name: name, severity: sev, result: CheckResult{Status: StatusUnhealthy, Message: "down"}}
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry("1.0.0")

	assert.Equal(t, "1.0.0", r.Version())
	assert.Empty(t, r.Checkers())
	assert.WithinDuration(t, time.Now(), r.StartTime(), time.Second)
}

func TestRegistryLivenessRunsNoChecks(t *testing.T) {
	r := NewRegistry("1.0.0")
	c := failing("store", SeverityCritical)
	r.Register(c)

	resp := r.Liveness(context.Background())
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Empty(t, resp.Checks)
	assert.Zero(t, atomic.LoadInt64(&c.callCount))
}

func TestRegistryHealth(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{"no checks", nil, StatusHealthy},
		{"all healthy", []Checker{healthy("store", SeverityCritical), healthy("redis", SeverityWarning)}, StatusHealthy},
		{"warning failure degrades", []Checker{healthy("store", SeverityCritical), failing("redis", SeverityWarning)}, StatusDegraded},
		{"critical failure", []Checker{failing("store", SeverityCritical), failing("redis", SeverityWarning)}, StatusUnhealthy},
		{"degraded critical", []Checker{&mockChecker{name: "store", severity: SeverityCritical, result: CheckResult{Status: StatusDegraded}}}, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry("1.0.0")
			for _, c := range tt.checkers {
				r.Register(c)
			}
			resp := r.Health(context.Background())
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checkers))
		})
	}
}

func TestRegistryReadinessSkipsWarnings(t *testing.T) {
	r := NewRegistry("1.0.0")
	warn := failing("redis", SeverityWarning)
	r.Register(healthy("store", SeverityCritical))
	r.Register(warn)

	resp := r.Readiness(context.Background())
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Contains(t, resp.Checks, "store")
	assert.NotContains(t, resp.Checks, "redis")
	assert.Zero(t, atomic.LoadInt64(&warn.callCount))
}

func TestRegistryCheckTimeout(t *testing.T) {
	r := NewRegistry("1.0.0", WithCheckTimeout(20*time.Millisecond))
	r.Register(&mockChecker{name: "slow", severity: SeverityCritical, delay: time.Second, result: CheckResult{Status: StatusHealthy}})

	start := time.Now()
	resp := r.Health(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, "timeout", resp.Checks["slow"].Message)
}
