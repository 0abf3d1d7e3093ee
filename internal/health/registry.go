package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultCheckTimeout = 5 * time.Second

// Registry manages health checkers and executes checks.
type Registry struct {
	mu        sync.RWMutex
	checkers  []Checker
	startTime time.Time
	version   string
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithCheckTimeout bounds one round of checks.
func WithCheckTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger used for failing checks.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates a new health check registry.
func NewRegistry(version string, opts ...Option) *Registry {
	r := &Registry{
		startTime: time.Now(),
		version:   version,
		timeout:   defaultCheckTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "health")
	return r
}

// Register adds a health checker to the registry.
func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, checker)
}

// Checkers returns a copy of the registered checkers.
func (r *Registry) Checkers() []Checker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	checkers := make([]Checker, len(r.checkers))
	copy(checkers, r.checkers)
	return checkers
}

// Liveness reports that the process is up. It runs no checks.
func (r *Registry) Liveness(context.Context) Response {
	return Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Version:   r.version,
		Uptime:    time.Since(r.startTime).String(),
	}
}

// Readiness runs the critical checks only.
func (r *Registry) Readiness(ctx context.Context) Response {
	return r.runChecks(ctx, true)
}

// Health runs every registered check.
func (r *Registry) Health(ctx context.Context) Response {
	return r.runChecks(ctx, false)
}

func (r *Registry) runChecks(ctx context.Context, criticalOnly bool) Response {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		checks  = make(map[string]CheckResult)
		overall = StatusHealthy
	)
	for _, c := range r.Checkers() {
		if criticalOnly && c.Severity() != SeverityCritical {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			result := c.Check(ctx)
			result.Duration = time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			checks[c.Name()] = result
			overall = combine(overall, result.Status, c.Severity())
		}()
	}
	wg.Wait()

	for name, res := range checks {
		if res.Status != StatusHealthy {
			r.logger.WarnContext(ctx, "health check not passing",
				"check", name,
				"status", res.Status,
				"message", res.Message)
		}
	}

	return Response{
		Status:    overall,
		Timestamp: time.Now(),
		Version:   r.version,
		Uptime:    time.Since(r.startTime).String(),
		Checks:    checks,
	}
}

// combine folds one check result into the overall status. A failing
// warning check only degrades.
func combine(overall, result Status, sev Severity) Status {
	switch {
	case result == StatusUnhealthy && sev == SeverityCritical:
		return StatusUnhealthy
	case result != StatusHealthy && overall == StatusHealthy:
		return StatusDegraded
	}
	return overall
}

// StartTime returns when the registry was created.
func (r *Registry) StartTime() time.Time {
	return r.startTime
}

// Version returns the version string.
func (r *Registry) Version() string {
	return r.version
}
