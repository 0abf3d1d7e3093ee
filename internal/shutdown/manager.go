// Package shutdown releases process resources in priority order.
package shutdown

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Standard priorities for shutdown hooks (higher = earlier execution).
const (
	// PriorityWorker stops Temporal polling and the HTTP listener first.
	PriorityWorker = 90

	// PriorityQueue closes the response queue client.
	PriorityQueue = 80

	// PriorityStore closes the workflow store.
	PriorityStore = 70

	// PriorityCache closes chat memory and Redis.
	PriorityCache = 60

	// PriorityClient closes shared clients such as Temporal.
	PriorityClient = 50

	// PriorityTelemetry flushes spans after everything else has stopped.
	PriorityTelemetry = 10
)

// HookFunc performs shutdown logic. ctx is canceled when the hook's timeout
// expires.
type HookFunc func(ctx context.Context) error

// Hook is a named shutdown step.
type Hook struct {
	Name     string
	Priority int
	Fn       HookFunc
}

// TimeoutError is returned when a hook does not finish in time.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("shutdown operation %q timed out after %v", e.Operation, e.Timeout)
}

// PanicError is returned when a hook panics.
type PanicError struct {
	Operation string
	Value     any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("shutdown operation %q panicked: %v", e.Operation, e.Value)
}

// Manager runs registered hooks once, highest priority first. Hooks that
// share a priority run concurrently.
type Manager struct {
	config Config
	logger *slog.Logger

	mu    sync.Mutex
	hooks []Hook
	once  sync.Once
	err   error
}

// NewManager creates a shutdown manager.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config: cfg.withDefaults(),
		logger: logger.With("component", "shutdown"),
	}
}

// Register adds a hook. Registering after Shutdown has no effect.
func (m *Manager) Register(name string, priority int, fn HookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, Hook{Name: name, Priority: priority, Fn: fn})
}

// HookCount returns the number of registered hooks.
func (m *Manager) HookCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hooks)
}

// Shutdown runs every hook and returns their joined errors. Only the first
// call does any work; later calls return the same result.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.once.Do(func() {
		m.mu.Lock()
		hooks := slices.Clone(m.hooks)
		m.hooks = nil
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(ctx, m.config.OverallTimeout)
		defer cancel()

		slices.SortStableFunc(hooks, func(a, b Hook) int { return cmp.Compare(b.Priority, a.Priority) })

		var errs []error
		groups := groupByPriority(hooks)
		for i, group := range groups {
			errs = append(errs, m.runGroup(ctx, group)...)
			if ctx.Err() != nil && i < len(groups)-1 {
				m.logger.Warn("shutdown timeout exceeded, remaining hooks skipped",
					"remaining_groups", len(groups)-1-i)
				errs = append(errs, fmt.Errorf("overall shutdown timeout exceeded: %w", ctx.Err()))
				break
			}
		}
		m.err = errors.Join(errs...)
		m.logger.Debug("shutdown complete", "hooks", len(hooks), "failed", len(errs))
	})
	return m.err
}

func (m *Manager) runGroup(ctx context.Context, group []Hook) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, h := range group {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.runHook(ctx, h); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("hook %s: %w", h.Name, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}

func (m *Manager) runHook(ctx context.Context, h Hook) error {
	start := time.Now()
	err := runWithTimeout(ctx, m.config.PerHookTimeout, h.Name, h.Fn)
	elapsed := time.Since(start)

	if elapsed > m.config.SlowHookThreshold {
		m.logger.Warn("slow shutdown hook",
			"name", h.Name,
			"duration", elapsed,
			"threshold", m.config.SlowHookThreshold)
	}
	if err != nil {
		m.logger.Error("shutdown hook failed", "name", h.Name, "error", err, "duration", elapsed)
	}
	return err
}

// runWithTimeout runs fn, converting a panic or an expired deadline into an
// error.
func runWithTimeout(ctx context.Context, timeout time.Duration, name string, fn HookFunc) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Operation: name, Value: r}
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &TimeoutError{Operation: name, Timeout: timeout}
		}
		return ctx.Err()
	}
}

func groupByPriority(hooks []Hook) [][]Hook {
	var groups [][]Hook
	for i, h := range hooks {
		if i == 0 || h.Priority != hooks[i-1].Priority {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], h)
	}
	return groups
}
