package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30*time.Second, cfg.OverallTimeout)
	assert.Equal(t, 10*time.Second, cfg.PerHookTimeout)
	assert.Equal(t, 5*time.Second, cfg.SlowHookThreshold)
	assert.Equal(t, cfg, Config{OverallTimeout: -1}.withDefaults())
}

func TestShutdownOrder(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) HookFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	m.Register("temporal", PriorityClient, record("temporal"))
	m.Register("store", PriorityStore, record("store"))
	m.Register("worker", PriorityWorker, record("worker"))
	m.Register("redis", PriorityCache, record("redis"))
	require.Equal(t, 4, m.HookCount())

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, []string{"worker", "store", "redis", "temporal"}, order)
}

func TestShutdownRunsOnce(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	var calls atomic.Int32
	m.Register("once", PriorityStore, func(context.Context) error {
		calls.Add(1)
		return errors.New("close failed")
	})

	err1 := m.Shutdown(context.Background())
	err2 := m.Shutdown(context.Background())

	require.Error(t, err1)
	assert.Equal(t, err1, err2)
	assert.Contains(t, err1.Error(), "hook once: close failed")
	assert.Equal(t, int32(1), calls.Load())
}

func TestShutdownCollectsErrors(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	var ran atomic.Bool
	m.Register("a", PriorityStore, func(context.Context) error { return errors.New("a failed") })
	m.Register("b", PriorityStore, func(context.Context) error { return errors.New("b failed") })
	m.Register("c", PriorityClient, func(context.Context) error {
		ran.Store(true)
		return nil
	})

	err := m.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "b failed")
	assert.True(t, ran.Load(), "later hooks still run after failures")
}

func TestHookTimeout(t *testing.T) {
	m := NewManager(Config{PerHookTimeout: 20 * time.Millisecond}, nil)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	m.Register("stuck", PriorityStore, func(ctx context.Context) error {
		<-release
		return nil
	})

	err := m.Shutdown(context.Background())
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "stuck", te.Operation)
}

func TestHookPanic(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	m.Register("boom", PriorityStore, func(context.Context) error { panic("kaboom") })

	err := m.Shutdown(context.Background())
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
}

func TestOverallTimeoutSkipsRemainingGroups(t *testing.T) {
	m := NewManager(Config{OverallTimeout: 20 * time.Millisecond, PerHookTimeout: time.Second}, nil)
	var ran atomic.Bool
	m.Register("slow", PriorityWorker, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	m.Register("late", PriorityClient, func(context.Context) error {
		ran.Store(true)
		return nil
	})

	err := m.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overall shutdown timeout exceeded")
	assert.False(t, ran.Load())
}
