package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"missing service", func(c *Config) { c.ServiceName = "" }, "ServiceName"},
		{"missing base url", func(c *Config) { c.BaseURL = "" }, "BaseURL"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "Timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ServiceName = "llm"
			cfg.BaseURL = "http://localhost"
			tt.mut(&cfg)

			err := cfg.Validate()
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	cfg := DefaultConfig()
	cfg.ServiceName = "llm"
	cfg.BaseURL = "http://localhost"
	assert.NoError(t, cfg.Validate())
}

func TestRetryer(t *testing.T) {
	t.Run("retries transient errors until success", func(t *testing.T) {
		var calls int32
		r := NewRetryer(fastRetry(3))
		got, err := DoWithResult(context.Background(), r, func(context.Context) (string, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return "", &HTTPError{StatusCode: http.StatusServiceUnavailable}
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, int32(3), calls)
	})

	t.Run("stops at max attempts", func(t *testing.T) {
		var calls int32
		r := NewRetryer(fastRetry(2))
		err := r.Do(context.Background(), func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return &HTTPError{StatusCode: http.StatusBadGateway}
		})
		require.Error(t, err)
		assert.Equal(t, int32(2), calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		var calls int32
		r := NewRetryer(fastRetry(5))
		err := r.Do(context.Background(), func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return &HTTPError{StatusCode: http.StatusBadRequest}
		})
		require.Error(t, err)
		assert.Equal(t, int32(1), calls)
	})

	t.Run("honors RetryIf", func(t *testing.T) {
		var calls int32
		cfg := fastRetry(4)
		cfg.RetryIf = func(error) bool { return true }
		err := NewRetryer(cfg).Do(context.Background(), func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return errors.New("boom")
		})
		require.Error(t, err)
		assert.Equal(t, int32(4), calls)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var calls int32
		err := NewRetryer(fastRetry(10)).Do(ctx, func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			cancel()
			return &HTTPError{StatusCode: http.StatusServiceUnavailable}
		})
		require.Error(t, err)
		assert.Equal(t, int32(1), calls)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(ErrCircuitOpen))
	assert.False(t, IsRetryable(fmt.Errorf("llm: %w", ErrCircuitOpen)))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(&HTTPError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &HTTPError{StatusCode: 500})))
	assert.False(t, IsRetryable(&HTTPError{StatusCode: http.StatusNotFound}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestHTTPErrorMessage(t *testing.T) {
	assert.Equal(t, "HTTP 502: Bad Gateway", (&HTTPError{StatusCode: 502, Message: "Bad Gateway"}).Error())
	assert.Equal(t, "HTTP 500", (&HTTPError{StatusCode: 500}).Error())
}

func TestCircuitBreaker(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test-llm", CircuitBreakerConfig{
		FailureThreshold: 2,
		Timeout:          time.Minute,
		HalfOpenRequests: 1,
	})
	cb.now = func() time.Time { return now }

	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("test-reset", CircuitBreakerConfig{FailureThreshold: 2})
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
}
