package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/bargom/hivemind/pkg/metrics"
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts including the first one.
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	// Jitter is the fraction of each delay that is randomized.
	Jitter float64 `mapstructure:"jitter"`

	// RetryIf overrides IsRetryable.
	RetryIf func(err error) bool `mapstructure:"-"`
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.25,
	}
}

// Retryer implements retry logic with exponential backoff.
type Retryer struct {
	config      RetryConfig
	logger      *slog.Logger
	serviceName string
	endpoint    string
}

// NewRetryer creates a new retryer with the given configuration.
func NewRetryer(config RetryConfig) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.Jitter < 0 || config.Jitter > 1 {
		config.Jitter = 0.25
	}
	return &Retryer{
		config: config,
		logger: slog.Default().With("component", "retryer"),
	}
}

// WithService returns a retryer labelled for a service and endpoint.
func (r *Retryer) WithService(serviceName, endpoint string) *Retryer {
	return &Retryer{
		config:      r.config,
		logger:      r.logger.With("service", serviceName, "endpoint", endpoint),
		serviceName: serviceName,
		endpoint:    endpoint,
	}
}

// Do executes fn with retry logic.
func (r *Retryer) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := DoWithResult(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoWithResult executes fn with retry logic and returns its result.
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	delay := r.config.BaseDelay

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		if attempt >= r.config.MaxAttempts || !r.isRetryable(err) {
			return zero, err
		}

		wait := r.addJitter(delay)
		r.logger.DebugContext(ctx, "retrying after error",
			"attempt", attempt,
			"delay", wait,
			"error", err)
		if r.serviceName != "" {
			metrics.Global().Integration().RecordRetry(r.serviceName, r.endpoint)
		}

		select {
		case <-ctx.Done():
			return zero, err
		case <-time.After(wait):
		}
		delay = min(time.Duration(float64(delay)*r.config.Multiplier), r.config.MaxDelay)
	}
}

func (r *Retryer) isRetryable(err error) bool {
	if r.config.RetryIf != nil {
		return r.config.RetryIf(err)
	}
	return IsRetryable(err)
}

func (r *Retryer) addJitter(delay time.Duration) time.Duration {
	if r.config.Jitter == 0 {
		return delay
	}
	spread := float64(delay) * r.config.Jitter
	return time.Duration(float64(delay) - spread + rand.Float64()*2*spread)
}

// IsRetryable reports whether err is a transient transport or server failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return IsRetryableStatusCode(httpErr.StatusCode)
	}
	return false
}

// IsRetryableStatusCode checks if an HTTP status code should be retried.
func IsRetryableStatusCode(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}
