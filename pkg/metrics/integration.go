package metrics

import (
	"time"
)

// IntegrationMetrics records calls to external services.
type IntegrationMetrics struct {
	registry *Registry
}

// Integration returns the integration metrics facade.
func (r *Registry) Integration() *IntegrationMetrics {
	return &IntegrationMetrics{registry: r}
}

// CircuitState mirrors the breaker states exported as a gauge.
type CircuitState int

const (
	CircuitClosed   CircuitState = 0
	CircuitHalfOpen CircuitState = 1
	CircuitOpen     CircuitState = 2
)

// RecordCall records one external call.
func (m *IntegrationMetrics) RecordCall(service, endpoint string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.registry.integrationCallsTotal.WithLabelValues(service, endpoint, status).Inc()
	m.registry.integrationCallDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
}

// RecordRetry counts a retried call.
func (m *IntegrationMetrics) RecordRetry(service, endpoint string) {
	m.registry.integrationRetryCount.WithLabelValues(service, endpoint).Inc()
}

// SetCircuitState exports the breaker state for service.
func (m *IntegrationMetrics) SetCircuitState(service string, state CircuitState) {
	m.registry.integrationCircuitState.WithLabelValues(service).Set(float64(state))
}

// CallTimer times one external call.
type CallTimer struct {
	metrics  *IntegrationMetrics
	service  string
	endpoint string
	start    time.Time
}

// NewCallTimer starts timing a call.
func (m *IntegrationMetrics) NewCallTimer(service, endpoint string) *CallTimer {
	return &CallTimer{metrics: m, service: service, endpoint: endpoint, start: time.Now()}
}

// Done records the call outcome.
func (t *CallTimer) Done(err error) {
	t.metrics.RecordCall(t.service, t.endpoint, err, time.Since(t.start))
}

// RecordCacheOperation counts a cache operation: hit, miss or error.
func (r *Registry) RecordCacheOperation(operation, result string) {
	r.cacheOperationsTotal.WithLabelValues(operation, result).Inc()
}
