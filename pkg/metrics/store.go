package metrics

import "time"

// StoreMetrics records workflow store operations.
type StoreMetrics struct {
	registry *Registry
}

// Store returns the store metrics facade.
func (r *Registry) Store() *StoreMetrics {
	return &StoreMetrics{registry: r}
}

// RecordOperation records one store call. status is a short outcome such as
// "success", "not_found", "rejected" or "error".
func (s *StoreMetrics) RecordOperation(operation, status string, duration time.Duration) {
	s.registry.storeOperationsTotal.WithLabelValues(operation, status).Inc()
	s.registry.storeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
