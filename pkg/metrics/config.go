// Package metrics provides Prometheus metrics for the hivemind services.
package metrics

// Config holds configuration for the metrics module.
type Config struct {
	// Namespace is the prefix for all metrics (default: "hivemind")
	Namespace string `mapstructure:"namespace"`

	// EnableProcessMetrics enables Go process metrics (CPU, memory, goroutines)
	EnableProcessMetrics bool `mapstructure:"enable_process_metrics"`

	// EnableRuntimeMetrics enables Go runtime metrics
	EnableRuntimeMetrics bool `mapstructure:"enable_runtime_metrics"`

	HistogramBuckets HistogramBucketsConfig `mapstructure:"-"`
}

// HistogramBucketsConfig holds custom bucket configurations for different metric types.
type HistogramBucketsConfig struct {
	HTTPDuration        []float64
	WorkflowDuration    []float64
	StageDuration       []float64
	IntegrationDuration []float64
	StoreDuration       []float64
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:            "hivemind",
		EnableProcessMetrics: true,
		EnableRuntimeMetrics: true,
		HistogramBuckets:     DefaultHistogramBuckets(),
	}
}

// DefaultHistogramBuckets returns the default histogram bucket configurations.
func DefaultHistogramBuckets() HistogramBucketsConfig {
	return HistogramBucketsConfig{
		HTTPDuration:        []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		WorkflowDuration:    []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		StageDuration:       []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		IntegrationDuration: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		StoreDuration:       []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
	}
}
