package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry owns every collector exported by the process.
type Registry struct {
	config   Config
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	workflowExecutionsTotal   *prometheus.CounterVec
	workflowExecutionDuration *prometheus.HistogramVec
	workflowActiveCount       *prometheus.GaugeVec
	workflowStageDuration     *prometheus.HistogramVec
	workflowStepsTotal        *prometheus.CounterVec
	classificationsTotal      *prometheus.CounterVec

	integrationCallsTotal   *prometheus.CounterVec
	integrationCallDuration *prometheus.HistogramVec
	integrationCircuitState *prometheus.GaugeVec
	integrationRetryCount   *prometheus.CounterVec

	storeOperationsTotal   *prometheus.CounterVec
	storeOperationDuration *prometheus.HistogramVec

	cacheOperationsTotal *prometheus.CounterVec
}

var (
	globalRegistry *Registry
	globalMu       sync.Mutex
)

// NewRegistry creates a registry with all collectors registered.
func NewRegistry(config Config) *Registry {
	if config.Namespace == "" {
		config.Namespace = "hivemind"
	}
	if config.HistogramBuckets.HTTPDuration == nil {
		config.HistogramBuckets = DefaultHistogramBuckets()
	}

	r := &Registry{config: config, registry: prometheus.NewRegistry()}
	ns := config.Namespace
	b := config.HistogramBuckets

	r.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "http", Name: "requests_total",
		Help: "Total number of HTTP requests processed",
	}, []string{"method", "path", "status_code"})
	r.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "http", Name: "request_duration_seconds",
		Help: "HTTP request duration in seconds", Buckets: b.HTTPDuration,
	}, []string{"method", "path"})

	r.workflowExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "workflow", Name: "executions_total",
		Help: "Total number of workflow executions by outcome",
	}, []string{"workflow_name", "status"})
	r.workflowExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "workflow", Name: "execution_duration_seconds",
		Help: "Workflow execution duration in seconds", Buckets: b.WorkflowDuration,
	}, []string{"workflow_name"})
	r.workflowActiveCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "workflow", Name: "active_count",
		Help: "Number of workflows currently executing",
	}, []string{"workflow_name"})
	r.workflowStageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "workflow", Name: "stage_duration_seconds",
		Help: "Duration of orchestrator stages in seconds", Buckets: b.StageDuration,
	}, []string{"stage"})
	r.workflowStepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "workflow", Name: "steps_total",
		Help: "Total number of journal steps recorded",
	}, []string{"step_name"})
	r.classificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "workflow", Name: "classifications_total",
		Help: "Classifier decisions by classifier and outcome",
	}, []string{"classifier", "outcome"})

	r.integrationCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "integration", Name: "calls_total",
		Help: "Total number of external service calls",
	}, []string{"service", "endpoint", "status"})
	r.integrationCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "integration", Name: "call_duration_seconds",
		Help: "External call duration in seconds", Buckets: b.IntegrationDuration,
	}, []string{"service", "endpoint"})
	r.integrationCircuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "integration", Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"service"})
	r.integrationRetryCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "integration", Name: "retries_total",
		Help: "Total number of retried external calls",
	}, []string{"service", "endpoint"})

	r.storeOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "store", Name: "operations_total",
		Help: "Workflow store operations by outcome",
	}, []string{"operation", "status"})
	r.storeOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "store", Name: "operation_duration_seconds",
		Help: "Workflow store operation duration in seconds", Buckets: b.StoreDuration,
	}, []string{"operation"})

	r.cacheOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "cache", Name: "operations_total",
		Help: "Chat memory cache operations by result",
	}, []string{"operation", "result"})

	r.registry.MustRegister(
		r.httpRequestsTotal, r.httpRequestDuration,
		r.workflowExecutionsTotal, r.workflowExecutionDuration, r.workflowActiveCount,
		r.workflowStageDuration, r.workflowStepsTotal, r.classificationsTotal,
		r.integrationCallsTotal, r.integrationCallDuration, r.integrationCircuitState, r.integrationRetryCount,
		r.storeOperationsTotal, r.storeOperationDuration,
		r.cacheOperationsTotal,
	)
	if config.EnableProcessMetrics {
		r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if config.EnableRuntimeMetrics {
		r.registry.MustRegister(collectors.NewGoCollector())
	}
	return r
}

// Global returns the process-wide registry, creating it with defaults.
func Global() *Registry {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalRegistry == nil {
		globalRegistry = NewRegistry(DefaultConfig())
	}
	return globalRegistry
}

// SetGlobal replaces the process-wide registry.
func SetGlobal(r *Registry) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRegistry = r
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}
