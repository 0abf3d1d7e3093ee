package metrics

import (
	"time"
)

// WorkflowMetrics records workflow executions, stages and decisions.
type WorkflowMetrics struct {
	registry *Registry
}

// Workflow returns the workflow metrics facade.
func (r *Registry) Workflow() *WorkflowMetrics {
	return &WorkflowMetrics{registry: r}
}

// WorkflowStatus represents the outcome status of a workflow execution.
type WorkflowStatus string

const (
	WorkflowStatusSuccess   WorkflowStatus = "success"
	WorkflowStatusFailure   WorkflowStatus = "failure"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// RecordExecution records a finished workflow execution.
func (w *WorkflowMetrics) RecordExecution(workflowName string, status WorkflowStatus, duration time.Duration) {
	w.registry.workflowExecutionsTotal.WithLabelValues(workflowName, string(status)).Inc()
	w.registry.workflowExecutionDuration.WithLabelValues(workflowName).Observe(duration.Seconds())
}

// RecordStage records the duration of one orchestrator stage.
func (w *WorkflowMetrics) RecordStage(stage string, duration time.Duration) {
	w.registry.workflowStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordStep counts a journal step.
func (w *WorkflowMetrics) RecordStep(stepName string) {
	w.registry.workflowStepsTotal.WithLabelValues(stepName).Inc()
}

// RecordClassification counts a classifier outcome: true, false or error.
func (w *WorkflowMetrics) RecordClassification(classifier, outcome string) {
	w.registry.classificationsTotal.WithLabelValues(classifier, outcome).Inc()
}

// WorkflowExecutionTimer times one workflow execution.
type WorkflowExecutionTimer struct {
	metrics      *WorkflowMetrics
	workflowName string
	start        time.Time
}

// NewExecutionTimer starts timing an execution and bumps the active gauge.
func (w *WorkflowMetrics) NewExecutionTimer(workflowName string) *WorkflowExecutionTimer {
	w.registry.workflowActiveCount.WithLabelValues(workflowName).Inc()
	return &WorkflowExecutionTimer{metrics: w, workflowName: workflowName, start: time.Now()}
}

// Done records the execution duration and status.
func (t *WorkflowExecutionTimer) Done(status WorkflowStatus) {
	t.metrics.registry.workflowActiveCount.WithLabelValues(t.workflowName).Dec()
	t.metrics.RecordExecution(t.workflowName, status, time.Since(t.start))
}

func (t *WorkflowExecutionTimer) Success()   { t.Done(WorkflowStatusSuccess) }
func (t *WorkflowExecutionTimer) Failure()   { t.Done(WorkflowStatusFailure) }
func (t *WorkflowExecutionTimer) Cancelled() { t.Done(WorkflowStatusCancelled) }
