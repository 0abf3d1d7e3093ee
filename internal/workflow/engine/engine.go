package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/bargom/hivemind/internal/workflow/definitions"
)

type workerFactory func(c client.Client, taskQueue string, opts worker.Options) worker.Worker

type namedWorkflow struct {
	fn   any
	name string
}

// Engine owns the Temporal worker for agent queries. The client is shared
// with other components and is not closed by Stop.
type Engine struct {
	client    client.Client
	config    Config
	logger    *slog.Logger
	newWorker workerFactory

	mu         sync.RWMutex
	worker     worker.Worker
	running    bool
	workflows  []namedWorkflow
	activities []any
}

// NewEngine creates an engine bound to an established Temporal client.
func NewEngine(c client.Client, cfg Config, logger *slog.Logger) (*Engine, error) {
	if c == nil {
		return nil, fmt.Errorf("creating engine: temporal client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:    c,
		config:    cfg,
		logger:    logger.With("component", "workflow_engine"),
		newWorker: worker.New,
	}, nil
}

// RegisterWorkflow registers a workflow function under name.
func (e *Engine) RegisterWorkflow(wf any, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows = append(e.workflows, namedWorkflow{fn: wf, name: name})
}

// RegisterActivities registers every exported method of acts as an activity.
func (e *Engine) RegisterActivities(acts any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activities = append(e.activities, acts)
}

// RegisterAgentQuery registers AgentQueryWorkflow and the activities that
// serve it.
func (e *Engine) RegisterAgentQuery(acts any) {
	e.RegisterWorkflow(definitions.AgentQueryWorkflow, definitions.AgentQueryWorkflowName)
	e.RegisterActivities(acts)
}

// Start creates the worker, registers everything, and starts polling.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrEngineAlreadyStarted
	}

	w := e.newWorker(e.client, e.config.TaskQueue, worker.Options{
		MaxConcurrentWorkflowTaskExecutionSize: e.config.MaxConcurrentWorkflows,
		MaxConcurrentActivityExecutionSize:     e.config.MaxConcurrentActivities,
		Identity:                               e.config.WorkerID,
	})
	for _, wf := range e.workflows {
		w.RegisterWorkflowWithOptions(wf.fn, workflow.RegisterOptions{Name: wf.name})
	}
	for _, acts := range e.activities {
		w.RegisterActivityWithOptions(acts, activity.RegisterOptions{})
	}

	if err := w.Start(); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}
	e.worker = w
	e.running = true

	e.logger.InfoContext(ctx, "worker started",
		"task_queue", e.config.TaskQueue,
		"workflows", len(e.workflows),
		"worker_id", e.config.WorkerID)
	return nil
}

// Stop gracefully shuts down the worker.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return ErrEngineNotStarted
	}

	e.worker.Stop()
	e.worker = nil
	e.running = false
	e.logger.Info("worker stopped", "task_queue", e.config.TaskQueue)
	return nil
}

// IsRunning returns true if the worker is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Client returns the underlying Temporal client.
func (e *Engine) Client() client.Client {
	return e.client
}

// StartAgentQuery starts AgentQueryWorkflow on the engine's task queue.
func (e *Engine) StartAgentQuery(ctx context.Context, workflowID string, p definitions.QueryPayload) (client.WorkflowRun, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query payload: %w", err)
	}
	return e.ExecuteWorkflow(ctx, workflowID, definitions.AgentQueryWorkflowName, p)
}

// ExecuteWorkflow starts a new workflow execution.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string, workflow any, input any) (client.WorkflowRun, error) {
	options := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                e.config.TaskQueue,
		WorkflowExecutionTimeout: e.config.DefaultTimeout,
	}

	run, err := e.client.ExecuteWorkflow(ctx, options, workflow, input)
	if err != nil {
		return nil, fmt.Errorf("executing workflow: %w", err)
	}
	return run, nil
}

// AwaitAgentQuery waits for a started agent query and returns its result.
func (e *Engine) AwaitAgentQuery(ctx context.Context, run client.WorkflowRun) (*definitions.QueryResult, error) {
	var result *definitions.QueryResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, ErrWorkflowFailed{WorkflowID: run.GetID(), RunID: run.GetRunID(), Cause: err}
	}
	return result, nil
}

// CancelWorkflow cancels a running workflow execution.
func (e *Engine) CancelWorkflow(ctx context.Context, workflowID, runID string) error {
	if err := e.client.CancelWorkflow(ctx, workflowID, runID); err != nil {
		return fmt.Errorf("canceling workflow: %w", err)
	}
	return nil
}
