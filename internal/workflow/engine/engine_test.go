package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/bargom/hivemind/internal/workflow/definitions"
	"github.com/bargom/hivemind/internal/workflow/repository"
)

// fakeWorker records registrations; unused worker.Worker methods panic.
type fakeWorker struct {
	worker.Worker
	workflows  []string
	activities int
	started    bool
	stopped    bool
	startErr   error
}

func (w *fakeWorker) RegisterWorkflowWithOptions(_ any, opts workflow.RegisterOptions) {
	w.workflows = append(w.workflows, opts.Name)
}

func (w *fakeWorker) RegisterActivityWithOptions(any, activity.RegisterOptions) {
	w.activities++
}

func (w *fakeWorker) Start() error {
	w.started = w.startErr == nil
	return w.startErr
}

func (w *fakeWorker) Stop() { w.stopped = true }

func newTestEngine(t *testing.T, c client.Client, w *fakeWorker) *Engine {
	t.Helper()
	eng, err := NewEngine(c, DefaultConfig(), nil)
	require.NoError(t, err)
	var gotQueue string
	eng.newWorker = func(_ client.Client, taskQueue string, _ worker.Options) worker.Worker {
		gotQueue = taskQueue
		return w
	}
	t.Cleanup(func() {
		if w.started {
			assert.Equal(t, "hivemind-agent", gotQueue)
		}
	})
	return eng
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "hivemind-agent", cfg.TaskQueue)
	assert.Equal(t, 100, cfg.MaxConcurrentWorkflows)
	assert.Equal(t, 50, cfg.MaxConcurrentActivities)
	assert.Equal(t, 10*time.Minute, cfg.DefaultTimeout)
	assert.Equal(t, "hivemind-worker", cfg.WorkerID)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "empty task queue", mutate: func(c *Config) { c.TaskQueue = "" }, wantErr: true, errMsg: "TaskQueue"},
		{name: "zero concurrent workflows", mutate: func(c *Config) { c.MaxConcurrentWorkflows = 0 }, wantErr: true, errMsg: "MaxConcurrentWorkflows"},
		{name: "zero concurrent activities", mutate: func(c *Config) { c.MaxConcurrentActivities = 0 }, wantErr: true, errMsg: "MaxConcurrentActivities"},
		{name: "negative timeout", mutate: func(c *Config) { c.DefaultTimeout = -time.Second }, wantErr: true, errMsg: "DefaultTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewEngine(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		eng, err := NewEngine(&mocks.Client{}, DefaultConfig(), nil)
		require.NoError(t, err)
		assert.False(t, eng.IsRunning())
	})

	t.Run("missing client", func(t *testing.T) {
		eng, err := NewEngine(nil, DefaultConfig(), nil)
		require.Error(t, err)
		assert.Nil(t, eng)
	})

	t.Run("invalid config", func(t *testing.T) {
		eng, err := NewEngine(&mocks.Client{}, Config{}, nil)
		require.Error(t, err)
		assert.Nil(t, eng)
	})
}

func TestEngineLifecycle(t *testing.T) {
	w := &fakeWorker{}
	eng := newTestEngine(t, &mocks.Client{}, w)

	assert.ErrorIs(t, eng.Stop(), ErrEngineNotStarted)

	eng.RegisterAgentQuery(struct{}{})
	require.NoError(t, eng.Start(context.Background()))
	assert.True(t, eng.IsRunning())
	assert.Equal(t, []string{definitions.AgentQueryWorkflowName}, w.workflows)
	assert.Equal(t, 1, w.activities)

	assert.ErrorIs(t, eng.Start(context.Background()), ErrEngineAlreadyStarted)

	require.NoError(t, eng.Stop())
	assert.True(t, w.stopped)
	assert.False(t, eng.IsRunning())
}

func TestEngineStartFailure(t *testing.T) {
	w := &fakeWorker{startErr: errors.New("connection refused")}
	eng := newTestEngine(t, &mocks.Client{}, w)

	err := eng.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting worker")
	assert.False(t, eng.IsRunning())
}

func TestStartAgentQuery(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	eng := newTestEngine(t, c, &fakeWorker{})

	p := definitions.QueryPayload{CommunityID: "c1", Query: "What is X?", Route: repository.Route{Source: "api"}}
	c.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.ID == "agent-query-1" && o.TaskQueue == "hivemind-agent" && o.WorkflowExecutionTimeout == 10*time.Minute
	}), definitions.AgentQueryWorkflowName, p).Return(run, nil).Once()

	answer := "X is a thing."
	run.On("Get", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		out := args.Get(1).(**definitions.QueryResult)
		*out = &definitions.QueryResult{WorkflowID: "wf-1", Response: &answer, Path: "direct"}
	}).Return(nil).Once()

	started, err := eng.StartAgentQuery(context.Background(), "agent-query-1", p)
	require.NoError(t, err)

	res, err := eng.AwaitAgentQuery(context.Background(), started)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", res.WorkflowID)
	assert.Equal(t, answer, *res.Response)

	c.AssertExpectations(t)
	run.AssertExpectations(t)
}

func TestStartAgentQuery_InvalidPayload(t *testing.T) {
	c := &mocks.Client{}
	eng := newTestEngine(t, c, &fakeWorker{})

	_, err := eng.StartAgentQuery(context.Background(), "agent-query-1", definitions.QueryPayload{})
	require.Error(t, err)
	c.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAwaitAgentQuery_Failure(t *testing.T) {
	run := &mocks.WorkflowRun{}
	run.On("Get", mock.Anything, mock.Anything).Return(assert.AnError)
	run.On("GetID").Return("agent-query-1")
	run.On("GetRunID").Return("run-1")

	eng := newTestEngine(t, &mocks.Client{}, &fakeWorker{})
	_, err := eng.AwaitAgentQuery(context.Background(), run)

	var failed ErrWorkflowFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "agent-query-1", failed.WorkflowID)
	assert.Equal(t, "run-1", failed.RunID)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestCancelWorkflow(t *testing.T) {
	c := &mocks.Client{}
	c.On("CancelWorkflow", mock.Anything, "agent-query-1", "").Return(nil).Once()
	eng := newTestEngine(t, c, &fakeWorker{})

	require.NoError(t, eng.CancelWorkflow(context.Background(), "agent-query-1", ""))
	c.AssertExpectations(t)
}

func TestErrConfigInvalid(t *testing.T) {
	err := ErrConfigInvalid{Field: "TestField", Reason: "test reason"}
	assert.Contains(t, err.Error(), "TestField")
	assert.Contains(t, err.Error(), "test reason")
}
