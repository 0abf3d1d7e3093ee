package activities

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/bargom/hivemind/internal/agent"
	"github.com/bargom/hivemind/internal/agent/adapters"
	"github.com/bargom/hivemind/internal/workflow/definitions"
	"github.com/bargom/hivemind/internal/workflow/repository"
)

type fakeRunner struct {
	reqs []agent.Request
	res  *agent.Result
	err  error
}

func (f *fakeRunner) Run(_ context.Context, req agent.Request) (*agent.Result, error) {
	f.reqs = append(f.reqs, req)
	return f.res, f.err
}

func payload() definitions.QueryPayload {
	return definitions.QueryPayload{
		CommunityID: "c1",
		Query:       "What is X?",
		ChatID:      "chat-1",
		Route: repository.Route{
			Source:      "discord",
			Destination: &repository.Destination{Queue: "q1", Event: "answer"},
		},
		Metadata: map[string]any{"channel": "general"},
	}
}

func execute(t *testing.T, runner Runner, p definitions.QueryPayload) (*definitions.QueryResult, error) {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	acts := NewAgentActivities(runner, nil)
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(acts.RunAgentQuery, p)
	if err != nil {
		return nil, err
	}
	var res definitions.QueryResult
	require.NoError(t, val.Get(&res))
	return &res, nil
}

func TestRunAgentQuery_MapsPayload(t *testing.T) {
	answer := "X is a thing."
	runner := &fakeRunner{res: &agent.Result{WorkflowID: "wf-1", Response: &answer, Path: agent.PathDirect}}

	res, err := execute(t, runner, payload())
	require.NoError(t, err)

	assert.Equal(t, "wf-1", res.WorkflowID)
	require.NotNil(t, res.Response)
	assert.Equal(t, answer, *res.Response)
	assert.Equal(t, agent.PathDirect, res.Path)

	require.Len(t, runner.reqs, 1)
	req := runner.reqs[0]
	assert.Regexp(t, `^.+/.+$`, req.IdempotencyKey)
	assert.Equal(t, "c1", req.CommunityID)
	assert.Equal(t, "What is X?", req.Query)
	assert.Equal(t, "chat-1", req.ChatID)
	assert.Equal(t, "q1", req.Route.Destination.Queue)
	assert.Equal(t, "general", req.Metadata["channel"])
}

func TestRunAgentQuery_InvalidPayload(t *testing.T) {
	runner := &fakeRunner{}
	p := payload()
	p.Query = ""

	_, err := execute(t, runner, p)
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
	assert.Equal(t, definitions.ErrTypeInvalidPayload, appErr.Type())
	assert.Empty(t, runner.reqs)
}

func TestRunAgentQuery_ErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		nonRetryable bool
		errType      string
	}{
		{
			name:         "failed workflow",
			err:          fmt.Errorf("instance wf-1: %w", agent.ErrWorkflowFailed),
			nonRetryable: true,
			errType:      definitions.ErrTypeWorkflowFailed,
		},
		{
			name:         "classification failure",
			err:          &agent.StageError{Stage: agent.StageClassifying, Err: adapters.ErrClassificationUnavailable},
			nonRetryable: true,
			errType:      definitions.ErrTypeAgent,
		},
		{
			name:         "storage unavailable",
			err:          fmt.Errorf("append step: %w", repository.ErrStorageUnavailable),
			nonRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, &fakeRunner{err: tt.err}, payload())
			require.Error(t, err)

			var appErr *temporal.ApplicationError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.nonRetryable, appErr.NonRetryable())
			if tt.errType != "" {
				assert.Equal(t, tt.errType, appErr.Type())
			}
		})
	}
}

type staticAnswerer string

func (a staticAnswerer) Answer(context.Context, adapters.AnswerInput) (string, error) {
	return string(a), nil
}

type noRetrieval struct{}

func (noRetrieval) Query(context.Context, agent.RetrievalRequest) (string, error) {
	return "", errors.New("retrieval not expected")
}

func TestRunAgentQuery_WithOrchestrator(t *testing.T) {
	repo := repository.NewStateRepository(repository.NewMemoryStore())
	statement := adapters.ClassifierFunc(func(context.Context, string, adapters.Input) (adapters.Decision, error) {
		return adapters.Decision{Result: false, Model: "local"}, nil
	})
	orch, err := agent.New(repo, agent.Classifiers{Local: statement}, staticAnswerer("Hello."), noRetrieval{})
	require.NoError(t, err)

	res, err := execute(t, orch, payload())
	require.NoError(t, err)
	require.NotNil(t, res.Response)
	assert.Equal(t, "Hello.", *res.Response)
	assert.Equal(t, agent.PathDirect, res.Path)

	inst, err := repo.GetWorkflowState(context.Background(), res.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusCompleted, inst.Status)
	assert.Equal(t, "c1", inst.CommunityID)
}

func TestRunAgentQuery_FlagsFinalAttempt(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	runner := &fakeRunner{err: fmt.Errorf("append step: %w", repository.ErrStorageUnavailable)}
	env.RegisterWorkflow(definitions.AgentQueryWorkflow)
	env.RegisterActivity(NewAgentActivities(runner, nil))

	p := payload()
	p.Retry = &definitions.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, BackoffCoefficient: 2, MaximumInterval: time.Second}
	env.ExecuteWorkflow(definitions.AgentQueryWorkflow, p)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())

	require.Len(t, runner.reqs, 3)
	for i, req := range runner.reqs {
		assert.Equal(t, i == 2, req.FinalAttempt, "attempt %d", i+1)
		assert.Equal(t, runner.reqs[0].IdempotencyKey, req.IdempotencyKey)
	}
}

func TestIsFinalAttempt(t *testing.T) {
	tests := []struct {
		attempt     int32
		maxAttempts int
		want        bool
	}{
		{attempt: 1, maxAttempts: 3, want: false},
		{attempt: 3, maxAttempts: 3, want: true},
		{attempt: 1, maxAttempts: 1, want: true},
		{attempt: 5, maxAttempts: 0, want: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isFinalAttempt(tt.attempt, tt.maxAttempts), "attempt %d of %d", tt.attempt, tt.maxAttempts)
	}
}
