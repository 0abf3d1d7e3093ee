package definitions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/bargom/hivemind/internal/workflow/repository"
)

func testPayload() QueryPayload {
	return QueryPayload{
		CommunityID: "c1",
		Query:       "What is X?",
		Route:       repository.Route{Source: "discord"},
	}
}

func TestAgentQueryWorkflow_ReturnsActivityResult(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	answer := "X is a thing."
	var got QueryPayload
	env.RegisterActivityWithOptions(func(_ context.Context, p QueryPayload) (*QueryResult, error) {
		got = p
		return &QueryResult{WorkflowID: "wf-1", Response: &answer, Path: "direct"}, nil
	}, activity.RegisterOptions{Name: RunAgentQueryActivityName})

	env.ExecuteWorkflow(AgentQueryWorkflow, testPayload())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var res *QueryResult
	require.NoError(t, env.GetWorkflowResult(&res))
	require.NotNil(t, res)
	assert.Equal(t, "wf-1", res.WorkflowID)
	require.NotNil(t, res.Response)
	assert.Equal(t, answer, *res.Response)
	assert.Equal(t, "c1", got.CommunityID)
}

func TestAgentQueryWorkflow_SkippedAnswer(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterActivityWithOptions(func(context.Context, QueryPayload) (*QueryResult, error) {
		return &QueryResult{WorkflowID: "wf-2", Path: "skipped"}, nil
	}, activity.RegisterOptions{Name: RunAgentQueryActivityName})

	p := testPayload()
	p.EnableAnswerSkipping = true
	env.ExecuteWorkflow(AgentQueryWorkflow, p)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var res *QueryResult
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.Nil(t, res.Response)
	assert.Equal(t, "skipped", res.Path)
}

func TestAgentQueryWorkflow_RetriesTransientFailures(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	calls := 0
	env.RegisterActivityWithOptions(func(context.Context, QueryPayload) (*QueryResult, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("workflow storage unavailable")
		}
		return &QueryResult{WorkflowID: "wf-3", Path: "direct"}, nil
	}, activity.RegisterOptions{Name: RunAgentQueryActivityName})

	p := testPayload()
	p.Retry = &RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, BackoffCoefficient: 2, MaximumInterval: time.Second}
	env.ExecuteWorkflow(AgentQueryWorkflow, p)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, 2, calls)
}

func TestAgentQueryWorkflow_NonRetryableFailure(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	calls := 0
	env.RegisterActivityWithOptions(func(context.Context, QueryPayload) (*QueryResult, error) {
		calls++
		return nil, temporal.NewNonRetryableApplicationError("workflow failed: boom", ErrTypeWorkflowFailed, nil)
	}, activity.RegisterOptions{Name: RunAgentQueryActivityName})

	env.ExecuteWorkflow(AgentQueryWorkflow, testPayload())

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, calls)
}

func TestRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.InitialInterval)
	assert.Equal(t, 2.0, cfg.BackoffCoefficient)
	assert.Equal(t, 60*time.Second, cfg.MaximumInterval)
	require.NoError(t, cfg.Validate())

	policy := cfg.RetryPolicy()
	assert.Equal(t, int32(3), policy.MaximumAttempts)
	assert.Contains(t, policy.NonRetryableErrorTypes, ErrTypeWorkflowFailed)

	cfg.BackoffCoefficient = 0.5
	assert.Error(t, cfg.Validate())
	cfg = DefaultRetryConfig()
	cfg.MaxAttempts = -1
	assert.Error(t, cfg.Validate())
}

func TestQueryPayloadValidate(t *testing.T) {
	require.NoError(t, testPayload().Validate())

	tests := []struct {
		name   string
		mutate func(*QueryPayload)
		want   string
	}{
		{"missing community", func(p *QueryPayload) { p.CommunityID = "" }, "community_id"},
		{"missing query", func(p *QueryPayload) { p.Query = "" }, "query"},
		{"missing source", func(p *QueryPayload) { p.Route.Source = "" }, "route.source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPayload()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestQueryPayloadMaxAttempts(t *testing.T) {
	p := testPayload()
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, p.MaxAttempts())

	p.Retry = &RetryConfig{MaxAttempts: 5}
	assert.Equal(t, 5, p.MaxAttempts())

	p.Retry = &RetryConfig{}
	assert.Zero(t, p.MaxAttempts())
}
