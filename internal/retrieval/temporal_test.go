package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/bargom/hivemind/internal/agent"
	"github.com/bargom/hivemind/pkg/integration"
)

func request() agent.RetrievalRequest {
	return agent.RetrievalRequest{
		CommunityID:          "c1",
		Query:                "What is X?",
		EnableAnswerSkipping: true,
		WorkflowID:           "wf-1",
	}
}

func newRetriever(t *testing.T, c client.Client) *TemporalRetriever {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CircuitBreaker = integration.CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute, HalfOpenRequests: 1}
	r, err := NewTemporalRetriever(c, cfg, nil)
	require.NoError(t, err)
	return r
}

func expectRun(c *mocks.Client, result *string, getErr error) *mocks.WorkflowRun {
	run := &mocks.WorkflowRun{}
	c.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.ID == "hivemind-query-c1-wf-1" && o.TaskQueue == "hivemind-retrieval"
	}), WorkflowName, Payload{
		CommunityID:          "c1",
		Query:                "What is X?",
		EnableAnswerSkipping: true,
		WorkflowID:           "wf-1",
	}).Return(run, nil)
	run.On("Get", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		out := args.Get(1).(**string)
		*out = result
	}).Return(getErr)
	return run
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "hivemind-query-c1-wf-1", WorkflowID("c1", "wf-1"))
}

func TestQuery_ReturnsAnswer(t *testing.T) {
	c := &mocks.Client{}
	answer := "From the docs: X."
	run := expectRun(c, &answer, nil)

	got, err := newRetriever(t, c).Query(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, answer, got)

	c.AssertExpectations(t)
	run.AssertExpectations(t)
}

func TestQuery_NoAnswer(t *testing.T) {
	none := NoneAnswer
	tests := []struct {
		name   string
		result *string
	}{
		{"null result", nil},
		{"none marker", &none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &mocks.Client{}
			expectRun(c, tt.result, nil)

			got, err := newRetriever(t, c).Query(context.Background(), request())
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestQuery_StartFailure(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, WorkflowName, mock.Anything).
		Return(nil, errors.New("frontend unavailable"))

	r := newRetriever(t, c)
	_, err := r.Query(context.Background(), request())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting HivemindWorkflow")

	_, err = r.Query(context.Background(), request())
	require.Error(t, err)

	_, err = r.Query(context.Background(), request())
	assert.ErrorIs(t, err, integration.ErrCircuitOpen)
	c.AssertNumberOfCalls(t, "ExecuteWorkflow", 2)
}

func TestQuery_WorkflowFailure(t *testing.T) {
	c := &mocks.Client{}
	expectRun(c, nil, errors.New("activity timeout"))

	_, err := newRetriever(t, c).Query(context.Background(), request())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hivemind-query-c1-wf-1")
}

func TestNewTemporalRetriever(t *testing.T) {
	_, err := NewTemporalRetriever(nil, DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.TaskQueue = ""
	_, err = NewTemporalRetriever(&mocks.Client{}, cfg, nil)
	var cfgErr *integration.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "task_queue", cfgErr.Field)
}
