package definitions

import (
	"fmt"

	"go.temporal.io/sdk/workflow"
)

// AgentQueryWorkflow answers one community query by running the agent
// activity. Retries of the activity share one workflow instance.
func AgentQueryWorkflow(ctx workflow.Context, p QueryPayload) (*QueryResult, error) {
	logger := workflow.GetLogger(ctx)

	timeout := p.ActivityTimeout
	if timeout <= 0 {
		timeout = DefaultActivityTimeout
	}
	retry := DefaultRetryConfig()
	if p.Retry != nil {
		retry = *p.Retry
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		ScheduleToCloseTimeout: timeout,
		HeartbeatTimeout:       DefaultHeartbeatTimeout,
		RetryPolicy:            retry.RetryPolicy(),
	})

	logger.Info("agent query started", "community_id", p.CommunityID, "chat_id", p.ChatID)

	var result QueryResult
	if err := workflow.ExecuteActivity(ctx, RunAgentQueryActivityName, p).Get(ctx, &result); err != nil {
		logger.Error("agent query failed", "error", err)
		return nil, fmt.Errorf("running agent query: %w", err)
	}

	logger.Info("agent query finished", "workflow_id", result.WorkflowID, "path", result.Path)
	return &result, nil
}
