// Package activities contains the Temporal activities run by the hivemind worker.
package activities

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/bargom/hivemind/internal/agent"
	"github.com/bargom/hivemind/internal/workflow/definitions"
)

const defaultHeartbeatInterval = 10 * time.Second

// Runner executes one agent query. *agent.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req agent.Request) (*agent.Result, error)
}

// AgentActivities holds the agent query activity.
type AgentActivities struct {
	runner Runner
	logger *slog.Logger
}

// NewAgentActivities creates a new AgentActivities instance.
func NewAgentActivities(runner Runner, logger *slog.Logger) *AgentActivities {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentActivities{
		runner: runner,
		logger: logger.With("component", "agent_activity"),
	}
}

// RunAgentQuery drives the orchestrator for one query. Every attempt of the
// same activity uses the same idempotency key, so retries resume one
// workflow instance instead of creating another. The last attempt the retry
// policy allows marks the instance failed on any error.
func (a *AgentActivities) RunAgentQuery(ctx context.Context, p definitions.QueryPayload) (*definitions.QueryResult, error) {
	if err := p.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), definitions.ErrTypeInvalidPayload, err)
	}

	info := activity.GetInfo(ctx)
	key := IdempotencyKey(info)
	final := isFinalAttempt(info.Attempt, p.MaxAttempts())
	a.logger.InfoContext(ctx, "running agent query",
		"idempotency_key", key,
		"attempt", info.Attempt,
		"final", final,
		"community_id", p.CommunityID)

	stop := startHeartbeat(ctx, info.HeartbeatTimeout)
	defer stop()

	res, err := a.runner.Run(ctx, agent.Request{
		IdempotencyKey:       key,
		CommunityID:          p.CommunityID,
		Query:                p.Query,
		Filters:              p.Filters,
		Route:                p.Route,
		ChatID:               p.ChatID,
		EnableAnswerSkipping: p.EnableAnswerSkipping,
		Metadata:             p.Metadata,
		FinalAttempt:         final,
	})
	if err != nil {
		a.logger.WarnContext(ctx, "agent query failed",
			"idempotency_key", key,
			"attempt", info.Attempt,
			"retryable", agent.IsRetryable(err),
			"error", err)
		return nil, toActivityError(ctx, err)
	}

	return &definitions.QueryResult{
		WorkflowID: res.WorkflowID,
		Response:   res.Response,
		Path:       res.Path,
	}, nil
}

// IdempotencyKey identifies an activity across its attempts.
func IdempotencyKey(info activity.Info) string {
	return info.WorkflowExecution.ID + "/" + info.ActivityID
}

func isFinalAttempt(attempt int32, maxAttempts int) bool {
	return maxAttempts > 0 && int(attempt) >= maxAttempts
}

// toActivityError lets transient storage failures and cancellation through
// for Temporal to handle and marks everything else non-retryable.
func toActivityError(ctx context.Context, err error) error {
	if ctx.Err() != nil || agent.IsRetryable(err) {
		return err
	}
	errType := definitions.ErrTypeAgent
	if errors.Is(err, agent.ErrWorkflowFailed) {
		errType = definitions.ErrTypeWorkflowFailed
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), errType, err)
}

// startHeartbeat records heartbeats until the returned func is called. The
// interval is a third of the heartbeat timeout.
func startHeartbeat(ctx context.Context, timeout time.Duration) func() {
	interval := timeout / 3
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
