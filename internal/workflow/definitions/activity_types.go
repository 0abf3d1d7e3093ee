package definitions

import "time"

// Registered workflow and activity names.
const (
	AgentQueryWorkflowName    = "AgentQueryWorkflow"
	RunAgentQueryActivityName = "RunAgentQuery"
)

const (
	// DefaultActivityTimeout bounds one agent run including its retries.
	DefaultActivityTimeout = 5 * time.Minute
	// DefaultHeartbeatTimeout is how long the activity may go without a heartbeat.
	DefaultHeartbeatTimeout = 30 * time.Second
)

// Application error types raised by the agent activity.
const (
	ErrTypeWorkflowFailed = "WorkflowFailed"
	ErrTypeInvalidPayload = "InvalidPayload"
	ErrTypeAgent          = "AgentError"
)
