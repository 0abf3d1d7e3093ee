// Package definitions contains the Temporal workflow that drives one agent
// query and the payload types shared with its activity.
package definitions

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"

	"github.com/bargom/hivemind/internal/workflow/repository"
)

// RetryConfig defines retry behavior for the agent activity.
type RetryConfig struct {
	MaxAttempts        int           `json:"maxAttempts" mapstructure:"max_attempts"`
	InitialInterval    time.Duration `json:"initialInterval" mapstructure:"initial_interval"`
	BackoffCoefficient float64       `json:"backoffCoefficient" mapstructure:"backoff_coefficient"`
	MaximumInterval    time.Duration `json:"maximumInterval" mapstructure:"maximum_interval"`
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:        3,
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    60 * time.Second,
	}
}

// Validate checks the retry settings.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return errors.New("retry: max attempts cannot be negative")
	}
	if c.InitialInterval < 0 || c.MaximumInterval < 0 {
		return errors.New("retry: intervals cannot be negative")
	}
	if c.BackoffCoefficient != 0 && c.BackoffCoefficient < 1 {
		return errors.New("retry: backoff coefficient must be at least 1")
	}
	return nil
}

// RetryPolicy converts the config to a Temporal retry policy.
func (c RetryConfig) RetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    c.InitialInterval,
		BackoffCoefficient: c.BackoffCoefficient,
		MaximumInterval:    c.MaximumInterval,
		MaximumAttempts:    int32(c.MaxAttempts),
		NonRetryableErrorTypes: []string{
			ErrTypeWorkflowFailed,
			ErrTypeInvalidPayload,
		},
	}
}

// QueryPayload is the input of AgentQueryWorkflow.
type QueryPayload struct {
	CommunityID          string           `json:"community_id"`
	Query                string           `json:"query"`
	Filters              map[string]any   `json:"filters,omitempty"`
	Route                repository.Route `json:"route"`
	ChatID               string           `json:"chat_id,omitempty"`
	EnableAnswerSkipping bool             `json:"enable_answer_skipping"`
	Metadata             map[string]any   `json:"metadata,omitempty"`

	// ActivityTimeout overrides DefaultActivityTimeout when positive.
	ActivityTimeout time.Duration `json:"activity_timeout,omitempty"`
	Retry           *RetryConfig  `json:"retry,omitempty"`
}

// MaxAttempts is the attempt limit the workflow gives the activity. Zero
// means unlimited.
func (p QueryPayload) MaxAttempts() int {
	if p.Retry != nil {
		return p.Retry.MaxAttempts
	}
	return DefaultRetryConfig().MaxAttempts
}

// Validate reports payloads that can never produce an instance.
func (p QueryPayload) Validate() error {
	switch {
	case p.CommunityID == "":
		return errors.New("community_id is required")
	case p.Query == "":
		return errors.New("query is required")
	case p.Route.Source == "":
		return errors.New("route.source is required")
	}
	return nil
}

// QueryResult is the output of AgentQueryWorkflow. Response is nil when the
// answer was skipped.
type QueryResult struct {
	WorkflowID string  `json:"workflow_id"`
	Response   *string `json:"response"`
	Path       string  `json:"path"`
}
