// Package retrieval asks the external Hivemind RAG workflow for an answer.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/bargom/hivemind/internal/agent"
	"github.com/bargom/hivemind/pkg/integration"
	"github.com/bargom/hivemind/pkg/metrics"
)

// WorkflowName is the registered name of the external retrieval workflow.
const WorkflowName = "HivemindWorkflow"

// NoneAnswer is how the retrieval workflow may spell an absent answer.
const NoneAnswer = "NONE"

// Config configures the retrieval client.
type Config struct {
	// TaskQueue is served by the Hivemind retrieval workers.
	TaskQueue string `mapstructure:"task_queue"`
	// Timeout bounds one retrieval including waiting for its result.
	Timeout        time.Duration                    `mapstructure:"timeout"`
	CircuitBreaker integration.CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// DefaultConfig returns the retrieval defaults.
func DefaultConfig() Config {
	return Config{
		TaskQueue:      "hivemind-retrieval",
		Timeout:        5 * time.Minute,
		CircuitBreaker: integration.DefaultCircuitBreakerConfig(),
	}
}

// Validate checks the retrieval settings.
func (c Config) Validate() error {
	if c.TaskQueue == "" {
		return &integration.ConfigError{Field: "task_queue", Message: "is required"}
	}
	if c.Timeout <= 0 {
		return &integration.ConfigError{Field: "timeout", Message: "must be positive"}
	}
	return nil
}

// Payload is the input of the external retrieval workflow.
type Payload struct {
	CommunityID          string `json:"community_id"`
	Query                string `json:"query"`
	EnableAnswerSkipping bool   `json:"enable_answer_skipping"`
	WorkflowID           string `json:"workflow_id,omitempty"`
}

// TemporalRetriever runs the retrieval workflow and waits for its answer.
type TemporalRetriever struct {
	client  client.Client
	config  Config
	breaker *integration.CircuitBreaker
	logger  *slog.Logger
}

var _ agent.Retriever = (*TemporalRetriever)(nil)

// NewTemporalRetriever creates a retriever over an established client.
func NewTemporalRetriever(c client.Client, cfg Config, logger *slog.Logger) (*TemporalRetriever, error) {
	if c == nil {
		return nil, errors.New("retrieval: temporal client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TemporalRetriever{
		client:  c,
		config:  cfg,
		breaker: integration.NewCircuitBreaker("hivemind_retrieval", cfg.CircuitBreaker),
		logger:  logger.With("component", "retrieval"),
	}, nil
}

// WorkflowID is the id used for the retrieval started by one agent workflow.
func WorkflowID(communityID, workflowID string) string {
	return fmt.Sprintf("hivemind-query-%s-%s", communityID, workflowID)
}

// Query returns the retrieval answer, or "" when the workflow produced none.
func (r *TemporalRetriever) Query(ctx context.Context, req agent.RetrievalRequest) (answer string, err error) {
	if err := r.breaker.Allow(); err != nil {
		return "", fmt.Errorf("%s: %w", WorkflowName, err)
	}

	timer := metrics.Global().Integration().NewCallTimer("hivemind", WorkflowName)
	defer func() {
		timer.Done(err)
		if err != nil && ctx.Err() == nil {
			r.breaker.RecordFailure()
		} else if err == nil {
			r.breaker.RecordSuccess()
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	id := WorkflowID(req.CommunityID, req.WorkflowID)
	run, err := r.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: r.config.TaskQueue,
	}, WorkflowName, Payload{
		CommunityID:          req.CommunityID,
		Query:                req.Query,
		EnableAnswerSkipping: req.EnableAnswerSkipping,
		WorkflowID:           req.WorkflowID,
	})
	if err != nil {
		return "", fmt.Errorf("starting %s: %w", WorkflowName, err)
	}

	var result *string
	if err := run.Get(ctx, &result); err != nil {
		return "", fmt.Errorf("awaiting %s %s: %w", WorkflowName, id, err)
	}

	if result == nil || *result == NoneAnswer {
		r.logger.DebugContext(ctx, "retrieval returned no answer", "retrieval_id", id)
		return "", nil
	}
	return *result, nil
}
