// Package agent drives one user query through history lookup,
// classification, optional retrieval, answering and memory update,
// recording every stage in the workflow journal.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bargom/hivemind/internal/agent/adapters"
	"github.com/bargom/hivemind/internal/workflow/repository"
	"github.com/bargom/hivemind/pkg/logging"
	"github.com/bargom/hivemind/pkg/metrics"
	"github.com/bargom/hivemind/pkg/telemetry"
)

// NoAnswerMessage is the response when nothing was generated and answer
// skipping is disabled.
const NoAnswerMessage = "No answer was generated."

// FailureMessage is delivered to the requester when a workflow fails before
// producing a response. Failure detail stays in the journal.
const FailureMessage = "Sorry, something went wrong while answering your question. Please try again later."

// DefaultFailureTimeout bounds the error_occurred write after the run's own
// context is gone.
const DefaultFailureTimeout = 5 * time.Second

const workflowName = "agent_query"

// Repository is the subset of the state repository the orchestrator uses.
type Repository interface {
	CreateInstance(ctx context.Context, p repository.CreateParams) (*repository.WorkflowInstance, error)
	AppendStep(ctx context.Context, id, stepName string, data map[string]any) error
	SetResponse(ctx context.Context, id string, resp repository.Response) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, info repository.ErrorInfo) error
	GetWorkflowState(ctx context.Context, id string) (*repository.WorkflowInstance, error)
}

var _ Repository = (*repository.StateRepository)(nil)

// ChatMemory reads and extends per-chat transcripts.
type ChatMemory interface {
	History(ctx context.Context, chatID string) (string, error)
	AppendTurn(ctx context.Context, chatID, question, answer string) error
}

// RetrievalRequest is sent to the retrieval pipeline.
type RetrievalRequest struct {
	CommunityID          string
	Query                string
	EnableAnswerSkipping bool
	WorkflowID           string
}

// Retriever answers a query from the community knowledge base. An empty
// result means the pipeline chose not to answer.
type Retriever interface {
	Query(ctx context.Context, req RetrievalRequest) (string, error)
}

// Dispatcher delivers a completed instance's response to its destination.
type Dispatcher interface {
	Dispatch(ctx context.Context, inst *repository.WorkflowInstance) error
}

// Classifiers are run in field order. Local is required; History only runs
// when the chat has history.
type Classifiers struct {
	Local    adapters.Classifier
	Question adapters.Classifier
	RAG      adapters.Classifier
	History  adapters.Classifier
}

// Request starts or resumes one query.
type Request struct {
	// IdempotencyKey collapses redelivered starts onto one instance.
	IdempotencyKey       string
	CommunityID          string
	Query                string
	Filters              map[string]any
	Route                repository.Route
	ChatID               string
	EnableAnswerSkipping bool
	Metadata             map[string]any
	// FinalAttempt is set when the engine will not retry this run. Retryable
	// errors then fail the instance instead of leaving it running.
	FinalAttempt bool
}

// Result is the outcome of a completed run.
type Result struct {
	WorkflowID string
	// Response is nil when the answer was skipped.
	Response *string
	Path     string
}

// Orchestrator runs agent queries.
type Orchestrator struct {
	repo        Repository
	classifiers Classifiers
	answerer    adapters.Answerer
	memory      ChatMemory
	retriever   Retriever
	dispatcher  Dispatcher
	validator   adapters.AnswerValidator
	logger      *slog.Logger
	tracer      trace.Tracer
	failTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithChatMemory sets the chat memory. Without it every query has no history.
func WithChatMemory(m ChatMemory) Option {
	return func(o *Orchestrator) { o.memory = m }
}

// WithDispatcher sets where responses are delivered after completion.
func WithDispatcher(d Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithAnswerValidator checks each generated answer for relevance. With
// answer skipping enabled, irrelevant answers are dropped.
func WithAnswerValidator(v adapters.AnswerValidator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithTracerProvider sets the provider for stage spans. The global provider
// is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = telemetry.Tracer(tp)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFailureTimeout bounds the error_occurred write on failure.
func WithFailureTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.failTimeout = d
		}
	}
}

// New creates an orchestrator.
func New(repo Repository, classifiers Classifiers, answerer adapters.Answerer, retriever Retriever, opts ...Option) (*Orchestrator, error) {
	if repo == nil || classifiers.Local == nil || answerer == nil || retriever == nil {
		return nil, errors.New("agent: repository, local classifier, answerer and retriever are required")
	}
	o := &Orchestrator{
		repo:        repo,
		classifiers: classifiers,
		answerer:    answerer,
		retriever:   retriever,
		logger:      slog.Default(),
		tracer:      telemetry.Tracer(nil),
		failTimeout: DefaultFailureTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o, nil
}

// Run executes req to completion. Workflow-fatal errors mark the instance
// failed before returning. Retryable storage errors are returned without
// touching the status so a redelivery can resume the same instance from
// its journal, unless req.FinalAttempt is set.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	timer := metrics.Global().Workflow().NewExecutionTimer(workflowName)

	inst, err := o.repo.CreateInstance(ctx, repository.CreateParams{
		IdempotencyKey:       req.IdempotencyKey,
		CommunityID:          req.CommunityID,
		Route:                req.Route,
		Question:             repository.Question{Message: req.Query, Filters: req.Filters},
		ChatID:               req.ChatID,
		EnableAnswerSkipping: req.EnableAnswerSkipping,
		Metadata:             req.Metadata,
	})
	if err != nil {
		timer.Failure()
		return nil, fmt.Errorf("starting workflow: %w", err)
	}
	ctx = logging.WithWorkflow(ctx, inst.ID, inst.CommunityID)

	switch inst.Status {
	case repository.StatusCompleted:
		timer.Success()
		o.deliver(ctx, inst)
		return completedResult(inst), nil
	case repository.StatusFailed:
		timer.Failure()
		o.deliver(ctx, inst)
		return nil, fmt.Errorf("workflow %s: %w", inst.ID, ErrWorkflowFailed)
	}

	ctx, span := o.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("workflow.id", inst.ID),
		attribute.String("community.id", inst.CommunityID),
	))
	defer span.End()

	r := newRun(o, inst, req.Query)
	res, err := r.execute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil {
			timer.Cancelled()
		} else {
			timer.Failure()
		}
		if !IsRetryable(err) || ctx.Err() != nil || req.FinalAttempt {
			o.fail(ctx, inst, err)
		}
		return nil, err
	}
	timer.Success()

	o.dispatch(ctx, inst.ID)
	return res, nil
}

func completedResult(inst *repository.WorkflowInstance) *Result {
	res := &Result{WorkflowID: inst.ID}
	if inst.Response != nil {
		msg := inst.Response.Message
		res.Response = &msg
	}
	return res
}

// fail records error_occurred and flips the status on a context detached
// from the run's cancellation.
func (o *Orchestrator) fail(ctx context.Context, inst *repository.WorkflowInstance, cause error) {
	stage := StageErrored
	var se *StageError
	if errors.As(cause, &se) {
		stage = se.Stage
	}
	cancelled := ctx.Err() != nil

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.failTimeout)
	defer cancel()

	err := o.repo.MarkFailed(fctx, inst.ID, repository.ErrorInfo{
		Stage:       string(stage),
		Message:     cause.Error(),
		Type:        errorType(cause),
		Cancelled:   cancelled,
		Context:     errorChain(cause),
		CommunityID: inst.CommunityID,
		ChatID:      inst.ChatID,
	})
	if err != nil {
		o.logger.ErrorContext(fctx, "failed to record workflow failure",
			"stage", stage,
			"cause", cause,
			"error", err)
		return
	}
	metrics.Global().Workflow().RecordStep(repository.StepErrorOccurred)
	o.logger.WarnContext(fctx, "workflow failed",
		"stage", stage,
		"cancelled", cancelled,
		"error", cause)

	o.dispatch(fctx, inst.ID)
}

func (o *Orchestrator) dispatch(ctx context.Context, id string) {
	if o.dispatcher == nil {
		return
	}
	inst, err := o.repo.GetWorkflowState(ctx, id)
	if err != nil {
		o.logger.WarnContext(ctx, "response not dispatched", "error", err)
		return
	}
	o.deliver(ctx, inst)
}

// deliver sends a finished instance's response to its destination. A failed
// instance without a response gets FailureMessage. Delivery is keyed by the
// instance id, so redelivered runs may call it again.
func (o *Orchestrator) deliver(ctx context.Context, inst *repository.WorkflowInstance) {
	if o.dispatcher == nil || inst.Route.Destination == nil {
		return
	}
	if inst.Status == repository.StatusFailed && inst.Response == nil {
		failed := *inst
		failed.Response = &repository.Response{Message: FailureMessage}
		inst = &failed
	}
	if err := o.dispatcher.Dispatch(ctx, inst); err != nil {
		o.logger.WarnContext(ctx, "response not dispatched",
			"queue", inst.Route.Destination.Queue,
			"error", err)
	}
}
