package repository

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultOperationTimeout bounds store calls whose context has no deadline.
const DefaultOperationTimeout = 10 * time.Second

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var active = []Status{StatusPending, StatusRunning}

// StateRepository mediates every read and write of workflow instances and
// enforces their lifecycle rules.
type StateRepository struct {
	store     Store
	validate  *validator.Validate
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
	opTimeout time.Duration
}

// Option configures a StateRepository.
type Option func(*StateRepository)

// WithLogger sets the repository logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *StateRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithOperationTimeout overrides DefaultOperationTimeout. Zero disables it.
func WithOperationTimeout(d time.Duration) Option {
	return func(r *StateRepository) { r.opTimeout = d }
}

// WithIDGenerator overrides the instance id generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *StateRepository) { r.newID = fn }
}

// NewStateRepository creates a repository over store.
func NewStateRepository(store Store, opts ...Option) *StateRepository {
	r := &StateRepository{
		store:     store,
		validate:  validator.New(),
		logger:    slog.Default(),
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
		opTimeout: DefaultOperationTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "workflow-repository"))
	return r
}

// Store returns the underlying store.
func (r *StateRepository) Store() Store {
	return r.store
}

// CreateInstance creates a running instance whose first step is
// initialization. With an idempotency key, repeated calls return the
// instance created by the first successful call.
func (r *StateRepository) CreateInstance(ctx context.Context, p CreateParams) (*WorkflowInstance, error) {
	if err := r.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("create instance: invalid parameters: %w", err)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if p.IdempotencyKey != "" {
		existing, err := r.store.GetByIdempotencyKey(ctx, p.IdempotencyKey)
		if err == nil {
			return r.resume(ctx, existing, p)
		}
		if !errors.Is(err, ErrInstanceNotFound) {
			return nil, fmt.Errorf("create instance: %w", err)
		}
	}

	now := r.now()
	inst := &WorkflowInstance{
		ID:                   r.newID(),
		IdempotencyKey:       p.IdempotencyKey,
		CommunityID:          p.CommunityID,
		Route:                p.Route,
		Question:             p.Question,
		Metadata:             maps.Clone(p.Metadata),
		Steps:                []StepEvent{},
		Status:               StatusPending,
		ChatID:               p.ChatID,
		EnableAnswerSkipping: p.EnableAnswerSkipping,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if inst.Metadata == nil {
		inst.Metadata = map[string]any{}
	}

	if err := r.store.Insert(ctx, inst); err != nil {
		if errors.Is(err, ErrDuplicateKey) && p.IdempotencyKey != "" {
			existing, getErr := r.store.GetByIdempotencyKey(ctx, p.IdempotencyKey)
			if getErr != nil {
				return nil, fmt.Errorf("create instance: %w", getErr)
			}
			return r.resume(ctx, existing, p)
		}
		return nil, fmt.Errorf("create instance: %w", err)
	}

	if err := r.initialize(ctx, inst.ID, p); err != nil {
		return nil, err
	}
	r.logger.DebugContext(ctx, "workflow instance created",
		slog.String("workflow_id", inst.ID),
		slog.String("community_id", inst.CommunityID))
	return r.get(ctx, "create instance", inst.ID)
}

// resume handles a creation request whose idempotency key is already taken.
func (r *StateRepository) resume(ctx context.Context, existing *WorkflowInstance, p CreateParams) (*WorkflowInstance, error) {
	if existing.CommunityID != p.CommunityID || existing.Question.Message != p.Question.Message {
		return nil, fmt.Errorf("create instance %s: %w", existing.ID, ErrDuplicateInstance)
	}
	if existing.Status != StatusPending {
		return existing, nil
	}
	// A previous attempt inserted the record but never initialized it.
	if err := r.initialize(ctx, existing.ID, p); err != nil {
		return nil, err
	}
	return r.get(ctx, "create instance", existing.ID)
}

func (r *StateRepository) initialize(ctx context.Context, id string, p CreateParams) error {
	data := map[string]any{
		"communityId":          p.CommunityID,
		"route":                routeData(p.Route),
		"question":             questionData(p.Question),
		"enableAnswerSkipping": p.EnableAnswerSkipping,
	}
	if p.ChatID != "" {
		data["chatId"] = p.ChatID
	}
	_, err := r.store.Apply(ctx, id, Mutation{
		Allowed: []Status{StatusPending},
		Event:   &StepEvent{StepName: StepInitialization, Data: data},
		Status:  StatusRunning,
	})
	if errors.Is(err, ErrPreconditionFailed) {
		// Another attempt initialized it first.
		return nil
	}
	if err != nil {
		return fmt.Errorf("initialize instance %s: %w", id, err)
	}
	return nil
}

// AppendStep records a step on an active instance.
func (r *StateRepository) AppendStep(ctx context.Context, id, stepName string, data map[string]any) error {
	if stepName == "" {
		return fmt.Errorf("append step to %s: step name is required", id)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.store.Apply(ctx, id, Mutation{
		Allowed: active,
		Event:   &StepEvent{StepName: stepName, Data: data},
	})
	if errors.Is(err, ErrPreconditionFailed) {
		r.logger.WarnContext(ctx, "step rejected on terminal instance",
			slog.String("workflow_id", id),
			slog.String("step", stepName))
		err = ErrTerminalStateViolation
	}
	if err != nil {
		return fmt.Errorf("append step %q to %s: %w", stepName, id, err)
	}
	return nil
}

// SetResponse stores the final answer and records answer_processing in the
// same write.
func (r *StateRepository) SetResponse(ctx context.Context, id string, resp Response) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.store.Apply(ctx, id, Mutation{
		Allowed:  active,
		Response: &resp,
		Event: &StepEvent{
			StepName: StepAnswerProcessing,
			Data:     map[string]any{"response": resp.Message, "skipped": false},
		},
	})
	if errors.Is(err, ErrPreconditionFailed) {
		inst, getErr := r.store.Get(ctx, id)
		switch {
		case getErr != nil:
			err = getErr
		case inst.Response != nil:
			err = ErrAlreadyAnswered
		default:
			err = ErrTerminalStateViolation
		}
	}
	if err != nil {
		return fmt.Errorf("set response on %s: %w", id, err)
	}
	return nil
}

// MarkCompleted moves a running instance to completed. Completing an
// already completed instance is a no-op.
func (r *StateRepository) MarkCompleted(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.store.Apply(ctx, id, Mutation{
		Allowed: []Status{StatusRunning},
		Status:  StatusCompleted,
	})
	if errors.Is(err, ErrPreconditionFailed) {
		inst, getErr := r.store.Get(ctx, id)
		switch {
		case getErr != nil:
			err = getErr
		case inst.Status == StatusCompleted:
			return nil
		case inst.Status == StatusFailed:
			err = ErrTerminalStateViolation
		default:
			err = ErrInvalidTransition
		}
	}
	if err != nil {
		return fmt.Errorf("mark %s completed: %w", id, err)
	}
	return nil
}

// MarkFailed records error_occurred and flips the status to failed in one
// atomic write. Repeated failures each append their own error_occurred.
func (r *StateRepository) MarkFailed(ctx context.Context, id string, info ErrorInfo) error {
	if info.Message == "" {
		info.Message = "unknown error"
	}
	if info.WorkflowID == "" {
		info.WorkflowID = id
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.store.Apply(ctx, id, Mutation{
		Allowed: []Status{StatusRunning, StatusFailed},
		Event:   &StepEvent{StepName: StepErrorOccurred, Data: info.data()},
		Status:  StatusFailed,
	})
	if errors.Is(err, ErrPreconditionFailed) {
		inst, getErr := r.store.Get(ctx, id)
		switch {
		case getErr != nil:
			err = getErr
		case inst.Status == StatusCompleted:
			err = ErrTerminalStateViolation
		default:
			err = ErrInvalidTransition
		}
	}
	if err != nil {
		return fmt.Errorf("mark %s failed: %w", id, err)
	}
	r.logger.InfoContext(ctx, "workflow instance failed",
		slog.String("workflow_id", id),
		slog.String("stage", info.Stage),
		slog.String("error", info.Message))
	return nil
}

// UpdateMetadata merges kv into the instance metadata, last write wins per key.
func (r *StateRepository) UpdateMetadata(ctx context.Context, id string, kv map[string]any) error {
	if len(kv) == 0 {
		return nil
	}
	for k := range kv {
		if k == "" || strings.Contains(k, ".") || strings.HasPrefix(k, "$") {
			return fmt.Errorf("update metadata on %s: %w: %q", id, ErrInvalidMetadataKey, k)
		}
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.store.Apply(ctx, id, Mutation{Allowed: active, Metadata: kv})
	if errors.Is(err, ErrPreconditionFailed) {
		err = ErrTerminalStateViolation
	}
	if err != nil {
		return fmt.Errorf("update metadata on %s: %w", id, err)
	}
	return nil
}

// GetWorkflowState returns a snapshot of the instance.
func (r *StateRepository) GetWorkflowState(ctx context.Context, id string) (*WorkflowInstance, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.get(ctx, "get workflow state", id)
}

// ReadSteps streams the instance's journal in append order.
func (r *StateRepository) ReadSteps(ctx context.Context, id string) iter.Seq2[StepEvent, error] {
	return r.store.Read(ctx, id)
}

// ListInstances returns instances newest first.
func (r *StateRepository) ListInstances(ctx context.Context, f Filter) ([]*WorkflowInstance, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("list instances: unknown status %q", f.Status)
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	f.Limit = min(f.Limit, maxListLimit)
	f.Offset = max(f.Offset, 0)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	out, err := r.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return out, nil
}

func (r *StateRepository) get(ctx context.Context, op, id string) (*WorkflowInstance, error) {
	inst, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, id, err)
	}
	return inst, nil
}

func (r *StateRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || r.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

func routeData(rt Route) map[string]any {
	d := map[string]any{"source": rt.Source}
	if rt.Destination != nil {
		d["destination"] = map[string]any{
			"queue": rt.Destination.Queue,
			"event": rt.Destination.Event,
		}
	}
	return d
}

func questionData(q Question) map[string]any {
	d := map[string]any{"message": q.Message}
	if len(q.Filters) > 0 {
		d["filters"] = maps.Clone(q.Filters)
	}
	return d
}
