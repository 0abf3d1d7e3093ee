package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bargom/hivemind/internal/agent"
	"github.com/bargom/hivemind/internal/workflow/repository"
	"github.com/bargom/hivemind/pkg/metrics"
)

// ErrNoDestination is returned for instances whose route has no destination.
var ErrNoDestination = errors.New("dispatch: route has no destination")

// Enqueuer is the subset of *asynq.Client used for delivery.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Content is the body delivered to the adapter.
type Content struct {
	CommunityID string               `json:"communityId"`
	Route       repository.Route     `json:"route"`
	Question    repository.Question  `json:"question"`
	Response    *repository.Response `json:"response"`
	Metadata    map[string]any       `json:"metadata,omitempty"`
}

// Payload is the envelope delivered on the destination queue.
type Payload struct {
	Event   string  `json:"event"`
	Date    string  `json:"date"`
	Content Content `json:"content"`
}

// Dispatcher enqueues final responses with asynq.
type Dispatcher struct {
	enqueuer Enqueuer
	config   Config
	logger   *slog.Logger
	now      func() time.Time
}

var _ agent.Dispatcher = (*Dispatcher)(nil)

// New creates a dispatcher over an enqueuer, usually an *asynq.Client.
func New(enqueuer Enqueuer, cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	if enqueuer == nil {
		return nil, errors.New("dispatch: enqueuer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		enqueuer: enqueuer,
		config:   cfg,
		logger:   logger.With("component", "dispatcher"),
		now:      time.Now,
	}, nil
}

// NewPayload builds the delivery envelope for a finished instance.
func NewPayload(inst *repository.WorkflowInstance, at time.Time) (Payload, error) {
	if inst.Route.Destination == nil {
		return Payload{}, ErrNoDestination
	}
	return Payload{
		Event: inst.Route.Destination.Event,
		Date:  at.UTC().Format(time.RFC3339),
		Content: Content{
			CommunityID: inst.CommunityID,
			Route:       inst.Route,
			Question:    inst.Question,
			Response:    inst.Response,
			Metadata:    inst.Metadata,
		},
	}, nil
}

// Dispatch enqueues the instance's response on its destination queue. The
// task id is the instance id, so a second dispatch of the same instance is
// a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, inst *repository.WorkflowInstance) error {
	payload, err := NewPayload(inst, d.now())
	if err != nil {
		return err
	}
	dest := inst.Route.Destination

	task, err := NewTask(dest.Event, payload)
	if err != nil {
		return fmt.Errorf("encoding response payload: %w", err)
	}
	task.WithID(inst.ID).
		WithQueue(dest.Queue).
		WithMaxRetry(d.config.MaxRetry).
		WithTimeout(d.config.Timeout).
		WithRetention(d.config.Retention)

	ctx, cancel := context.WithTimeout(ctx, d.config.EnqueueTimeout)
	defer cancel()

	_, err = d.Enqueue(ctx, task)
	switch {
	case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
		d.logger.DebugContext(ctx, "response already dispatched", "queue", dest.Queue)
		return nil
	case err != nil:
		return err
	}
	d.logger.InfoContext(ctx, "response dispatched",
		"queue", dest.Queue,
		"event", dest.Event,
		"answered", inst.Response != nil)
	return nil
}

// Enqueue enqueues a task for immediate processing.
func (d *Dispatcher) Enqueue(ctx context.Context, task *Task) (info *asynq.TaskInfo, err error) {
	timer := metrics.Global().Integration().NewCallTimer("asynq", task.Queue)
	defer func() { timer.Done(err) }()

	t, opts := task.toAsynq()
	info, err = d.enqueuer.EnqueueContext(ctx, t, opts...)
	if err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}
	return info, nil
}
