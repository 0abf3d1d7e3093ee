package repository

import (
	"context"
	"iter"
	"maps"
	"slices"
	"time"
)

// Journal is the append-only step log of workflow instances.
type Journal interface {
	// Append atomically records ev against the instance and returns its
	// position. The instance must already exist.
	Append(ctx context.Context, id string, ev StepEvent) (Seq, error)

	// Read yields the instance's steps in append order. Each iteration
	// re-reads the store and observes a prefix-consistent snapshot.
	Read(ctx context.Context, id string) iter.Seq2[StepEvent, error]
}

// Store persists workflow instances. Implementations serialize Apply per
// instance so concurrent writers never interleave partial updates.
type Store interface {
	Journal

	Insert(ctx context.Context, inst *WorkflowInstance) error
	Get(ctx context.Context, id string) (*WorkflowInstance, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*WorkflowInstance, error)
	List(ctx context.Context, f Filter) ([]*WorkflowInstance, error)

	// Apply performs a guarded update as a single atomic write. When the
	// guard does not hold it returns ErrInstanceNotFound or
	// ErrPreconditionFailed and changes nothing.
	Apply(ctx context.Context, id string, m Mutation) (Seq, error)

	Close(ctx context.Context) error
}

// Mutation is one atomic change to an instance.
type Mutation struct {
	// Allowed restricts the statuses the instance may be in. Empty means any.
	Allowed []Status
	// RequireNoResponse fails the update when a response is already stored.
	RequireNoResponse bool

	Event    *StepEvent
	Status   Status
	Response *Response
	Metadata map[string]any
}

func (m Mutation) admits(status Status, hasResponse bool) bool {
	if len(m.Allowed) > 0 && !slices.Contains(m.Allowed, status) {
		return false
	}
	if (m.RequireNoResponse || m.Response != nil) && hasResponse {
		return false
	}
	return true
}

func (m Mutation) stamped(now time.Time) Mutation {
	if m.Event != nil {
		ev := *m.Event
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}
		ev.Timestamp = ev.Timestamp.UTC()
		if ev.Data == nil {
			ev.Data = map[string]any{}
		}
		m.Event = &ev
	}
	return m
}

// applyTo mutates inst in place. The guard must already have been checked.
func (m Mutation) applyTo(inst *WorkflowInstance, now time.Time) Seq {
	seq := NoSeq
	if m.Event != nil {
		ev := *m.Event
		ev.Data = maps.Clone(ev.Data)
		if last, ok := inst.LastStep(); ok && ev.Timestamp.Before(last.Timestamp) {
			ev.Timestamp = last.Timestamp
		}
		inst.Steps = append(inst.Steps, ev)
		inst.CurrentStep = ev.StepName
		inst.StepCount++
		seq = Seq(inst.StepCount - 1)
	}
	if m.Status != "" {
		inst.Status = m.Status
	}
	if m.Response != nil {
		r := *m.Response
		inst.Response = &r
	}
	if len(m.Metadata) > 0 {
		if inst.Metadata == nil {
			inst.Metadata = map[string]any{}
		}
		maps.Copy(inst.Metadata, m.Metadata)
	}
	inst.UpdatedAt = now
	return seq
}

func cloneInstance(inst *WorkflowInstance) *WorkflowInstance {
	c := *inst
	c.Route.Destination = nil
	if inst.Route.Destination != nil {
		d := *inst.Route.Destination
		c.Route.Destination = &d
	}
	c.Question.Filters = maps.Clone(inst.Question.Filters)
	if inst.Response != nil {
		r := *inst.Response
		c.Response = &r
	}
	c.Metadata = maps.Clone(inst.Metadata)
	c.Steps = make([]StepEvent, len(inst.Steps))
	for i, s := range inst.Steps {
		s.Data = maps.Clone(s.Data)
		c.Steps[i] = s
	}
	return &c
}

// errSeq returns an iterator that yields a single error.
func errSeq(err error) iter.Seq2[StepEvent, error] {
	return func(yield func(StepEvent, error) bool) {
		yield(StepEvent{}, err)
	}
}
