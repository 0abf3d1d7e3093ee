package repository

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/bargom/hivemind/pkg/metrics"
)

// instrumentedStore records the outcome and latency of every store call.
type instrumentedStore struct {
	Store
}

// Instrument wraps s so its operations are exported as store metrics.
func Instrument(s Store) Store {
	if _, ok := s.(*instrumentedStore); ok {
		return s
	}
	return &instrumentedStore{Store: s}
}

func observe(op string, start time.Time, err error) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrInstanceNotFound):
		status = "not_found"
	case errors.Is(err, ErrPreconditionFailed), errors.Is(err, ErrDuplicateKey):
		status = "rejected"
	default:
		status = "error"
	}
	metrics.Global().Store().RecordOperation(op, status, time.Since(start))
}

func (s *instrumentedStore) Append(ctx context.Context, id string, ev StepEvent) (seq Seq, err error) {
	defer func(start time.Time) { observe("append", start, err) }(time.Now())
	return s.Store.Append(ctx, id, ev)
}

func (s *instrumentedStore) Read(ctx context.Context, id string) iter.Seq2[StepEvent, error] {
	return func(yield func(StepEvent, error) bool) {
		start := time.Now()
		var failed error
		for ev, err := range s.Store.Read(ctx, id) {
			if err != nil {
				failed = err
			}
			if !yield(ev, err) {
				break
			}
		}
		observe("read", start, failed)
	}
}

func (s *instrumentedStore) Insert(ctx context.Context, inst *WorkflowInstance) (err error) {
	defer func(start time.Time) { observe("insert", start, err) }(time.Now())
	return s.Store.Insert(ctx, inst)
}

func (s *instrumentedStore) Get(ctx context.Context, id string) (_ *WorkflowInstance, err error) {
	defer func(start time.Time) { observe("get", start, err) }(time.Now())
	return s.Store.Get(ctx, id)
}

func (s *instrumentedStore) GetByIdempotencyKey(ctx context.Context, key string) (_ *WorkflowInstance, err error) {
	defer func(start time.Time) { observe("get_by_key", start, err) }(time.Now())
	return s.Store.GetByIdempotencyKey(ctx, key)
}

func (s *instrumentedStore) List(ctx context.Context, f Filter) (_ []*WorkflowInstance, err error) {
	defer func(start time.Time) { observe("list", start, err) }(time.Now())
	return s.Store.List(ctx, f)
}

func (s *instrumentedStore) Apply(ctx context.Context, id string, m Mutation) (_ Seq, err error) {
	defer func(start time.Time) { observe("apply", start, err) }(time.Now())
	return s.Store.Apply(ctx, id, m)
}
