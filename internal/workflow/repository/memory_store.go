package repository

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and single-node runs.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*WorkflowInstance
	byKey     map[string]string
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]*WorkflowInstance),
		byKey:     make(map[string]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Insert(ctx context.Context, inst *WorkflowInstance) error {
	if err := classifyContextErr("insert", ctx.Err()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; ok {
		return ErrDuplicateKey
	}
	if inst.IdempotencyKey != "" {
		if _, ok := s.byKey[inst.IdempotencyKey]; ok {
			return ErrDuplicateKey
		}
		s.byKey[inst.IdempotencyKey] = inst.ID
	}
	s.instances[inst.ID] = cloneInstance(inst)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*WorkflowInstance, error) {
	if err := classifyContextErr("get", ctx.Err()); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return cloneInstance(inst), nil
}

func (s *MemoryStore) GetByIdempotencyKey(ctx context.Context, key string) (*WorkflowInstance, error) {
	s.mu.RLock()
	id, ok := s.byKey[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return s.Get(ctx, id)
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]*WorkflowInstance, error) {
	if err := classifyContextErr("list", ctx.Err()); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []*WorkflowInstance
	for _, inst := range s.instances {
		if f.CommunityID != "" && inst.CommunityID != f.CommunityID {
			continue
		}
		if f.Status != "" && inst.Status != f.Status {
			continue
		}
		out = append(out, cloneInstance(inst))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Apply(ctx context.Context, id string, m Mutation) (Seq, error) {
	if err := classifyContextErr("apply", ctx.Err()); err != nil {
		return NoSeq, err
	}
	now := s.now()
	m = m.stamped(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return NoSeq, ErrInstanceNotFound
	}
	if !m.admits(inst.Status, inst.Response != nil) {
		return NoSeq, ErrPreconditionFailed
	}
	return m.applyTo(inst, now), nil
}

func (s *MemoryStore) Append(ctx context.Context, id string, ev StepEvent) (Seq, error) {
	return s.Apply(ctx, id, Mutation{Event: &ev})
}

func (s *MemoryStore) Read(ctx context.Context, id string) iter.Seq2[StepEvent, error] {
	return func(yield func(StepEvent, error) bool) {
		inst, err := s.Get(ctx, id)
		if err != nil {
			yield(StepEvent{}, err)
			return
		}
		for _, ev := range inst.Steps {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func (s *MemoryStore) Close(context.Context) error { return nil }
