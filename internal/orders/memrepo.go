package orders

import (
	"context"
	"errors"
	"sync"
)

var ErrOrderNotFound = errors.New("order not found")

// MemRepo is an in-memory Repo for tests and local runs.
type MemRepo struct {
	mu       sync.Mutex
	byID     map[string]*Order
	byExtID  map[string]string
	timeline map[string][]TimelineEvent
}

func NewMemRepo() *MemRepo {
	return &MemRepo{
		byID:     make(map[string]*Order),
		byExtID:  make(map[string]string),
		timeline: make(map[string][]TimelineEvent),
	}
}

func (r *MemRepo) Create(_ context.Context, o *Order) (*Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byExtID[o.ExternalID]; ok {
		return r.clone(id), true, nil
	}
	cp := *o
	cp.Timeline = append([]TimelineEvent(nil), o.Timeline...)
	r.byID[o.ID] = &cp
	r.byExtID[o.ExternalID] = o.ID
	return o, false, nil
}

func (r *MemRepo) Get(_ context.Context, id string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return nil, ErrOrderNotFound
	}
	return r.clone(id), nil
}

func (r *MemRepo) SaveTransition(_ context.Context, o *Order, ev TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[o.ID]
	if !ok {
		return ErrOrderNotFound
	}
	cp := *o
	cp.Timeline = append(append([]TimelineEvent(nil), stored.Timeline...), ev)
	r.byID[o.ID] = &cp
	return nil
}

func (r *MemRepo) AppendTimeline(_ context.Context, orderID string, ev TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	stored.Timeline = append(stored.Timeline, ev)
	return nil
}

func (r *MemRepo) ListByStatus(_ context.Context, s Status) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for id, o := range r.byID {
		if o.Status == s {
			out = append(out, id)
		}
	}
	return out, nil
}

// clone returns a copy safe to hand out; caller holds the lock.
func (r *MemRepo) clone(id string) *Order {
	o := r.byID[id]
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	cp.Timeline = append([]TimelineEvent(nil), o.Timeline...)
	return &cp
}
