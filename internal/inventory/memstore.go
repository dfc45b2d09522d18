package inventory

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory StockStore. Each call is internally consistent
// (one mutex around the maps) but, like any plain get/set store, it offers no
// atomicity across calls; the Manager provides that.
type MemStore struct {
	mu           sync.Mutex
	products     map[string]Product
	movements    []Movement
	reservations map[string]Reservation // key: orderID+"/"+productID
}

func NewMemStore() *MemStore {
	return &MemStore{
		products:     make(map[string]Product),
		reservations: make(map[string]Reservation),
	}
}

// PutProduct seeds or replaces a product. Intended for setup and admin
// flows, not for counter mutations.
func (s *MemStore) PutProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *MemStore) GetProduct(_ context.Context, id string) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := p
	return &cp, nil
}

func (s *MemStore) ListProducts(_ context.Context) ([]*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Product, 0, len(s.products))
	for _, p := range s.products {
		cp := p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) UpdateStock(_ context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.products[p.ID]
	if !ok {
		return ErrProductNotFound
	}
	if cur.Version != p.Version {
		return ErrVersionConflict
	}
	p.Version++
	s.products[p.ID] = *p
	return nil
}

func (s *MemStore) AppendMovement(_ context.Context, m *Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements = append(s.movements, *m)
	return nil
}

// Movements returns a copy of the ledger, oldest first.
func (s *MemStore) Movements() []Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Movement, len(s.movements))
	copy(out, s.movements)
	return out
}

func (s *MemStore) GetReservation(_ context.Context, orderID, productID string) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[orderID+"/"+productID]
	if !ok {
		return nil, nil
	}
	cp := r
	return &cp, nil
}

func (s *MemStore) SaveReservation(_ context.Context, r *Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[r.OrderID+"/"+r.ProductID] = *r
	return nil
}

func (s *MemStore) TransitionReservation(_ context.Context, orderID, productID string, from, to ReservationStatus) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := orderID + "/" + productID
	r, ok := s.reservations[key]
	if !ok || r.Status != from {
		return nil, ErrReservationConflict
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	s.reservations[key] = r
	cp := r
	return &cp, nil
}

func (s *MemStore) ListReservations(_ context.Context, orderID string) ([]*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Reservation
	for _, r := range s.reservations {
		if r.OrderID == orderID {
			cp := r
			out = append(out, &cp)
		}
	}
	return out, nil
}
