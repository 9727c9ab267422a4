package orders

import (
	"context"
	"sort"
	"sync"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
)

// Store persists whole order aggregates. Callers serialize writes per order.
type Store interface {
	Insert(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	Save(ctx context.Context, o Order) error
	List(ctx context.Context, f Filter) ([]Order, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]Order)}
}

func (s *MemoryStore) Insert(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return apperr.Conflict("order %s already exists", o.ID)
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, apperr.NotFound("order %s not found", id)
	}
	return o.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return apperr.NotFound("order %s not found", o.ID)
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

// List returns matching orders, newest first.
func (s *MemoryStore) List(_ context.Context, f Filter) ([]Order, error) {
	s.mu.RLock()
	out := make([]Order, 0)
	for _, o := range s.orders {
		if f.Match(o) {
			out = append(out, o.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
