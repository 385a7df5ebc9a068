package memory

import (
	"context"
	"slices"
	"sync"

	"catalog_sync/internal/domain"
)

type OrderStore struct {
	mu     sync.RWMutex
	orders map[int64]domain.Order
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: make(map[int64]domain.Order),
	}
}

func (s *OrderStore) Upsert(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := *order
	o.LineItems = slices.Clone(order.LineItems)
	s.orders[order.ExternalID] = o
	return nil
}

func (s *OrderStore) Get(_ context.Context, externalID int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[externalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	o.LineItems = slices.Clone(o.LineItems)
	return &o, nil
}

func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
