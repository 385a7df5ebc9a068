package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"catalog_sync/internal/domain"
	"catalog_sync/internal/query"
)

type ProductStore struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
}

func NewProductStore() *ProductStore {
	return &ProductStore{
		products: make(map[int64]domain.Product),
	}
}

// Upsert replaces every synced field and keeps HasEmbedding, which is owned
// by the embedding service.
func (s *ProductStore) Upsert(_ context.Context, product *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := cloneProduct(product)
	p.HasEmbedding = s.products[product.ExternalID].HasEmbedding
	s.products[product.ExternalID] = p
	return nil
}

func (s *ProductStore) Get(_ context.Context, externalID int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[externalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneProduct(&p)
	return &out, nil
}

func (s *ProductStore) List(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(nil), nil
}

// Search returns the products matching every clause, ordered by id.
func (s *ProductStore) Search(_ context.Context, clauses []query.Clause) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(clauses), nil
}

func (s *ProductStore) SoftDelete(_ context.Context, externalID int64) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[externalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p.Available = false
	p.Status = domain.ProductStatusDeleted
	s.products[externalID] = p

	out := cloneProduct(&p)
	return &out, nil
}

func (s *ProductStore) RemoveCollectionHandles(_ context.Context, handles []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed int64
	for id, p := range s.products {
		kept := slices.DeleteFunc(slices.Clone(p.CollectionHandles), func(h string) bool {
			return slices.Contains(handles, h)
		})
		if len(kept) == len(p.CollectionHandles) {
			continue
		}
		p.CollectionHandles = kept
		s.products[id] = p
		changed++
	}
	return changed, nil
}

// MarkEmbedded records that the embedding service has indexed a product.
func (s *ProductStore) MarkEmbedded(_ context.Context, externalID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[externalID]
	if !ok {
		return domain.ErrNotFound
	}
	p.HasEmbedding = true
	s.products[externalID] = p
	return nil
}

func (s *ProductStore) sorted(clauses []query.Clause) []domain.Product {
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !query.MatchAll(clauses, &p) {
			continue
		}
		out = append(out, cloneProduct(&p))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExternalID < out[j].ExternalID
	})
	return out
}

func cloneProduct(p *domain.Product) domain.Product {
	out := *p
	out.Tags = slices.Clone(p.Tags)
	out.Attributes = maps.Clone(p.Attributes)
	out.CollectionNames = slices.Clone(p.CollectionNames)
	out.CollectionHandles = slices.Clone(p.CollectionHandles)
	if p.ImageURL != nil {
		url := *p.ImageURL
		out.ImageURL = &url
	}
	return out
}
