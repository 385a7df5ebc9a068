package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"catalog_sync/internal/domain"
)

type CollectionStore struct {
	mu          sync.RWMutex
	collections map[int64]domain.Collection
}

func NewCollectionStore() *CollectionStore {
	return &CollectionStore{
		collections: make(map[int64]domain.Collection),
	}
}

func (s *CollectionStore) Upsert(_ context.Context, collection *domain.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection.ExternalID] = *collection
	return nil
}

// HandlesByTitle maps every collection title to its handle. When several
// collections share a title the smallest handle wins.
func (s *CollectionStore) HandlesByTitle(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.collections))
	for _, c := range s.collections {
		if prev, ok := out[c.Title]; ok && prev <= c.Handle {
			continue
		}
		out[c.Title] = c.Handle
	}
	return out, nil
}

func (s *CollectionStore) Get(_ context.Context, externalID int64) (*domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[externalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (s *CollectionStore) List(_ context.Context) ([]domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Collection, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, c)
	}
	sortCollections(out)
	return out, nil
}

// DeleteStale removes collections last synced before the given time.
func (s *CollectionStore) DeleteStale(_ context.Context, syncedBefore time.Time) ([]domain.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []domain.Collection
	for id, c := range s.collections {
		if c.SyncedAt.Before(syncedBefore) {
			removed = append(removed, c)
			delete(s.collections, id)
		}
	}
	sortCollections(removed)
	return removed, nil
}

func (s *CollectionStore) Delete(_ context.Context, externalID int64) (*domain.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[externalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(s.collections, externalID)
	return &c, nil
}

func sortCollections(cs []domain.Collection) {
	sort.Slice(cs, func(i, j int) bool {
		return cs[i].ExternalID < cs[j].ExternalID
	})
}
