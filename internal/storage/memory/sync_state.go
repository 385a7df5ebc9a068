package memory

import (
	"context"
	"sort"
	"sync"

	"catalog_sync/internal/domain"
)

type JobStateStore struct {
	mu     sync.RWMutex
	states map[string]domain.JobState
}

func NewJobStateStore() *JobStateStore {
	return &JobStateStore{
		states: make(map[string]domain.JobState),
	}
}

// Get returns a fresh idle state for a job that has never been saved.
func (s *JobStateStore) Get(_ context.Context, name string) (*domain.JobState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[name]
	if !ok {
		return domain.NewJobState(name), nil
	}
	return cloneState(state), nil
}

// Save stores the state unless the stored copy has a later LastRunAt.
func (s *JobStateStore) Save(_ context.Context, state *domain.JobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.states[state.Name]; ok && existing.LastRunAt.After(state.LastRunAt) {
		return nil
	}
	s.states[state.Name] = *cloneState(*state)
	return nil
}

func (s *JobStateStore) ListByStatus(_ context.Context, status domain.JobStatus) ([]domain.JobState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(func(st domain.JobState) bool { return st.Status == status }), nil
}

func (s *JobStateStore) List(_ context.Context) ([]domain.JobState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(nil), nil
}

// Delete removes a state. Deleting an unknown name is not an error.
func (s *JobStateStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, name)
	return nil
}

func (s *JobStateStore) list(keep func(domain.JobState) bool) []domain.JobState {
	out := make([]domain.JobState, 0, len(s.states))
	for _, st := range s.states {
		if keep != nil && !keep(st) {
			continue
		}
		out = append(out, *cloneState(st))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

func cloneState(st domain.JobState) *domain.JobState {
	out := st
	if st.Cursor != nil {
		c := *st.Cursor
		out.Cursor = &c
	}
	if st.LastError != nil {
		e := *st.LastError
		out.LastError = &e
	}
	if st.PassStartedAt != nil {
		t := *st.PassStartedAt
		out.PassStartedAt = &t
	}
	if st.Watermark != nil {
		t := *st.Watermark
		out.Watermark = &t
	}
	return &out
}
