package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CountingStore keeps named counters.
type CountingStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type memoryCount struct {
	n         int64
	expiresAt time.Time
}

// MemoryCounter is the in-process CountingStore. Like RedisCounter, a
// counter expires window after its first increment; a zero window keeps
// counters forever.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]*memoryCount
	window time.Duration
	now    func() time.Time
}

func NewMemoryCounter(window time.Duration) *MemoryCounter {
	return &MemoryCounter{
		counts: make(map[string]*memoryCount),
		window: window,
		now:    time.Now,
	}
}

func (m *MemoryCounter) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c, ok := m.counts[key]
	if !ok || (m.window > 0 && !now.Before(c.expiresAt)) {
		c = &memoryCount{expiresAt: now.Add(m.window)}
		m.counts[key] = c
		m.dropExpired(now)
	}
	c.n++
	return c.n, nil
}

func (m *MemoryCounter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counts, key)
	return nil
}

// dropExpired bounds the map to patterns seen within the window.
func (m *MemoryCounter) dropExpired(now time.Time) {
	if m.window <= 0 {
		return
	}
	for k, c := range m.counts {
		if !now.Before(c.expiresAt) {
			delete(m.counts, k)
		}
	}
}

// PatternTracker counts how often a query pattern is seen and reports it as
// hot once the count reaches the threshold.
type PatternTracker struct {
	store     CountingStore
	threshold int64
}

func NewPatternTracker(store CountingStore, threshold int64) *PatternTracker {
	if threshold < 1 {
		threshold = 1
	}
	return &PatternTracker{store: store, threshold: threshold}
}

func (t *PatternTracker) Observe(ctx context.Context, pattern string) (bool, error) {
	n, err := t.store.Incr(ctx, pattern)
	if err != nil {
		return false, fmt.Errorf("count pattern: %w", err)
	}
	return n >= t.threshold, nil
}

func (t *PatternTracker) Forget(ctx context.Context, pattern string) error {
	return t.store.Reset(ctx, pattern)
}
