// Package lock provides per-job mutual exclusion. LocalLocker guards jobs
// inside one process; RedisLocker extends the guarantee across replicas.
package lock

import (
	"context"
	"sync"

	"catalog_sync/internal/domain"
)

// Release frees a held lock.
type Release func(ctx context.Context) error

type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// Acquire returns domain.ErrJobRunning when name is already held.
func (l *LocalLocker) Acquire(_ context.Context, name string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[name]; ok {
		return nil, domain.ErrJobRunning
	}
	l.held[name] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
