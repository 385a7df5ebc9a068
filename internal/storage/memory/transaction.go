package memory

import (
	"context"
	"sync"
)

// TransactionManager serializes transactional sections. It cannot roll
// back writes made before fn fails.
type TransactionManager struct {
	mu sync.Mutex
}

func NewTransactionManager() *TransactionManager {
	return &TransactionManager{}
}

func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return fn(ctx)
}
