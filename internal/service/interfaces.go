package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"catalog_sync/internal/domain"
	"catalog_sync/internal/lock"
	"catalog_sync/internal/upstream"
)

type PageSource[R any] interface {
	FetchPage(ctx context.Context, req upstream.PageRequest) (*upstream.Page[R], error)
}

type ProductStore interface {
	Upsert(ctx context.Context, product *domain.Product) error
	SoftDelete(ctx context.Context, externalID int64) (*domain.Product, error)
	RemoveCollectionHandles(ctx context.Context, handles []string) (int64, error)
}

type CollectionStore interface {
	Upsert(ctx context.Context, collection *domain.Collection) error
	HandlesByTitle(ctx context.Context) (map[string]string, error)
	List(ctx context.Context) ([]domain.Collection, error)
	DeleteStale(ctx context.Context, syncedBefore time.Time) ([]domain.Collection, error)
	Delete(ctx context.Context, externalID int64) (*domain.Collection, error)
}

type OrderStore interface {
	Upsert(ctx context.Context, order *domain.Order) error
}

// JobStateStore persists job progress. Get returns a fresh idle state for
// unknown names. Save creates the state or updates it if the stored copy is
// not newer.
type JobStateStore interface {
	Get(ctx context.Context, name string) (*domain.JobState, error)
	Save(ctx context.Context, state *domain.JobState) error
	ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.JobState, error)
	List(ctx context.Context) ([]domain.JobState, error)
	Delete(ctx context.Context, name string) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
	Close() error
}

type Locker interface {
	Acquire(ctx context.Context, name string) (lock.Release, error)
}
