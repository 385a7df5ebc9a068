package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"catalog_sync/internal/config"
	"catalog_sync/internal/domain"
	"catalog_sync/internal/reconcile"
	"catalog_sync/internal/transform"
	"catalog_sync/internal/upstream"
)

const (
	JobFullSync           = "full_sync"
	JobIncrementalSync    = "incremental_sync"
	JobOrderSync          = "order_sync"
	JobCollectionSync     = "collection_sync"
	JobCollectionProducts = "collection_products"

	collectionStatePrefix = JobCollectionProducts + ":"
)

// Job is one runnable unit of synchronization.
type Job interface {
	Run(ctx context.Context) (*domain.SyncStats, error)
}

type JobFunc func(ctx context.Context) (*domain.SyncStats, error)

func (f JobFunc) Run(ctx context.Context) (*domain.SyncStats, error) {
	return f(ctx)
}

type Sources struct {
	Products    PageSource[upstream.ProductRecord]
	Collections PageSource[upstream.CollectionRecord]
	Orders      PageSource[upstream.OrderRecord]
	// CollectionProducts returns the product source scoped to one collection.
	CollectionProducts func(collectionID int64) PageSource[upstream.ProductRecord]
}

type Stores struct {
	Products    ProductStore
	Collections CollectionStore
	Orders      OrderStore
	States      JobStateStore
	Tx          TransactionManager
}

// Catalog builds the sync jobs over one upstream catalog and serves the
// delete signals that arrive outside of a pull.
type Catalog struct {
	sources    Sources
	stores     Stores
	publisher  Publisher
	reconciler *reconcile.CollectionReconciler
	cfg        config.SyncConfig
	now        func() time.Time
	logger     *slog.Logger
}

func NewCatalog(sources Sources, stores Stores, publisher Publisher, cfg config.SyncConfig, logger *slog.Logger) *Catalog {
	return &Catalog{
		sources:    sources,
		stores:     stores,
		publisher:  publisher,
		reconciler: reconcile.NewCollectionReconciler(stores.Collections, logger),
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
	}
}

// Jobs returns every job the configured sources can serve, keyed by name.
func (c *Catalog) Jobs() map[string]Job {
	jobs := make(map[string]Job)
	if c.sources.Products != nil {
		jobs[JobFullSync] = c.productPipeline(JobFullSync, c.sources.Products, nil, nil)
		jobs[JobIncrementalSync] = c.productPipeline(JobIncrementalSync, c.sources.Products, updatedSince, nil)
	}
	if c.sources.Orders != nil && c.stores.Orders != nil {
		jobs[JobOrderSync] = c.orderPipeline()
	}
	if c.sources.Collections != nil {
		jobs[JobCollectionSync] = c.collectionPipeline()
	}
	if c.sources.CollectionProducts != nil {
		jobs[JobCollectionProducts] = JobFunc(c.syncCollectionProducts)
	}
	return jobs
}

func (c *Catalog) deps() Deps {
	return Deps{
		States:    c.stores.States,
		Tx:        c.stores.Tx,
		Publisher: c.publisher,
		Now:       c.now,
	}
}

func (c *Catalog) productPipeline(
	name string,
	source PageSource[upstream.ProductRecord],
	filter func(*domain.JobState) string,
	onComplete func(context.Context, *domain.JobState) error,
) *Pipeline[upstream.ProductRecord, *domain.Product] {
	return NewPipeline(name, Stages[upstream.ProductRecord, *domain.Product]{
		Source:     source,
		Transform:  transform.Product,
		Reconcile:  c.reconciler,
		Upsert:     validated(c.stores.Products.Upsert),
		Event:      productEvent,
		Filter:     filter,
		OnComplete: onComplete,
	}, c.deps(), c.cfg, c.logger)
}

func (c *Catalog) orderPipeline() *Pipeline[upstream.OrderRecord, *domain.Order] {
	return NewPipeline(JobOrderSync, Stages[upstream.OrderRecord, *domain.Order]{
		Source:    c.sources.Orders,
		Transform: transform.Order,
		Upsert:    validated(c.stores.Orders.Upsert),
		Event:     orderEvent,
		Filter:    updatedSince,
	}, c.deps(), c.cfg, c.logger)
}

func (c *Catalog) collectionPipeline() *Pipeline[upstream.CollectionRecord, *domain.Collection] {
	upsert := validated(c.stores.Collections.Upsert)
	return NewPipeline(JobCollectionSync, Stages[upstream.CollectionRecord, *domain.Collection]{
		Source:    c.sources.Collections,
		Transform: transform.Collection,
		Upsert: func(ctx context.Context, col *domain.Collection) error {
			col.SyncedAt = c.now()
			return upsert(ctx, col)
		},
		Event:      collectionEvent,
		OnComplete: c.sweepCollections,
	}, c.deps(), c.cfg, c.logger)
}

// sweepCollections removes collections that a completed full pass did not
// touch and prunes their handles from products.
func (c *Catalog) sweepCollections(ctx context.Context, state *domain.JobState) error {
	if state.PassStartedAt == nil {
		return nil
	}

	var removed []domain.Collection
	err := withTx(ctx, c.stores.Tx, func(txCtx context.Context) error {
		var err error
		removed, err = c.stores.Collections.DeleteStale(txCtx, *state.PassStartedAt)
		if err != nil {
			return fmt.Errorf("delete stale collections: %w", err)
		}
		return c.pruneHandles(txCtx, removed)
	})
	if err != nil {
		return err
	}

	for i := range removed {
		c.afterCollectionRemoved(ctx, &removed[i])
	}
	if len(removed) > 0 {
		c.logger.Info("swept stale collections", "job", JobCollectionSync, "removed", len(removed))
	}
	return nil
}

// DeleteProduct soft-deletes a product after an upstream delete signal.
func (c *Catalog) DeleteProduct(ctx context.Context, externalID int64) error {
	product, err := c.stores.Products.SoftDelete(ctx, externalID)
	if err != nil {
		return fmt.Errorf("soft delete product %d: %w", externalID, err)
	}

	c.logger.Info("product deleted", "external_id", externalID, "handle", product.Handle)
	c.publishDeleted(ctx, domain.EntityProduct, product.ExternalID, product.Handle)
	return nil
}

// DeleteCollection removes a collection, prunes its handle from every
// product and drops its scoped sync state.
func (c *Catalog) DeleteCollection(ctx context.Context, externalID int64) error {
	var removed *domain.Collection
	err := withTx(ctx, c.stores.Tx, func(txCtx context.Context) error {
		var err error
		removed, err = c.stores.Collections.Delete(txCtx, externalID)
		if err != nil {
			return err
		}
		return c.pruneHandles(txCtx, []domain.Collection{*removed})
	})
	if err != nil {
		return fmt.Errorf("delete collection %d: %w", externalID, err)
	}

	c.logger.Info("collection deleted", "external_id", externalID, "handle", removed.Handle)
	c.afterCollectionRemoved(ctx, removed)
	return nil
}

func (c *Catalog) pruneHandles(ctx context.Context, removed []domain.Collection) error {
	if len(removed) == 0 {
		return nil
	}
	handles := make([]string, 0, len(removed))
	for _, col := range removed {
		handles = append(handles, col.Handle)
	}
	if _, err := c.stores.Products.RemoveCollectionHandles(ctx, handles); err != nil {
		return fmt.Errorf("prune collection handles: %w", err)
	}
	return nil
}

func (c *Catalog) afterCollectionRemoved(ctx context.Context, col *domain.Collection) {
	name := CollectionStateName(col.ExternalID)
	if err := c.stores.States.Delete(ctx, name); err != nil && !errors.Is(err, domain.ErrNotFound) {
		c.logger.Warn("purge collection state failed", "state", name, "error", err)
	}
	c.publishDeleted(ctx, domain.EntityCollection, col.ExternalID, col.Handle)
}

func (c *Catalog) publishDeleted(ctx context.Context, kind domain.EntityKind, id int64, handle string) {
	if c.publisher == nil {
		return
	}
	event := domain.Event{Kind: kind, Action: domain.EventDeleted, ExternalID: id, Handle: handle}
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("publish event failed", "external_id", id, "error", err)
	}
}

// syncCollectionProducts pulls the products of every local collection, one
// collection-scoped state each. A state is removed once its collection has
// been fully paged, and states of collections that no longer exist are
// purged up front.
func (c *Catalog) syncCollectionProducts(ctx context.Context) (*domain.SyncStats, error) {
	start := c.now()
	stats := &domain.SyncStats{Job: JobCollectionProducts, RunID: uuid.NewString()}
	logger := c.logger.With("job", JobCollectionProducts, "run_id", stats.RunID)

	collections, err := c.stores.Collections.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("list collections: %w", err)
	}

	if err := c.purgeOrphanStates(ctx, logger, collections); err != nil {
		return stats, err
	}

	dropState := func(ctx context.Context, state *domain.JobState) error {
		return c.stores.States.Delete(ctx, state.Name)
	}

	var errs []error
	for _, col := range collections {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		name := CollectionStateName(col.ExternalID)
		pipeline := c.productPipeline(name, c.sources.CollectionProducts(col.ExternalID), nil, dropState)

		runStats, err := pipeline.Run(ctx)
		mergeStats(stats, runStats)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("collection %d: %w", col.ExternalID, err))
		}
	}

	stats.Completed = len(errs) == 0
	stats.Duration = c.now().Sub(start)
	logger.Info("collection products synced",
		"collections", len(collections),
		"upserted", stats.Upserted,
		"failed", len(errs),
	)
	return stats, errors.Join(errs...)
}

func (c *Catalog) purgeOrphanStates(ctx context.Context, logger *slog.Logger, collections []domain.Collection) error {
	live := make(map[string]struct{}, len(collections))
	for _, col := range collections {
		live[CollectionStateName(col.ExternalID)] = struct{}{}
	}

	states, err := c.stores.States.List(ctx)
	if err != nil {
		return fmt.Errorf("list states: %w", err)
	}
	for _, state := range states {
		if !IsCollectionState(state.Name) {
			continue
		}
		if _, ok := live[state.Name]; ok {
			continue
		}
		if err := c.stores.States.Delete(ctx, state.Name); err != nil {
			return fmt.Errorf("purge state %s: %w", state.Name, err)
		}
		logger.Info("purged state of removed collection", "state", state.Name)
	}
	return nil
}

func CollectionStateName(collectionID int64) string {
	return collectionStatePrefix + strconv.FormatInt(collectionID, 10)
}

func IsCollectionState(name string) bool {
	return strings.HasPrefix(name, collectionStatePrefix)
}

func mergeStats(dst, src *domain.SyncStats) {
	if src == nil {
		return
	}
	dst.Pages += src.Pages
	dst.Fetched += src.Fetched
	dst.Upserted += src.Upserted
	dst.Skipped += src.Skipped
	dst.Unresolved += src.Unresolved
	dst.Published += src.Published
	dst.Errors += src.Errors
}
