package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"catalog_sync/internal/cache"
	"catalog_sync/internal/config"
	"catalog_sync/internal/lock"
	"catalog_sync/internal/publisher"
	"catalog_sync/internal/query"
	"catalog_sync/internal/service"
	"catalog_sync/internal/source/shopify"
	"catalog_sync/internal/storage/memory"
	"catalog_sync/internal/storage/postgres"
	"catalog_sync/internal/upstream"
)

type productStore interface {
	service.ProductStore
	query.ProductSearcher
}

// app is the wired process: stores, upstream client, job coordinator and
// the cached product query service.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	catalog *service.Catalog
	coord   *service.Coordinator
	query   *query.Service
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	stores, products, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	locker, counter, err := a.openRedis(ctx)
	if err != nil {
		return nil, err
	}

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rabbitMQ.Close)
		pub = rabbitMQ
	}

	client := shopify.New(shopify.Config{
		Endpoint:       cfg.API.Endpoint(),
		Token:          cfg.API.Token,
		PageSize:       cfg.API.PageSize,
		Timeout:        cfg.API.Timeout,
		MaxAttempts:    cfg.API.Retry.MaxAttempts,
		InitialBackoff: cfg.API.Retry.InitialBackoff,
		MaxBackoff:     cfg.API.Retry.MaxBackoff,
		RateLimit:      cfg.API.RateLimit,
		Burst:          cfg.API.Burst,
	}, logger)

	sources := service.Sources{
		Products:    client.Products(),
		Collections: client.Collections(),
		Orders:      client.Orders(),
		CollectionProducts: func(id int64) service.PageSource[upstream.ProductRecord] {
			return client.CollectionProducts(id)
		},
	}

	a.catalog = service.NewCatalog(sources, stores, pub, cfg.Sync, logger)
	a.coord = service.NewCoordinator(locker, stores.States, logger)

	enabled := cfg.Sync.EnabledJobs()
	for name, job := range a.catalog.Jobs() {
		// Disabled jobs stay registered for manual runs.
		a.coord.Register(name, job, enabled[name])
	}

	resultCache := cache.New(
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
		cache.WithSweepInterval(cfg.Cache.SweepInterval),
		cache.WithLogger(logger),
	)
	a.closers = append(a.closers, func() error {
		resultCache.Stop()
		return nil
	})
	a.query = query.NewService(products, resultCache, cache.NewPatternTracker(counter, cfg.Cache.HotThreshold), logger)

	return a, nil
}

func (a *app) openStores(ctx context.Context) (service.Stores, productStore, error) {
	switch a.cfg.Storage.Driver {
	case config.DriverMemory:
		a.logger.Warn("using in-memory storage; state is lost on exit")
		products := memory.NewProductStore()
		return service.Stores{
			Products:    products,
			Collections: memory.NewCollectionStore(),
			Orders:      memory.NewOrderStore(),
			States:      memory.NewJobStateStore(),
			Tx:          memory.NewTransactionManager(),
		}, products, nil
	case config.DriverPostgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", a.cfg.Database.DSN())
		if err != nil {
			return service.Stores{}, nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.logger.Info("connected to database")

		products := postgres.NewProductStore(db)
		return service.Stores{
			Products:    products,
			Collections: postgres.NewCollectionStore(db),
			Orders:      postgres.NewOrderStore(db),
			States:      postgres.NewJobStateStore(db),
			Tx:          postgres.NewTransactionManager(db),
		}, products, nil
	default:
		return service.Stores{}, nil, fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
}

func (a *app) openRedis(ctx context.Context) (service.Locker, cache.CountingStore, error) {
	if !a.cfg.Redis.Enabled {
		return lock.NewLocalLocker(), cache.NewMemoryCounter(a.cfg.Cache.PatternWindow), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.closers = append(a.closers, client.Close)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	a.logger.Info("connected to redis", "addr", a.cfg.Redis.Addr)

	prefix := a.cfg.Redis.KeyPrefix
	return lock.NewRedisLocker(client, prefix+"lock:", a.cfg.Redis.LockTTL),
		cache.NewRedisCounter(client, prefix+"pattern:", a.cfg.Cache.PatternWindow),
		nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
