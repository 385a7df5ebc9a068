package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"catalog_sync/internal/config"
	"catalog_sync/internal/domain"
	"catalog_sync/internal/reconcile"
	"catalog_sync/internal/upstream"
)

type Reconciler[E any] interface {
	Reconcile(ctx context.Context, batch []E) (reconcile.Report, error)
}

// Stages is the per-entity behavior plugged into a Pipeline. Reconcile,
// Event, Filter and OnComplete are optional.
type Stages[R, E any] struct {
	Source    PageSource[R]
	Transform func(R) (E, error)
	Reconcile Reconciler[E]
	Upsert    func(ctx context.Context, entity E) error
	Event     func(E) domain.Event
	// Filter builds the upstream predicate for a run from the loaded state.
	Filter func(state *domain.JobState) string
	// OnComplete runs after a pass has been persisted as completed.
	OnComplete func(ctx context.Context, state *domain.JobState) error
}

type Deps struct {
	States    JobStateStore
	Tx        TransactionManager
	Publisher Publisher
	Now       func() time.Time
}

// Pipeline pulls one job's pages in order, pushing each batch through
// transform, reconcile and upsert before the cursor is advanced.
//
// The state moves Idle -> Fetching -> Processing -> Persisting and then
// back to Fetching while pages remain, to Idle on completion, or to Failed
// on a fetch or store error. A failed run keeps its last good cursor, so
// the next run resumes where this one stopped.
type Pipeline[R, E any] struct {
	name   string
	stages Stages[R, E]
	deps   Deps
	cfg    config.SyncConfig
	logger *slog.Logger
}

func NewPipeline[R, E any](name string, stages Stages[R, E], deps Deps, cfg config.SyncConfig, logger *slog.Logger) *Pipeline[R, E] {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline[R, E]{
		name:   name,
		stages: stages,
		deps:   deps,
		cfg:    cfg,
		logger: logger.With("job", name),
	}
}

func (p *Pipeline[R, E]) Name() string {
	return p.name
}

func (p *Pipeline[R, E]) Run(ctx context.Context) (*domain.SyncStats, error) {
	start := p.deps.Now()
	stats := &domain.SyncStats{Job: p.name, RunID: uuid.NewString()}
	logger := p.logger.With("run_id", stats.RunID)
	defer func() {
		stats.Duration = p.deps.Now().Sub(start)
	}()

	state, err := p.deps.States.Get(ctx, p.name)
	if err != nil {
		return stats, fmt.Errorf("load state: %w", err)
	}

	resumed := state.Resumable()
	if !resumed {
		state.Cursor = nil
		passStart := start
		state.PassStartedAt = &passStart
	} else if state.PassStartedAt == nil {
		passStart := start
		state.PassStartedAt = &passStart
	}
	state.Status = domain.JobStatusInProgress
	state.LastRunAt = start
	state.LastError = nil

	if err := p.saveState(ctx, logger, state); err != nil {
		return stats, fmt.Errorf("mark running: %w", err)
	}

	var filter string
	if p.stages.Filter != nil {
		filter = p.stages.Filter(state)
	}

	logger.Info("pipeline started",
		"resumed", resumed,
		"cursor", cursorValue(state.Cursor),
		"filter", filter,
		"total_processed", state.TotalProcessed,
	)

	for {
		if p.cfg.MaxPagesPerRun > 0 && stats.Pages >= p.cfg.MaxPagesPerRun {
			logger.Info("page limit reached, pass continues on next run",
				"pages", stats.Pages,
				"cursor", cursorValue(state.Cursor),
			)
			return stats, nil
		}

		logger.Debug("pipeline state", "state", "fetching", "cursor", cursorValue(state.Cursor))
		page, err := p.fetch(ctx, state.Cursor, filter)
		if err != nil {
			return stats, p.fail(ctx, logger, state, fmt.Errorf("fetch page: %w", err))
		}
		stats.Pages++
		stats.Fetched += len(page.Records)

		logger.Debug("pipeline state", "state", "processing", "records", len(page.Records))
		entities := p.transform(logger, page.Records, stats)

		if err := p.reconcile(ctx, entities, stats); err != nil {
			return stats, p.fail(ctx, logger, state, err)
		}

		logger.Debug("pipeline state", "state", "persisting", "entities", len(entities))
		written, err := p.upsertBatch(ctx, logger, entities, stats)
		if err != nil {
			return stats, p.fail(ctx, logger, state, err)
		}

		done := !page.HasMore || page.NextCursor == ""
		if page.HasMore && page.NextCursor == "" {
			logger.Warn("upstream reported more pages without a cursor, ending pass")
		}

		state.TotalProcessed += int64(len(written))
		state.LastBatchCount = len(page.Records)
		state.LastRunAt = p.deps.Now()
		if done {
			state.Status = domain.JobStatusCompleted
			state.Cursor = nil
			state.Watermark = state.PassStartedAt
		} else {
			next := page.NextCursor
			state.Cursor = &next
		}

		if err := p.saveState(ctx, logger, state); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			return stats, fmt.Errorf("persist state: %w", err)
		}

		p.publish(ctx, logger, written, stats)

		if done {
			stats.Completed = true
			if p.stages.OnComplete != nil {
				if err := p.stages.OnComplete(ctx, state); err != nil {
					stats.Errors++
					logger.Error("completion hook failed", "error", err)
				}
			}
			logger.Info("pipeline completed",
				"pages", stats.Pages,
				"fetched", stats.Fetched,
				"upserted", stats.Upserted,
				"skipped", stats.Skipped,
				"unresolved", stats.Unresolved,
				"published", stats.Published,
				"errors", stats.Errors,
				"total_processed", state.TotalProcessed,
			)
			return stats, nil
		}

		if err := sleep(ctx, p.cfg.BatchDelay); err != nil {
			logger.Info("pipeline cancelled between batches", "cursor", cursorValue(state.Cursor))
			return stats, err
		}
	}
}

func (p *Pipeline[R, E]) fetch(ctx context.Context, cursor *string, filter string) (*upstream.Page[R], error) {
	fetchCtx := ctx
	if p.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.cfg.FetchTimeout)
		defer cancel()
	}

	req := upstream.PageRequest{Filter: filter, Limit: p.cfg.PageSize}
	if cursor != nil {
		req.Cursor = *cursor
	}

	page, err := p.stages.Source.FetchPage(fetchCtx, req)
	if err != nil {
		if !errors.Is(err, domain.ErrFetch) {
			err = fmt.Errorf("%w: %w", domain.ErrFetch, err)
		}
		return nil, err
	}
	if page == nil {
		return &upstream.Page[R]{}, nil
	}
	return page, nil
}

// transform maps every record; records that cannot be mapped are skipped.
func (p *Pipeline[R, E]) transform(logger *slog.Logger, records []R, stats *domain.SyncStats) []E {
	entities := make([]E, 0, len(records))
	for _, rec := range records {
		entity, err := p.stages.Transform(rec)
		if err != nil {
			stats.Skipped++
			logger.Warn("skipping record", "stage", "transform", "error", err)
			continue
		}
		entities = append(entities, entity)
	}
	return entities
}

func (p *Pipeline[R, E]) reconcile(ctx context.Context, entities []E, stats *domain.SyncStats) error {
	if p.stages.Reconcile == nil || len(entities) == 0 {
		return nil
	}
	report, err := p.stages.Reconcile.Reconcile(ctx, entities)
	if err != nil {
		return fmt.Errorf("reconcile batch: %w", err)
	}
	stats.Unresolved += report.Unresolved
	return nil
}

// upsertBatch writes the batch in one transaction. Records rejected as
// invalid are skipped; any other store error rolls the batch back.
func (p *Pipeline[R, E]) upsertBatch(ctx context.Context, logger *slog.Logger, entities []E, stats *domain.SyncStats) ([]E, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	var written []E
	var skipped int
	err := withTx(ctx, p.deps.Tx, func(txCtx context.Context) error {
		written = written[:0]
		skipped = 0
		for _, entity := range entities {
			err := p.stages.Upsert(txCtx, entity)
			switch classify(err) {
			case outcomeOK:
				written = append(written, entity)
			case outcomeSkip:
				skipped++
				logger.Warn("skipping record", "stage", "upsert", "error", err)
			default:
				return fmt.Errorf("upsert: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.Upserted += len(written)
	stats.Skipped += skipped
	return written, nil
}

func (p *Pipeline[R, E]) publish(ctx context.Context, logger *slog.Logger, written []E, stats *domain.SyncStats) {
	if p.deps.Publisher == nil || p.stages.Event == nil {
		return
	}
	for _, entity := range written {
		event := p.stages.Event(entity)
		event.Job = p.name
		if err := p.deps.Publisher.Publish(ctx, event); err != nil {
			stats.Errors++
			logger.Warn("publish event failed", "external_id", event.ExternalID, "error", err)
			continue
		}
		stats.Published++
	}
}

// fail records a failed run, keeping the last good cursor. A cancelled
// context is not a failure: the state stays in progress for recovery.
func (p *Pipeline[R, E]) fail(ctx context.Context, logger *slog.Logger, state *domain.JobState, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Info("pipeline cancelled", "cursor", cursorValue(state.Cursor))
		return ctxErr
	}

	msg := err.Error()
	state.Status = domain.JobStatusFailed
	state.LastError = &msg
	state.LastRunAt = p.deps.Now()

	logger.Error("pipeline failed",
		"state", "failed",
		"cursor", cursorValue(state.Cursor),
		"error", err,
	)

	if saveErr := p.saveState(ctx, logger, state); saveErr != nil {
		return errors.Join(err, fmt.Errorf("persist failed state: %w", saveErr))
	}
	return err
}

func (p *Pipeline[R, E]) saveState(ctx context.Context, logger *slog.Logger, state *domain.JobState) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.StateRetry.InitialBackoff
	if p.cfg.StateRetry.MaxBackoff > 0 {
		b.MaxInterval = p.cfg.StateRetry.MaxBackoff
	}
	b.MaxElapsedTime = 0

	attempts := p.cfg.StateRetry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	return backoff.RetryNotify(
		func() error {
			return p.deps.States.Save(ctx, state)
		},
		policy,
		func(err error, next time.Duration) {
			logger.Warn("persist state failed, retrying", "error", err, "retry_in", next)
		},
	)
}

func withTx(ctx context.Context, tx TransactionManager, fn func(ctx context.Context) error) error {
	if tx == nil {
		return fn(ctx)
	}
	return tx.WithTransaction(ctx, fn)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cursorValue(cursor *string) string {
	if cursor == nil {
		return ""
	}
	return *cursor
}
