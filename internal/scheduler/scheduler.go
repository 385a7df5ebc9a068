package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"catalog_sync/internal/domain"
)

// Runner runs one named job to completion or failure.
type Runner interface {
	RunJob(ctx context.Context, name string) error
}

type Config struct {
	// RunTimeout bounds a single run; zero means no bound.
	RunTimeout time.Duration
	// RunOnStart triggers every job once before its first tick.
	RunOnStart bool
}

// Scheduler triggers each job on its own ticker in its own goroutine.
type Scheduler struct {
	runner Runner
	cfg    Config
	logger *slog.Logger
}

func NewScheduler(runner Runner, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: logger.With("component", "scheduler"),
	}
}

// Start blocks until ctx is done. Jobs with a non-positive interval are
// not scheduled.
func (s *Scheduler) Start(ctx context.Context, jobs map[string]time.Duration) error {
	names := make([]string, 0, len(jobs))
	for name, interval := range jobs {
		if interval > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	s.logger.Info("scheduler started", "jobs", names)

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string, interval time.Duration) {
			defer wg.Done()
			s.loop(ctx, name, interval)
		}(name, jobs[name])
	}

	<-ctx.Done()
	wg.Wait()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration) {
	if s.cfg.RunOnStart {
		s.run(ctx, name)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, name)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, name string) {
	runCtx := ctx
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	err := s.runner.RunJob(runCtx, name)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrJobRunning):
		s.logger.Info("job still running, skipping tick", "job", name)
	case ctx.Err() != nil:
		s.logger.Info("job interrupted by shutdown", "job", name)
	default:
		s.logger.Error("job failed", "job", name, "error", err)
	}
}
