package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"catalog_sync/internal/domain"
)

// Scheduler triggers registered jobs on their intervals until ctx ends.
type Scheduler interface {
	Start(ctx context.Context, jobs map[string]time.Duration) error
}

type registration struct {
	job      Job
	interval time.Duration
}

// Coordinator owns the job registry and guarantees that no job name runs
// twice at the same time. Distinct jobs may run concurrently.
type Coordinator struct {
	jobs   map[string]registration
	locker Locker
	states JobStateStore
	logger *slog.Logger
}

func NewCoordinator(locker Locker, states JobStateStore, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		jobs:   make(map[string]registration),
		locker: locker,
		states: states,
		logger: logger.With("component", "coordinator"),
	}
}

// Register adds a job. A zero interval registers a job that only runs on
// demand or during recovery.
func (c *Coordinator) Register(name string, job Job, interval time.Duration) {
	c.jobs[name] = registration{job: job, interval: interval}
}

func (c *Coordinator) JobNames() []string {
	names := make([]string, 0, len(c.jobs))
	for name := range c.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunJob satisfies the scheduler's runner contract.
func (c *Coordinator) RunJob(ctx context.Context, name string) error {
	_, err := c.Run(ctx, name)
	return err
}

// Run executes one job under its lock. It returns domain.ErrJobRunning when
// the job is already running here or on another replica.
func (c *Coordinator) Run(ctx context.Context, name string) (*domain.SyncStats, error) {
	reg, ok := c.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJob, name)
	}

	release, err := c.locker.Acquire(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrJobRunning) {
			c.logger.Info("job already running, skipping trigger", "job", name)
		}
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("release job lock failed", "job", name, "error", err)
		}
	}()

	stats, err := reg.job.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			c.logger.Info("job interrupted", "job", name)
		} else {
			c.logger.Error("job failed", "job", name, "error", err)
		}
		return stats, err
	}
	return stats, nil
}

// Recover resumes jobs whose state was left in progress by an interrupted
// process. Collection-scoped states resume through the collection job.
func (c *Coordinator) Recover(ctx context.Context) error {
	states, err := c.states.ListByStatus(ctx, domain.JobStatusInProgress)
	if err != nil {
		return fmt.Errorf("list in-progress states: %w", err)
	}

	seen := make(map[string]struct{})
	var names []string
	for _, state := range states {
		name := state.Name
		if IsCollectionState(name) {
			name = JobCollectionProducts
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := c.jobs[name]; !ok {
			c.logger.Warn("in-progress state for unregistered job", "job", name)
			continue
		}
		c.logger.Info("recovering interrupted job", "job", name)
		if _, err := c.Run(ctx, name); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, domain.ErrJobRunning) {
				c.logger.Error("recovery run failed", "job", name, "error", err)
			}
		}
	}
	return nil
}

// Start recovers interrupted jobs and then hands the scheduled jobs to the
// scheduler. It blocks until the scheduler returns.
func (c *Coordinator) Start(ctx context.Context, sched Scheduler) error {
	if err := c.Recover(ctx); err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	schedule := make(map[string]time.Duration)
	for name, reg := range c.jobs {
		if reg.interval > 0 {
			schedule[name] = reg.interval
		}
	}
	return sched.Start(ctx, schedule)
}

// Status returns the persisted state of every registered job, including
// collection-scoped states, ordered by name.
func (c *Coordinator) Status(ctx context.Context) ([]domain.JobState, error) {
	stored, err := c.states.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}

	byName := make(map[string]domain.JobState, len(stored))
	for _, state := range stored {
		byName[state.Name] = state
	}
	for name := range c.jobs {
		if _, ok := byName[name]; !ok {
			byName[name] = *domain.NewJobState(name)
		}
	}

	out := make([]domain.JobState, 0, len(byName))
	for _, state := range byName {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Reset discards a job's state so its next run starts a fresh pass with
// zeroed counters. Resetting the collection job also drops every
// collection-scoped state.
func (c *Coordinator) Reset(ctx context.Context, name string) error {
	if _, ok := c.jobs[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownJob, name)
	}

	release, err := c.locker.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("release job lock failed", "job", name, "error", err)
		}
	}()

	if err := c.states.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete state %s: %w", name, err)
	}

	if name == JobCollectionProducts {
		states, err := c.states.List(ctx)
		if err != nil {
			return fmt.Errorf("list states: %w", err)
		}
		for _, state := range states {
			if !IsCollectionState(state.Name) {
				continue
			}
			if err := c.states.Delete(ctx, state.Name); err != nil {
				return fmt.Errorf("delete state %s: %w", state.Name, err)
			}
		}
	}

	c.logger.Info("job state reset", "job", name)
	return nil
}
