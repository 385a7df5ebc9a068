package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"catalog_sync/internal/domain"
)

const jobStateColumns = `name, cursor, last_run_at, total_processed, status,
	last_error, last_batch_count, pass_started_at, watermark`

type JobStateStore struct {
	db *sqlx.DB
}

func NewJobStateStore(db *sqlx.DB) *JobStateStore {
	return &JobStateStore{db: db}
}

func (s *JobStateStore) Get(ctx context.Context, name string) (*domain.JobState, error) {
	var state domain.JobState
	query := `SELECT ` + jobStateColumns + ` FROM job_state WHERE name = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		// Jobs that never ran start idle.
		return domain.NewJobState(name), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job state %s: %w", name, err)
	}
	return &state, nil
}

// Save creates the state or overwrites it unless the stored copy has a
// later last_run_at.
func (s *JobStateStore) Save(ctx context.Context, state *domain.JobState) error {
	query := `
		INSERT INTO job_state (
			name, cursor, last_run_at, total_processed, status,
			last_error, last_batch_count, pass_started_at, watermark
		) VALUES (
			:name, :cursor, :last_run_at, :total_processed, :status,
			:last_error, :last_batch_count, :pass_started_at, :watermark
		)
		ON CONFLICT (name) DO UPDATE SET
			cursor = EXCLUDED.cursor,
			last_run_at = EXCLUDED.last_run_at,
			total_processed = EXCLUDED.total_processed,
			status = EXCLUDED.status,
			last_error = EXCLUDED.last_error,
			last_batch_count = EXCLUDED.last_batch_count,
			pass_started_at = EXCLUDED.pass_started_at,
			watermark = EXCLUDED.watermark
		WHERE job_state.last_run_at <= EXCLUDED.last_run_at`

	if _, err := sqlx.NamedExecContext(ctx, GetExecutor(ctx, s.db), query, state); err != nil {
		return fmt.Errorf("save job state %s: %w", state.Name, err)
	}
	return nil
}

func (s *JobStateStore) ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.JobState, error) {
	var states []domain.JobState
	query := `SELECT ` + jobStateColumns + ` FROM job_state WHERE status = $1 ORDER BY name`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &states, query, status); err != nil {
		return nil, fmt.Errorf("list job states by status %s: %w", status, err)
	}
	return states, nil
}

func (s *JobStateStore) List(ctx context.Context) ([]domain.JobState, error) {
	var states []domain.JobState
	query := `SELECT ` + jobStateColumns + ` FROM job_state ORDER BY name`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &states, query); err != nil {
		return nil, fmt.Errorf("list job states: %w", err)
	}
	return states, nil
}

// Delete removes a job's state. Deleting an absent state is not an error.
func (s *JobStateStore) Delete(ctx context.Context, name string) error {
	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM job_state WHERE name = $1`, name); err != nil {
		return fmt.Errorf("delete job state %s: %w", name, err)
	}
	return nil
}
