package domain

import "time"

type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobState is the durable progress record of one named job. Fields past
// Status are additive; readers that predate them ignore them.
type JobState struct {
	Name           string    `db:"name" json:"name"`
	Cursor         *string   `db:"cursor" json:"cursor"`
	LastRunAt      time.Time `db:"last_run_at" json:"lastRunAt"`
	TotalProcessed int64     `db:"total_processed" json:"totalProcessed"`
	Status         JobStatus `db:"status" json:"status"`

	LastError      *string    `db:"last_error" json:"lastError,omitempty"`
	LastBatchCount int        `db:"last_batch_count" json:"lastBatchCount,omitempty"`
	PassStartedAt  *time.Time `db:"pass_started_at" json:"passStartedAt,omitempty"`
	Watermark      *time.Time `db:"watermark" json:"watermark,omitempty"`
}

// NewJobState returns the state of a job that has never run.
func NewJobState(name string) *JobState {
	return &JobState{Name: name, Status: JobStatusIdle}
}

// Resumable reports whether the next run continues an unfinished pass.
func (s *JobState) Resumable() bool {
	return s.Cursor != nil && (s.Status == JobStatusInProgress || s.Status == JobStatusFailed)
}

// SyncStats holds statistics about a sync run.
type SyncStats struct {
	Job        string
	RunID      string
	Pages      int
	Fetched    int
	Upserted   int
	Skipped    int
	Unresolved int
	Published  int
	Errors     int
	Completed  bool
	Duration   time.Duration
}

type EntityKind string

const (
	EntityProduct    EntityKind = "product"
	EntityCollection EntityKind = "collection"
	EntityOrder      EntityKind = "order"
)

type EventAction string

const (
	EventUpserted EventAction = "upserted"
	EventDeleted  EventAction = "deleted"
)

// Event announces a change to the local catalog copy.
type Event struct {
	Kind       EntityKind  `json:"kind"`
	Action     EventAction `json:"action"`
	ExternalID int64       `json:"externalId"`
	Handle     string      `json:"handle,omitempty"`
	Job        string      `json:"job,omitempty"`
}
