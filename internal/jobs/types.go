package jobs

import (
	"context"
	"slices"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeInterestSweep applies due interest across every account.
	JobTypeInterestSweep JobType = "interest_sweep"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusPartial indicates the sweep finished but some accounts failed.
	JobStatusPartial JobStatus = "partial"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// AccountFailure is one account the sweep could not process.
type AccountFailure struct {
	AccountNumber string `json:"account_number"`
	Error         string `json:"error"`
}

// InterestRun is the record of one interest sweep.
type InterestRun struct {
	// JobID is the unique identifier for this run.
	JobID string `json:"job_id"`

	Trigger Trigger `json:"trigger"`

	// AsOf is the accrual instant. Zero means "when the run starts".
	AsOf time.Time `json:"as_of"`

	// Status is the current status of the run.
	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Scanned counts every account looked at; each one ends up applied, skipped or failed.
	Scanned  int              `json:"scanned"`
	Applied  int              `json:"applied"`
	Skipped  int              `json:"skipped"`
	Failures []AccountFailure `json:"failures,omitempty"`

	// Error contains error details if the run failed as a whole.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Clone returns a copy that shares no slices with r.
func (r *InterestRun) Clone() *InterestRun {
	cp := *r
	cp.Failures = slices.Clone(r.Failures)
	if r.StartedAt != nil {
		t := *r.StartedAt
		cp.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (r *InterestRun) GetID() string {
	return r.JobID
}

// GetType implements the Job interface.
func (r *InterestRun) GetType() JobType {
	return JobTypeInterestSweep
}

// GetStatus implements the Job interface.
func (r *InterestRun) GetStatus() JobStatus {
	return r.Status
}

// Publisher enqueues on-demand sweeps.
type Publisher interface {
	// PublishInterestRun enqueues a sweep.
	PublishInterestRun(ctx context.Context, run *InterestRun) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// RunStore keeps interest run records.
type RunStore interface {
	// SaveRun saves or updates a run.
	SaveRun(ctx context.Context, run *InterestRun) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id string) (*InterestRun, error)

	// ListRuns retrieves runs, newest first, with optional filtering.
	ListRuns(ctx context.Context, filter RunFilter) ([]*InterestRun, error)
}

// RunFilter defines filtering criteria for listing runs.
type RunFilter struct {
	Trigger Trigger
	Status  JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
