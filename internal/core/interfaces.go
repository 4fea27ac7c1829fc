// Package core provides the service-facing ports for the clipforge job system.
package core

import (
	"context"
	"time"

	"github.com/clipforge/clipforge/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// FailJobParams groups parameters for JobRepository.Fail.
type FailJobParams struct {
	ID           string
	ErrMsg       string
	NonRetryable bool
}

// JobListOptions control job listing pagination and filtering.
type JobListOptions struct {
	Status model.JobStatus
	Type   model.JobType
	Limit  int
	Offset int
}

// JobRepository defines the interface for job data operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ReserveNext(ctx context.Context, jobType model.JobType, leaseSeconds int) (*model.Job, error)
	WaitForNotification(ctx context.Context, jobType model.JobType) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	UpdateProgress(ctx context.Context, jobID string, progress *model.Progress) (bool, error)
	Complete(ctx context.Context, id string, result *model.JobResult) (bool, error)
	// Fail either schedules a retry with backoff or, when the retry budget is
	// exhausted or the error is non-retryable, marks the job failed and writes
	// a dead letter row in the same transaction. The returned status reports
	// which path was taken.
	Fail(ctx context.Context, params FailJobParams) (model.JobStatus, error)
	Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error)
	List(ctx context.Context, opts *JobListOptions) ([]*model.Job, error)
	Delete(ctx context.Context, id string) error
}

// DeadLetterRepository defines the interface for dead letter data operations.
type DeadLetterRepository interface {
	List(ctx context.Context, limit, offset int) ([]*model.DeadLetter, error)
	GetByJobID(ctx context.Context, jobID string) (*model.DeadLetter, error)
}

// EventBus fans job progress events out to stream subscribers, possibly
// across processes.
type EventBus interface {
	// Publish delivers an event to all current subscribers of the job's
	// channel. Delivery is best effort; a publish to a channel with no
	// subscribers is not an error.
	Publish(ctx context.Context, event *model.ProgressEvent) error

	// Subscribe returns a channel of events for the given job and a cancel
	// function that releases the subscription. The channel is closed after
	// cancel is called.
	Subscribe(ctx context.Context, jobID string) (<-chan *model.ProgressEvent, func(), error)
}

// CacheRepository defines the interface for caching operations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// PlaylistLister resolves the flat item listing of a playlist URL.
type PlaylistLister interface {
	List(ctx context.Context, url string) (*model.PlaylistListing, error)
}

// ProgressFunc receives progress updates while a job handler runs.
type ProgressFunc func(ctx context.Context, progress *model.Progress)

// JobHandler executes one reserved job and returns its result.
type JobHandler interface {
	Handle(ctx context.Context, job *model.Job, report ProgressFunc) (*model.JobResult, error)
}

// JobHandlerFunc adapts a function to the JobHandler interface.
type JobHandlerFunc func(ctx context.Context, job *model.Job, report ProgressFunc) (*model.JobResult, error)

// Handle implements JobHandler.
func (f JobHandlerFunc) Handle(
	ctx context.Context,
	job *model.Job,
	report ProgressFunc,
) (*model.JobResult, error) {
	return f(ctx, job, report)
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs to keep param count small.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for job cleanup operations.
type ReaperRepository interface {
	// DeleteOldJobs deletes jobs with the given status older than maxAge.
	// Processes up to batchSize jobs per call to prevent long locks.
	// Returns the IDs of the deleted jobs so callers can remove artifacts.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) ([]string, error)

	// DeleteOldDeadLetters deletes dead letter rows older than maxAge,
	// up to batchSize per call. Returns the number of rows deleted.
	DeleteOldDeadLetters(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}
