// Package data implements the PostgreSQL and Redis backed repositories for
// the clipforge job system.
package data

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/clipforge/clipforge/internal/domain/job"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNotDeletable is returned when attempting to delete a job that is not in a deletable state.
	ErrJobNotDeletable = errors.New("job cannot be deleted (must be in pending, completed, or failed status)")
	// ErrJobReserved is returned when attempting to delete a job that has an active lease.
	ErrJobReserved = errors.New("job is reserved and cannot be deleted")
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Backoff      job.BackoffPolicy
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for job management.
type JobRepo struct {
	DB           *sql.DB
	backoff      job.BackoffPolicy
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	backoff := cfg.Backoff
	if backoff.Base <= 0 {
		backoff = job.DefaultBackoff()
	}

	return &JobRepo{
		DB:           db,
		backoff:      backoff,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

func (r *JobRepo) retryDelay(retryCount int) time.Duration {
	return r.backoff.Delay(retryCount)
}

const jobColumns = `
  id,
  type,
  status,
  payload,
  progress,
  result,
  scheduled_at,
  started_at,
  completed_at,
  retry_count,
  max_retries,
  last_error,
  lease_expires_at,
  created_at,
  updated_at
`
