package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/core"
	"github.com/clipforge/clipforge/internal/domain/model"
	"github.com/clipforge/clipforge/internal/testutil"
)

func videoRequest(maxRetries int) *model.CreateJobRequest {
	return &model.CreateJobRequest{
		Type:       model.JobTypeVideo,
		Payload:    json.RawMessage(`{"url":"https://example.com/watch?v=abc","format":"mp4"}`),
		MaxRetries: maxRetries,
	}
}

// TestJobRepo_Integration_FailRetriesThenDeadLetters walks a job through its
// whole retry budget: the first failure schedules a backoff retry, the last
// one marks the job failed and writes the dead letter in the same transaction.
func TestJobRepo_Integration_FailRetriesThenDeadLetters(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(time.Now().UTC())
		repo := NewJobRepo(db, RepoConfig{TimeProvider: clock})
		ctx := context.Background()

		created, err := repo.Create(ctx, videoRequest(2))
		require.NoError(t, err)

		// First failure: retry budget left, job goes back to pending.
		reserved, err := repo.ReserveNext(ctx, model.JobTypeVideo, 30)
		require.NoError(t, err)
		require.Equal(t, created.ID, reserved.ID)

		status, err := repo.Fail(ctx, core.FailJobParams{ID: created.ID, ErrMsg: "network flake"})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, status)

		job, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, job.RetryCount)
		require.NotNil(t, job.LastError)
		assert.Equal(t, "network flake", *job.LastError)

		// Not eligible again until the backoff elapses.
		_, err = repo.ReserveNext(ctx, model.JobTypeVideo, 30)
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)

		clock.AdvanceTime(time.Hour)

		// Second failure exhausts max_retries=2.
		reserved, err = repo.ReserveNext(ctx, model.JobTypeVideo, 30)
		require.NoError(t, err)
		require.Equal(t, created.ID, reserved.ID)

		status, err = repo.Fail(ctx, core.FailJobParams{ID: created.ID, ErrMsg: "still broken"})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, status)

		job, err = repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, job.Status)
		assert.Equal(t, 2, job.RetryCount)
		require.NotNil(t, job.CompletedAt)

		letter, err := NewDeadLetterRepo(db).GetByJobID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, letter.JobID)
		assert.Equal(t, model.JobTypeVideo, letter.JobType)
		assert.Equal(t, 2, letter.Attempts)
		assert.Equal(t, "still broken", letter.LastError)
		assert.JSONEq(t, string(created.Payload), string(letter.Payload))
	})
}

// TestJobRepo_Integration_FailNonRetryable verifies the short circuit: a
// non-retryable failure dead-letters the job on its first attempt even with
// retry budget remaining.
func TestJobRepo_Integration_FailNonRetryable(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})
		ctx := context.Background()

		created, err := repo.Create(ctx, videoRequest(5))
		require.NoError(t, err)

		_, err = repo.ReserveNext(ctx, model.JobTypeVideo, 30)
		require.NoError(t, err)

		status, err := repo.Fail(ctx, core.FailJobParams{
			ID:           created.ID,
			ErrMsg:       "video is private",
			NonRetryable: true,
		})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, status)

		letter, err := NewDeadLetterRepo(db).GetByJobID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, letter.Attempts)
		assert.Equal(t, "video is private", letter.LastError)

		// Nothing left to reserve; the job must not come back.
		_, err = repo.ReserveNext(ctx, model.JobTypeVideo, 30)
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})
}

// TestJobRepo_Integration_FailRequiresRunningJob verifies Fail only acts on a
// job it can lock in running state.
func TestJobRepo_Integration_FailRequiresRunningJob(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})
		ctx := context.Background()

		_, err := repo.Fail(ctx, core.FailJobParams{ID: uuid.NewString(), ErrMsg: "boom"})
		require.ErrorIs(t, err, ErrJobNotFound)

		created, err := repo.Create(ctx, videoRequest(3))
		require.NoError(t, err)

		// Still pending, never reserved.
		_, err = repo.Fail(ctx, core.FailJobParams{ID: created.ID, ErrMsg: "boom"})
		require.ErrorIs(t, err, ErrJobNotFound)
	})
}
