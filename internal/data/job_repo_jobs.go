package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/clipforge/clipforge/internal/core"
	"github.com/clipforge/clipforge/internal/data/pgxutil"
	"github.com/clipforge/clipforge/internal/domain/model"
)

// Create creates a new job in the database with the given parameters.
func (r *JobRepo) Create(
	ctx context.Context,
	req *model.CreateJobRequest,
) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}

	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	maxRetries := 3
	if req.MaxRetries > 0 {
		maxRetries = req.MaxRetries
	}

	var scheduledAt time.Time
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	} else {
		scheduledAt = r.timeProvider.Now().UTC()
	}

	var created *model.Job
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `
        INSERT INTO jobs(type, status, payload, scheduled_at, max_retries)
        VALUES ($1, 'pending', $2, $3, $4)
        RETURNING `+jobColumns,
				req.Type, []byte(req.Payload), scheduledAt, maxRetries)
			if err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			created, err = collectJobFromRows(rows)
			rows.Close()
			if err != nil {
				return fmt.Errorf("collect job: %w", err)
			}

			channel := "job_added_" + string(req.Type)
			if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, channel, created.ID); execErr != nil {
				return fmt.Errorf("send job notification: %w", execErr)
			}
			return nil
		},
	})
	if txErr != nil {
		return nil, txErr
	}
	return created, nil
}

// collectJobFromRows collects a single job from pgx rows using pgx v5 helpers.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	j, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return j, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	payload, progress, result              []byte
	lastError                              sql.NullString
	startedAt, completedAt, leaseExpiresAt sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, j *model.Job) error {
	return scanner.Scan(
		&j.ID,
		&j.Type,
		&j.Status,
		&d.payload,
		&d.progress,
		&d.result,
		&j.ScheduledAt,
		&d.startedAt,
		&d.completedAt,
		&j.RetryCount,
		&j.MaxRetries,
		&d.lastError,
		&d.leaseExpiresAt,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
}

func (d *jobRowData) apply(j *model.Job) error {
	j.Payload = cloneJSON(d.payload)
	j.LastError = cloneNullableString(d.lastError)
	j.StartedAt = cloneNullableTime(d.startedAt)
	j.CompletedAt = cloneNullableTime(d.completedAt)
	j.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)

	if len(d.progress) > 0 {
		var p model.Progress
		if err := json.Unmarshal(d.progress, &p); err != nil {
			return fmt.Errorf("decode progress: %w", err)
		}
		j.Progress = &p
	}
	if len(d.result) > 0 {
		var res model.JobResult
		if err := json.Unmarshal(d.result, &res); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		j.Result = &res
	}
	return nil
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	j := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, j); err != nil {
		return nil, err
	}
	if err := data.apply(j); err != nil {
		return nil, err
	}
	return j, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// Advisory lock namespace for requeueExpired to avoid cross-job-type contention.
const advisoryLockRequeueMajor int64 = 1001

func advisoryLockRequeueMinor(jobType model.JobType) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(jobType))
	hashValue := h.Sum32()
	maxInt32 := uint32(math.MaxInt32)
	if hashValue > maxInt32 {
		hashValue &= maxInt32
	}
	return int64(hashValue)
}

// requeueExpired requeues expired jobs of the given type and returns the number of jobs requeued.
func (r *JobRepo) requeueExpired(ctx context.Context, jobType model.JobType) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			minorKey := advisoryLockRequeueMinor(jobType)
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)", advisoryLockRequeueMajor, minorKey).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			res, err := tx.ExecContext(ctx, `
          UPDATE jobs
          SET status = 'pending', lease_expires_at = NULL
          WHERE type = $1 AND status = 'running'
            AND lease_expires_at IS NOT NULL
            AND lease_expires_at < $2
        `, jobType, currentTime.UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// SQL used by ReserveNext to atomically reserve the next job.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE type = $1 AND status = 'pending' AND scheduled_at <= $2
    ORDER BY scheduled_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'running',
    started_at = COALESCE(j.started_at, $3),
    lease_expires_at = $4,
    updated_at = $5
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.type, j.status, j.payload, j.progress, j.result, j.scheduled_at, j.started_at, j.completed_at, j.retry_count, j.max_retries, j.last_error, j.lease_expires_at, j.created_at, j.updated_at`

// ReserveNext reserves the next available job of the given type for processing.
func (r *JobRepo) ReserveNext(
	ctx context.Context,
	jobType model.JobType,
	leaseSeconds int,
) (*model.Job, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("invalid job type: %s", jobType)
	}

	if _, err := r.requeueExpired(ctx, jobType); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	}

	var reserved *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(
				ctx,
				reserveNextUpdateSQL,
				jobType,
				currentTime.UTC(),
				currentTime.UTC(),
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("reserve job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve job: %w", cerr)
			}
			reserved = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return reserved, nil
}

// Heartbeat refreshes the lease on a running job.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	leaseExpiration := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

	query := `
		UPDATE jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`

	res, err := r.DB.ExecContext(ctx, query, jobID, leaseExpiration, currentTime)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// UpdateProgress persists the latest progress snapshot for a running job.
func (r *JobRepo) UpdateProgress(
	ctx context.Context,
	jobID string,
	progress *model.Progress,
) (bool, error) {
	if progress == nil {
		return false, errors.New("progress is required")
	}

	raw, err := json.Marshal(progress)
	if err != nil {
		return false, fmt.Errorf("marshal progress: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET progress = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, jobID, raw, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update job progress: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update progress rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Complete marks a job as completed successfully and stores its result.
func (r *JobRepo) Complete(
	ctx context.Context,
	id string,
	result *model.JobResult,
) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	var raw []byte
	if result != nil {
		var err error
		raw, err = json.Marshal(result)
		if err != nil {
			return false, fmt.Errorf("marshal result: %w", err)
		}
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed',
		    result = $2,
		    completed_at = $3,
		    updated_at = $3,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'running'
	`, id, raw, currentTime)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Fail records a job failure. While the retry budget allows it and the error
// is retryable, the job returns to pending with an exponentially growing
// delay. Otherwise it becomes failed and a dead letter row is written in the
// same transaction.
func (r *JobRepo) Fail(ctx context.Context, params core.FailJobParams) (model.JobStatus, error) {
	var finalStatus model.JobStatus

	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var (
				jobType    model.JobType
				payload    []byte
				retryCount int
				maxRetries int
			)
			row := tx.QueryRowContext(ctx, `
				SELECT type, payload, retry_count, max_retries
				FROM jobs
				WHERE id = $1 AND status = 'running'
				FOR UPDATE
			`, params.ID)
			if err := row.Scan(&jobType, &payload, &retryCount, &maxRetries); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrJobNotFound
				}
				return fmt.Errorf("lock failing job: %w", err)
			}

			attempts := retryCount + 1
			exhausted := attempts >= maxRetries
			currentTime := r.timeProvider.Now()

			if params.NonRetryable || exhausted {
				finalStatus = model.JobStatusFailed
				if _, err := tx.ExecContext(ctx, `
					UPDATE jobs
					SET status = 'failed',
					    last_error = $2,
					    retry_count = $3,
					    completed_at = $4,
					    updated_at = $4,
					    lease_expires_at = NULL
					WHERE id = $1
				`, params.ID, params.ErrMsg, attempts, currentTime.UTC()); err != nil {
					return fmt.Errorf("fail job: %w", err)
				}

				if _, err := tx.ExecContext(ctx, `
					INSERT INTO dead_letters (job_id, job_type, payload, attempts, last_error)
					VALUES ($1, $2, $3, $4, $5)
					ON CONFLICT (job_id) DO UPDATE
					SET attempts = EXCLUDED.attempts,
					    last_error = EXCLUDED.last_error,
					    created_at = now()
				`, params.ID, jobType, payload, attempts, params.ErrMsg); err != nil {
					return fmt.Errorf("insert dead letter: %w", err)
				}
				return nil
			}

			finalStatus = model.JobStatusPending
			retryAt := currentTime.Add(r.retryDelay(retryCount))
			if _, err := tx.ExecContext(ctx, `
				UPDATE jobs
				SET status = 'pending',
				    last_error = $2,
				    retry_count = $3,
				    scheduled_at = $4,
				    updated_at = $5,
				    lease_expires_at = NULL
				WHERE id = $1
			`, params.ID, params.ErrMsg, attempts, retryAt.UTC(), currentTime.UTC()); err != nil {
				return fmt.Errorf("schedule job retry: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return "", err
	}

	if r.logger != nil && finalStatus == model.JobStatusFailed {
		r.logger.WarnContext(ctx, "job moved to dead letters",
			"job_id", params.ID,
			"error", params.ErrMsg,
		)
	}

	return finalStatus, nil
}

// Stats returns statistics about jobs of the given type in different states.
func (r *JobRepo) Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')   AS pending,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed
  FROM jobs
  WHERE type = $1
  `, jobType).Scan(
		&s.Pending,
		&s.Running,
		&s.Completed,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &s, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new jobs are available.
func (r *JobRepo) WaitForNotification(ctx context.Context, jobType model.JobType) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	channel := "job_added_" + string(jobType)
	quoted := pgx.Identifier{channel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "UNLISTEN "+quoted)
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var found *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		found, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return found, nil
}

// List returns jobs matching the given options, newest first.
func (r *JobRepo) List(ctx context.Context, opts *core.JobListOptions) ([]*model.Job, error) {
	limit := 50
	offset := 0
	var status model.JobStatus
	var jobType model.JobType
	if opts != nil {
		if opts.Limit > 0 {
			limit = opts.Limit
		}
		if opts.Offset > 0 {
			offset = opts.Offset
		}
		status = opts.Status
		jobType = opts.Type
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR type = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, string(status), string(jobType), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var jobs []*model.Job
	for rows.Next() {
		j, scanErr := scanJobFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		jobs = append(jobs, j)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("list jobs rows: %w", rowsErr)
	}
	return jobs, nil
}

// Delete safely deletes a job by ID with state machine safety checks.
func (r *JobRepo) Delete(ctx context.Context, id string) error {
	currentTime := r.timeProvider.Now()
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE id = $1
		  AND status IN ('pending', 'completed', 'failed')
		  AND (lease_expires_at IS NULL OR lease_expires_at <= $2)
	`, id, currentTime.UTC())
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("re-check job after delete attempt: %w", err)
	}

	if existing.Status == model.JobStatusRunning {
		return ErrJobNotDeletable
	}

	if existing.LeaseExpiresAt != nil && currentTime.Before(*existing.LeaseExpiresAt) {
		return ErrJobReserved
	}

	return errors.New("unexpected state: job is in deletable state but delete failed")
}
