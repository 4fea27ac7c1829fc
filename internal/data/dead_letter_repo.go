package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clipforge/clipforge/internal/domain/model"
)

// ErrDeadLetterNotFound is returned when no dead letter row exists for a job.
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// DeadLetterRepo provides read access to the dead_letters table. Rows are
// written by JobRepo.Fail in the same transaction that marks a job failed.
type DeadLetterRepo struct {
	DB *sql.DB
}

// NewDeadLetterRepo creates a new DeadLetterRepo with the given database connection.
func NewDeadLetterRepo(db *sql.DB) *DeadLetterRepo {
	return &DeadLetterRepo{DB: db}
}

const deadLetterColumns = `id, job_id, job_type, payload, attempts, last_error, created_at`

// List returns dead letter rows, newest first.
func (r *DeadLetterRepo) List(ctx context.Context, limit, offset int) ([]*model.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+deadLetterColumns+`
		FROM dead_letters
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var letters []*model.DeadLetter
	for rows.Next() {
		dl, scanErr := scanDeadLetter(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		letters = append(letters, dl)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("list dead letters rows: %w", rowsErr)
	}
	return letters, nil
}

// GetByJobID returns the dead letter row for the given job.
func (r *DeadLetterRepo) GetByJobID(ctx context.Context, jobID string) (*model.DeadLetter, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+deadLetterColumns+`
		FROM dead_letters
		WHERE job_id = $1
	`, jobID)

	dl, err := scanDeadLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeadLetterNotFound
	}
	if err != nil {
		return nil, err
	}
	return dl, nil
}

func scanDeadLetter(scanner interface{ Scan(...any) error }) (*model.DeadLetter, error) {
	var dl model.DeadLetter
	var payload []byte
	if err := scanner.Scan(
		&dl.ID,
		&dl.JobID,
		&dl.JobType,
		&payload,
		&dl.Attempts,
		&dl.LastError,
		&dl.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan dead letter: %w", err)
	}
	dl.Payload = cloneJSON(payload)
	return &dl, nil
}
