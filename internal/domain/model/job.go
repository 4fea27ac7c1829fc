// Package model defines the core data types used throughout the clipforge job system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType represents the kind of media job to be executed.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobTypeVideo represents a single-video download job.
	JobTypeVideo JobType = "video"
	// JobTypePlaylist represents a playlist download job.
	JobTypePlaylist JobType = "playlist"

	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has failed terminally.
	JobStatusFailed JobStatus = "failed"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	return t == JobTypeVideo || t == JobTypePlaylist
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// MediaFormat identifies the requested output container.
type MediaFormat string

const (
	// FormatMP4 requests a video artifact.
	FormatMP4 MediaFormat = "mp4"
	// FormatMP3 requests an audio-only artifact (post-conversion).
	FormatMP3 MediaFormat = "mp3"
)

// Valid returns true if the MediaFormat is supported.
func (f MediaFormat) Valid() bool {
	return f == FormatMP4 || f == FormatMP3
}

// Progress is the last observed progress of a job. It is overwritten on each
// update; no history is retained.
type Progress struct {
	Percent     float64 `json:"percent"`
	Message     string  `json:"message,omitempty"`
	VideoIndex  int     `json:"video_index,omitempty"`
	TotalVideos int     `json:"total_videos,omitempty"`
	VideoID     string  `json:"video_id,omitempty"`
}

// Job represents a media job with all its metadata and status information.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	Type           JobType         `json:"type"                       db:"type"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Payload        json.RawMessage `json:"payload"                    db:"payload"`
	Progress       *Progress       `json:"progress,omitempty"         db:"progress"`
	Result         *JobResult      `json:"result,omitempty"           db:"result"`
	ScheduledAt    time.Time       `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	RetryCount     int             `json:"retry_count"                db:"retry_count"`
	MaxRetries     int             `json:"max_retries"                db:"max_retries"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// VideoPayload is the payload of a video job.
type VideoPayload struct {
	URL     string      `json:"url"`
	Format  MediaFormat `json:"format"`
	Quality string      `json:"quality,omitempty"`
}

// PlaylistOptions are the per-playlist download options.
type PlaylistOptions struct {
	Format           MediaFormat `json:"format"`
	Quality          string      `json:"quality,omitempty"`
	SelectedVideoIDs []string    `json:"selectedVideoIds,omitempty"`
}

// PlaylistPayload is the payload of a playlist job.
type PlaylistPayload struct {
	URL     string          `json:"url"`
	Options PlaylistOptions `json:"options"`
}

// CreateJobRequest represents a request to enqueue a new job.
type CreateJobRequest struct {
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	MaxRetries  int             `json:"max_retries,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if !r.Type.Valid() {
		return errors.New("invalid job type")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if r.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	return nil
}

// VideoPayload decodes the job payload as a video payload.
func (j *Job) VideoPayload() (*VideoPayload, error) {
	var p VideoPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode video payload: %w", err)
	}
	return &p, nil
}

// PlaylistPayload decodes the job payload as a playlist payload.
func (j *Job) PlaylistPayload() (*PlaylistPayload, error) {
	var p PlaylistPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode playlist payload: %w", err)
	}
	return &p, nil
}

// JobStats represents statistics about jobs in different states.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// JobSnapshot is the externally visible state of a job.
type JobSnapshot struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    *Progress  `json:"progress,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Snapshot projects the job into its externally visible form.
func (j *Job) Snapshot() *JobSnapshot {
	return &JobSnapshot{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Progress:    j.Progress,
		Result:      j.Result,
		Error:       j.LastError,
		CompletedAt: j.CompletedAt,
	}
}

// DeadLetter is the retained record of a job that exhausted its retry budget.
type DeadLetter struct {
	ID        string          `json:"id"         db:"id"`
	JobID     string          `json:"job_id"     db:"job_id"`
	JobType   JobType         `json:"job_type"   db:"job_type"`
	Payload   json.RawMessage `json:"payload"    db:"payload"`
	Attempts  int             `json:"attempts"   db:"attempts"`
	LastError string          `json:"last_error" db:"last_error"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
