// Package httpx provides the HTTP surface of the download job system.
package httpx

import (
	"net/http"

	"github.com/clipforge/clipforge/internal/core"
	"github.com/clipforge/clipforge/internal/domain/model"
	apperrors "github.com/clipforge/clipforge/internal/errors"
	"github.com/clipforge/clipforge/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Svc         *service.JobService
	DeadLetters core.DeadLetterRepository
}

// CreateJob handles HTTP requests to enqueue a new download job.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req model.CreateJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Create(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, job.Snapshot())
}

// GetJob handles HTTP requests to retrieve the visible state of a job.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteAppError(w, apperrors.Validation("job id is required"))
		return
	}

	snapshot, err := h.Svc.GetSnapshot(r.Context(), jobID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snapshot)
}

// ListJobs handles HTTP requests to list jobs with optional filters.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, defaultListLimit, maxListLimit)

	opts := &core.JobListOptions{
		Status: model.JobStatus(r.URL.Query().Get("status")),
		Type:   model.JobType(r.URL.Query().Get("type")),
		Limit:  limit,
		Offset: offset,
	}

	jobs, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	snapshots := make([]*model.JobSnapshot, 0, len(jobs))
	for _, job := range jobs {
		snapshots = append(snapshots, job.Snapshot())
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":   snapshots,
		"limit":  limit,
		"offset": offset,
	})
}

// DeleteJob handles HTTP requests to delete a job record.
func (h *JobHandlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteAppError(w, apperrors.Validation("job id is required"))
		return
	}

	if err := h.Svc.Delete(r.Context(), jobID); err != nil {
		WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles HTTP requests to retrieve queue counters. With a type filter
// it returns the counters of that type; without one it returns all types.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	if typ := r.URL.Query().Get("type"); typ != "" {
		stats, err := h.Svc.Stats(r.Context(), model.JobType(typ))
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, stats)
		return
	}

	all := make(map[string]*model.JobStats, 2)
	for _, typ := range []model.JobType{model.JobTypeVideo, model.JobTypePlaylist} {
		stats, err := h.Svc.Stats(r.Context(), typ)
		if err != nil {
			WriteAppError(w, err)
			return
		}
		all[string(typ)] = stats
	}
	WriteJSON(w, http.StatusOK, all)
}

// ListDeadLetters handles HTTP requests to list retained dead letter records.
func (h *JobHandlers) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	if h.DeadLetters == nil {
		WriteAppError(w, apperrors.Unavailable("dead letter store not configured"))
		return
	}

	limit, offset := parseLimitOffset(r, defaultListLimit, maxListLimit)
	letters, err := h.DeadLetters.List(r.Context(), limit, offset)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"dead_letters": letters,
		"limit":        limit,
		"offset":       offset,
	})
}

// GetDeadLetter handles HTTP requests to fetch the dead letter of one job.
func (h *JobHandlers) GetDeadLetter(w http.ResponseWriter, r *http.Request) {
	if h.DeadLetters == nil {
		WriteAppError(w, apperrors.Unavailable("dead letter store not configured"))
		return
	}

	jobID := r.PathValue("id")
	if jobID == "" {
		WriteAppError(w, apperrors.Validation("job id is required"))
		return
	}

	letter, err := h.DeadLetters.GetByJobID(r.Context(), jobID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if letter == nil {
		WriteAppError(w, apperrors.NotFoundf("no dead letter for job %s", jobID))
		return
	}
	WriteJSON(w, http.StatusOK, letter)
}
