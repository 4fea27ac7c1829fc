package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/clipforge/clipforge/internal/core"
	domainjob "github.com/clipforge/clipforge/internal/domain/job"
	"github.com/clipforge/clipforge/internal/domain/model"
	apperrors "github.com/clipforge/clipforge/internal/errors"
	obserrors "github.com/clipforge/clipforge/internal/observability/errors"
	"github.com/clipforge/clipforge/internal/observability/notify"
	"github.com/clipforge/clipforge/internal/service/failurenotifier"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository                  // Required: job repository
	DefaultLease    time.Duration                       // Required: default lease duration for jobs
	Bus             core.EventBus                       // Optional: progress event fan-out
	Logger          *slog.Logger                        // Optional: structured logger
	FailureNotifier *failurenotifier.Service            // Optional: dead letter notification fan-out
	LeasePolicy     *domainjob.LeasePolicy              // Optional: override default lease policy
	Notifiers       map[model.JobType]domainjob.Notifier // Optional: custom job availability notifiers
	NotifierOptions domainjob.NotifierOptions           // Optional: configure default notifier behaviour
}

// JobService provides business logic for job operations.
//
// This service manages:
// - Enqueueing and payload validation
// - Job reservation and lease management
// - Progress persistence plus best-effort event publication
// - Per-type notification listeners for worker wake-ups
// - Dead letter alerting on terminal failure.
type JobService struct {
	repo            core.JobRepository
	bus             core.EventBus
	leasePolicy     *domainjob.LeasePolicy
	notifiers       map[model.JobType]domainjob.Notifier
	logger          *slog.Logger
	failureNotifier *failurenotifier.Service
}

type typeWaiter struct {
	repo    core.JobRepository
	jobType model.JobType
}

func (w typeWaiter) WaitForNotification(ctx context.Context) error {
	return w.repo.WaitForNotification(ctx, w.jobType)
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	var leasePolicy *domainjob.LeasePolicy
	switch {
	case opts.LeasePolicy != nil:
		leasePolicy = opts.LeasePolicy
	case opts.DefaultLease > 0:
		var err error
		leasePolicy, err = domainjob.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	default:
		return nil, errors.New("DefaultLease must be positive")
	}

	notifiers := opts.Notifiers
	if notifiers == nil {
		notifiers = make(map[model.JobType]domainjob.Notifier, 2)
		for _, jobType := range []model.JobType{model.JobTypeVideo, model.JobTypePlaylist} {
			options := opts.NotifierOptions
			options.Waiter = typeWaiter{repo: opts.Repo, jobType: jobType}
			notifier, err := domainjob.NewNotifier(options)
			if err != nil {
				return nil, fmt.Errorf("create %s job notifier: %w", jobType, err)
			}
			notifiers[jobType] = notifier
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
		logger.Debug("JobService initialized",
			"default_lease", leasePolicy.Default(),
		)
	}

	return &JobService{
		repo:            opts.Repo,
		bus:             opts.Bus,
		leasePolicy:     leasePolicy,
		notifiers:       notifiers,
		logger:          logger,
		failureNotifier: opts.FailureNotifier,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Create validates and enqueues a new job.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if err := validatePayload(req); err != nil {
		return nil, err
	}

	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job created",
			"id", job.ID,
			"type", job.Type,
			"status", job.Status,
		)
	}

	return job, nil
}

func validatePayload(req *model.CreateJobRequest) error {
	probe := &model.Job{Type: req.Type, Payload: req.Payload}
	switch req.Type {
	case model.JobTypeVideo:
		payload, err := probe.VideoPayload()
		if err != nil {
			return apperrors.ValidationField("payload", err.Error())
		}
		if payload.Format != "" && !payload.Format.Valid() {
			return apperrors.ValidationField("format", fmt.Sprintf("unsupported format %q", payload.Format))
		}
		return ValidateMediaURL(payload.URL)
	case model.JobTypePlaylist:
		payload, err := probe.PlaylistPayload()
		if err != nil {
			return apperrors.ValidationField("payload", err.Error())
		}
		if payload.Options.Format != "" && !payload.Options.Format.Valid() {
			return apperrors.ValidationField("format", fmt.Sprintf("unsupported format %q", payload.Options.Format))
		}
		return ValidateMediaURL(payload.URL)
	default:
		return apperrors.ValidationField("type", fmt.Sprintf("unsupported job type %q", req.Type))
	}
}

// ValidateMediaURL rejects URLs a downloader subprocess could not fetch:
// non-http schemes, empty hosts, and hosts without a registrable domain.
// IP literals and localhost are allowed for lab setups.
func ValidateMediaURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return apperrors.ValidationField("url", "url is required")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return apperrors.ValidationField("url", "url is not parseable")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperrors.ValidationField("url", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}

	host := u.Hostname()
	if host == "" {
		return apperrors.ValidationField("url", "url host is required")
	}
	if host == "localhost" || net.ParseIP(host) != nil {
		return nil
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(host); err != nil {
		return apperrors.ValidationField("url", fmt.Sprintf("host %q has no registrable domain", host))
	}
	return nil
}

// ReserveNext reserves the next available job of the given type for processing.
func (s *JobService) ReserveNext(
	ctx context.Context,
	jobType model.JobType,
	lease time.Duration,
) (*model.Job, error) {
	decision := s.leasePolicy.Resolve(lease)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second lease duration to 1 second",
			"requested_duration", decision.Requested,
			"job_type", jobType)
	}

	job, err := s.repo.ReserveNext(ctx, jobType, decision.Seconds)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	if s.logger != nil && job != nil {
		s.logger.DebugContext(ctx, "job reserved",
			"id", job.ID,
			"type", jobType,
			"lease_seconds", decision.Seconds,
		)
	}

	return job, nil
}

// Subscribe creates a subscription for job availability notifications of the
// given type. Returns an unsubscribe function and a signal channel.
func (s *JobService) Subscribe(jobType model.JobType) (func(), <-chan struct{}) {
	notifier := s.notifiers[jobType]
	if notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return notifier.Subscribe()
}

// Heartbeat extends the lease on a job to indicate it's still being processed.
func (s *JobService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	decision := s.leasePolicy.Resolve(extend)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second heartbeat duration to 1 second",
			"requested_duration", decision.Requested,
			"job_id", id)
	}

	updated, err := s.repo.Heartbeat(ctx, id, decision.Seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}

	if s.logger != nil && updated {
		s.logger.DebugContext(ctx, "job heartbeat updated", "id", id, "extend_seconds", decision.Seconds)
	}

	return updated, nil
}

// UpdateProgress persists the latest progress snapshot and publishes it to
// stream subscribers. Publication is best effort; a bus fault never fails
// the update.
func (s *JobService) UpdateProgress(ctx context.Context, id string, progress *model.Progress) (bool, error) {
	if progress == nil {
		return false, apperrors.Validation("progress is required")
	}

	updated, err := s.repo.UpdateProgress(ctx, id, progress)
	if err != nil {
		return false, fmt.Errorf("update progress for job %s: %w", id, err)
	}

	if updated {
		s.publish(ctx, &model.ProgressEvent{
			JobID:    id,
			Type:     model.EventProgress,
			Progress: progress,
		})
	}

	return updated, nil
}

// Complete marks a job as completed and announces the terminal event.
func (s *JobService) Complete(ctx context.Context, id string, result *model.JobResult) (bool, error) {
	completed, err := s.repo.Complete(ctx, id, result)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}

	if completed {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "job completed", "id", id)
		}
		s.publish(ctx, &model.ProgressEvent{
			JobID:  id,
			Type:   model.EventCompleted,
			Result: result,
		})
	}

	return completed, nil
}

// Fail records a failed attempt. Depending on the retry budget and whether
// the error is retryable, the job is either rescheduled or moved to the dead
// letter table; the returned status reports which. Terminal failures are
// announced on the bus and fanned out to the failure notifier.
func (s *JobService) Fail(ctx context.Context, id string, jobErr error) (model.JobStatus, error) {
	if jobErr == nil {
		return "", errors.New("failure error required")
	}

	errMsg := jobErr.Error()
	status, err := s.repo.Fail(ctx, core.FailJobParams{
		ID:           id,
		ErrMsg:       errMsg,
		NonRetryable: apperrors.IsNonRetryable(jobErr),
	})
	if err != nil {
		return "", fmt.Errorf("fail job %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.WarnContext(ctx, "job attempt failed",
			"id", id,
			"status", status,
			"error", errMsg,
		)
	}

	if status == model.JobStatusFailed {
		s.publish(ctx, &model.ProgressEvent{
			JobID: id,
			Type:  model.EventFailed,
			Error: errMsg,
		})
		s.notifyFailure(ctx, id, jobErr)
	}

	return status, nil
}

func (s *JobService) notifyFailure(ctx context.Context, id string, jobErr error) {
	if s.failureNotifier == nil || !s.failureNotifier.Enabled() {
		return
	}

	payload := notify.JobFailurePayload{
		JobID:      id,
		Error:      jobErr.Error(),
		ErrorClass: obserrors.Classify(jobErr),
		Severity:   notify.SeverityCritical,
		OccurredAt: time.Now(),
	}

	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to load job for failure notification", "job_id", id, "error", err)
		}
	} else {
		payload.JobType = string(job.Type)
		payload.Attempts = job.RetryCount + 1
		payload.Metadata = map[string]string{
			"max_retries": strconv.Itoa(job.MaxRetries),
		}
	}

	s.failureNotifier.NotifyJobFailure(ctx, payload)
}

func (s *JobService) publish(ctx context.Context, event *model.ProgressEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "progress event publish failed",
			"job_id", event.JobID,
			"event_type", event.Type,
			"error", err,
		)
	}
}

// Stats returns statistics about jobs of the given type in different states.
func (s *JobService) Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx, jobType)
	if err != nil {
		return nil, fmt.Errorf("get job stats for type %s: %w", jobType, err)
	}
	return stats, nil
}

// GetByID returns a job by its ID.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id %s: %w", id, err)
	}
	return job, nil
}

// GetSnapshot returns the externally visible state of a job.
func (s *JobService) GetSnapshot(ctx context.Context, id string) (*model.JobSnapshot, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job.Snapshot(), nil
}

// paginationParams holds normalized pagination parameters.
type paginationParams struct {
	Limit  int
	Offset int
}

// normalizePagination clamps pagination parameters to safe defaults.
// Default limit: 50, max limit: 1000, min offset: 0.
func normalizePagination(limit, offset int) paginationParams {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return paginationParams{Limit: limit, Offset: offset}
}

// List returns jobs with optional filtering for the admin view.
func (s *JobService) List(ctx context.Context, opts *core.JobListOptions) ([]*model.Job, error) {
	if opts == nil {
		opts = &core.JobListOptions{}
	}

	p := normalizePagination(opts.Limit, opts.Offset)
	opts.Limit = p.Limit
	opts.Offset = p.Offset

	jobs, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Delete safely deletes a job by ID with state machine safety checks.
// Only jobs without an active lease can be deleted.
func (s *JobService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.Validation("job id is required")
	}

	err := s.repo.Delete(ctx, id)
	if err != nil {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "failed to delete job", "id", id, "error", err)
		}
		return fmt.Errorf("delete job %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job deleted", "id", id)
	}

	return nil
}

// StopAllListeners stops all active job notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *JobService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all job listeners")
	}

	for _, notifier := range s.notifiers {
		notifier.StopAll()
	}
}
