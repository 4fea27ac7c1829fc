package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clipforge/clipforge/internal/core"
	"github.com/clipforge/clipforge/internal/data"
	"github.com/clipforge/clipforge/internal/domain/model"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/observability/metrics"
	"github.com/clipforge/clipforge/internal/observability/statsd"
	"github.com/clipforge/clipforge/internal/service"
	"github.com/clipforge/clipforge/internal/service/failurenotifier"
)

// RunnerOptions configures the worker runner for a single job type.
type RunnerOptions struct {
	DB     *sql.DB
	Logger *slog.Logger

	// Job processing settings
	JobType        model.JobType // which job type to process; required
	Lease          time.Duration // per-job lease duration; defaults to 30s
	Concurrency    int           // number of worker goroutines; defaults to 1
	MaxJobDuration time.Duration // hard per-job wall clock limit; defaults to 2h

	// Media tool settings
	YtdlpBin  string
	FfmpegBin string

	// Required storage layout
	Workspace *Workspace

	// Optional dependency injections (useful for tests/decoupling)
	Jobs            *service.JobService
	JobsRepo        core.JobRepository
	Bus             core.EventBus
	Lister          core.PlaylistLister
	CommandRunner   media.CommandRunner
	Handler         core.JobHandler
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// Runner pulls jobs of one type and executes them with the media toolchain.
type Runner struct {
	jobs           *service.JobService
	handler        core.JobHandler
	workspace      *Workspace
	logger         *slog.Logger
	lease          time.Duration
	maxJobDuration time.Duration
	jobType        model.JobType
	workers        int
	metrics        statsd.Sink
}

// NewRunner wires repositories/services and constructs a worker for a single job type.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.JobsRepo == nil && opts.Jobs == nil {
		return nil, errors.New("either DB, JobsRepo or Jobs must be provided")
	}
	if !opts.JobType.Valid() {
		return nil, fmt.Errorf("invalid job type %q", opts.JobType)
	}
	if opts.Workspace == nil {
		return nil, errors.New("workspace is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lease := opts.Lease
	if lease <= 0 {
		lease = 30 * time.Second
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	maxJobDuration := opts.MaxJobDuration
	if maxJobDuration <= 0 {
		maxJobDuration = 2 * time.Hour
	}

	jobs := opts.Jobs
	if jobs == nil {
		repo := opts.JobsRepo
		if repo == nil {
			repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: logger})
		}
		var err error
		jobs, err = service.NewJobService(service.JobServiceOptions{
			Repo:            repo,
			DefaultLease:    lease,
			Bus:             opts.Bus,
			Logger:          logger,
			FailureNotifier: opts.FailureNotifier,
		})
		if err != nil {
			return nil, fmt.Errorf("create job service: %w", err)
		}
	}

	handler := opts.Handler
	if handler == nil {
		handler = buildHandler(opts)
	}

	return &Runner{
		jobs:           jobs,
		handler:        handler,
		workspace:      opts.Workspace,
		logger:         logger,
		lease:          lease,
		maxJobDuration: maxJobDuration,
		jobType:        opts.JobType,
		workers:        workers,
		metrics:        opts.Metrics,
	}, nil
}

// buildHandler assembles the media pipeline handler for the runner's job type.
func buildHandler(opts RunnerOptions) core.JobHandler {
	runner := opts.CommandRunner
	if runner == nil {
		runner = &media.ExecRunner{}
	}

	downloader := media.NewDownloader(runner, opts.YtdlpBin)
	converter := media.NewConverter(runner, opts.FfmpegBin)
	video := media.NewVideoOperation(downloader, converter)

	if opts.JobType == model.JobTypePlaylist {
		lister := opts.Lister
		if lister == nil {
			lister = media.NewYtdlpLister(runner, opts.YtdlpBin)
		}
		playlist := media.NewPlaylistOperation(lister, video)
		return playlistHandler(opts.Workspace, playlist)
	}
	return videoHandler(opts.Workspace, video)
}

func videoHandler(workspace *Workspace, op *media.VideoOperation) core.JobHandler {
	return core.JobHandlerFunc(func(
		ctx context.Context,
		job *model.Job,
		report core.ProgressFunc,
	) (*model.JobResult, error) {
		payload, err := job.VideoPayload()
		if err != nil {
			return nil, err
		}
		return runInScratch(ctx, workspace, job.ID, report, func(ctx context.Context, dir string, observe media.ReportFunc) ([]string, error) {
			return op.Run(ctx, *payload, dir, observe)
		})
	})
}

func playlistHandler(workspace *Workspace, op *media.PlaylistOperation) core.JobHandler {
	return core.JobHandlerFunc(func(
		ctx context.Context,
		job *model.Job,
		report core.ProgressFunc,
	) (*model.JobResult, error) {
		payload, err := job.PlaylistPayload()
		if err != nil {
			return nil, err
		}
		return runInScratch(ctx, workspace, job.ID, report, func(ctx context.Context, dir string, observe media.ReportFunc) ([]string, error) {
			return op.Run(ctx, *payload, dir, observe)
		})
	})
}

// runInScratch runs one media operation inside the job's scratch directory
// and finalizes its outputs. The scratch directory is removed on every path.
func runInScratch(
	ctx context.Context,
	workspace *Workspace,
	jobID string,
	report core.ProgressFunc,
	run func(ctx context.Context, dir string, observe media.ReportFunc) ([]string, error),
) (*model.JobResult, error) {
	dir, cleanup, err := workspace.Acquire(jobID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	files, err := run(ctx, dir, func(progress model.Progress) {
		if report != nil {
			report(ctx, &progress)
		}
	})
	if err != nil {
		return nil, err
	}

	return workspace.Finalize(jobID, files)
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting worker runner",
		"type", r.jobType,
		"workers", r.workers,
		"lease", r.lease,
		"max_job_duration", r.maxJobDuration,
	)

	// Derive a cancellable context that we can signal on first fatal error
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribe for notifications for the job type we process
	unsub, ch := r.jobs.Subscribe(r.jobType)
	defer unsub()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx, ch); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (r *Runner) workerLoop(ctx context.Context, wake <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.jobType, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForWake(ctx, wake) {
				return nil
			}
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

func (r *Runner) waitForWake(ctx context.Context, wake <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-wake:
		return true
	}
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			JobType:    string(job.Type),
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	jobCtx, cancelJob := context.WithTimeout(ctx, r.maxJobDuration)
	stopHeartbeat := r.startHeartbeat(jobCtx, job.ID)

	// The relay keeps slow persistence off the handler's reporting path so
	// the subprocess output stream is never stalled behind a write.
	relay := newProgressRelay(jobCtx, func(ctx context.Context, progress *model.Progress) {
		if _, err := r.jobs.UpdateProgress(ctx, job.ID, progress); err != nil {
			r.logger.WarnContext(ctx, "progress update failed", "job_id", job.ID, "error", err)
		}
	})
	report := func(_ context.Context, progress *model.Progress) {
		relay.Report(progress)
	}

	result, err := r.handler.Handle(jobCtx, job, report)

	stopHeartbeat()
	relay.Close()
	cancelJob()

	if err != nil {
		// Record the failure even when the job context expired.
		status, failErr := r.jobs.Fail(ctx, job.ID, err)
		if failErr != nil {
			r.logger.ErrorContext(ctx, "fail job error", "job_id", job.ID, "error", failErr, "original_error", err)
			emit(metrics.TransitionRetry, metrics.ResultError, failErr)
			return
		}
		transition := metrics.TransitionRetry
		if status == model.JobStatusFailed {
			transition = metrics.TransitionDeadLetter
		}
		emit(transition, metrics.ResultError, err)
		return
	}

	if completed, err := r.jobs.Complete(ctx, job.ID, result); err != nil {
		r.logger.ErrorContext(ctx, "complete job error", "job_id", job.ID, "error", err)
		emit(metrics.TransitionComplete, metrics.ResultError, err)
	} else {
		outcome := metrics.ResultNoop
		if completed {
			outcome = metrics.ResultSuccess
		}
		emit(metrics.TransitionComplete, outcome, nil)
	}
}

// startHeartbeat extends the job's lease at a third of its duration until the
// returned stop function is called or the context ends.
func (r *Runner) startHeartbeat(ctx context.Context, jobID string) func() {
	interval := r.lease / 3
	if interval < time.Second {
		interval = time.Second
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.jobs.Heartbeat(ctx, jobID, r.lease); err != nil {
					r.logger.WarnContext(ctx, "heartbeat failed", "job_id", jobID, "error", err)
				}
			}
		}
	}()

	return stop
}
