package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/clipforge/clipforge/internal/core"
	"github.com/clipforge/clipforge/internal/domain/model"
)

// StreamServiceOptions groups dependencies for StreamService.
type StreamServiceOptions struct {
	Repo   core.JobRepository // Required: job repository
	Bus    core.EventBus      // Required: progress event source
	Logger *slog.Logger       // Optional: structured logger
}

// StreamService exposes a job's lifecycle as an event stream. Every stream
// opens with a synthetic event built from the persisted job record, so a
// subscriber that attaches mid-run (or after the job finished) still sees
// the current state before any live events.
type StreamService struct {
	repo   core.JobRepository
	bus    core.EventBus
	logger *slog.Logger
}

// NewStreamService constructs a new StreamService.
func NewStreamService(opts StreamServiceOptions) (*StreamService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("EventBus is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "stream_service")
	}

	return &StreamService{
		repo:   opts.Repo,
		bus:    opts.Bus,
		logger: logger,
	}, nil
}

// MustNewStreamService constructs a new StreamService and panics on error.
func MustNewStreamService(opts StreamServiceOptions) *StreamService {
	svc, err := NewStreamService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create StreamService: %v", err))
	}
	return svc
}

// Stream subscribes to a job's events. The returned channel first carries a
// snapshot event for the job's current state, then live events until a
// terminal event arrives, after which the channel is closed. The cancel
// function releases the subscription; it is safe to call more than once.
func (s *StreamService) Stream(
	ctx context.Context,
	jobID string,
) (<-chan *model.ProgressEvent, func(), error) {
	// Subscribe before the snapshot read so no event between the two is lost.
	live, cancelSub, err := s.bus.Subscribe(ctx, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe to job %s: %w", jobID, err)
	}

	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		cancelSub()
		return nil, nil, fmt.Errorf("get job %s: %w", jobID, err)
	}

	streamCtx, cancelStream := context.WithCancel(ctx)
	cancel := func() {
		cancelStream()
		cancelSub()
	}

	out := make(chan *model.ProgressEvent, 1)
	go s.forward(streamCtx, out, snapshotEvent(job), live)

	return out, cancel, nil
}

func (s *StreamService) forward(
	ctx context.Context,
	out chan<- *model.ProgressEvent,
	first *model.ProgressEvent,
	live <-chan *model.ProgressEvent,
) {
	defer close(out)

	select {
	case out <- first:
	case <-ctx.Done():
		return
	}
	if first.Terminal() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-live:
			if !ok {
				return
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
			if event.Terminal() {
				return
			}
		}
	}
}

// snapshotEvent projects a persisted job record into the event that would
// have produced its current state.
func snapshotEvent(job *model.Job) *model.ProgressEvent {
	event := &model.ProgressEvent{
		JobID:    job.ID,
		Progress: job.Progress,
	}

	switch job.Status {
	case model.JobStatusCompleted:
		event.Type = model.EventCompleted
		event.Result = job.Result
	case model.JobStatusFailed:
		event.Type = model.EventFailed
		if job.LastError != nil {
			event.Error = *job.LastError
		}
	default:
		event.Type = model.EventProgress
		if event.Progress == nil {
			event.Progress = &model.Progress{Message: string(job.Status)}
		}
	}

	return event
}
