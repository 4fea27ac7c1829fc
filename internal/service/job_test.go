package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/clipforge/clipforge/internal/core"
	domainjob "github.com/clipforge/clipforge/internal/domain/job"
	"github.com/clipforge/clipforge/internal/domain/model"
	apperrors "github.com/clipforge/clipforge/internal/errors"
	"github.com/clipforge/clipforge/internal/mocks"
	"github.com/clipforge/clipforge/internal/observability/notify"
	"github.com/clipforge/clipforge/internal/service/failurenotifier"
)

type stubNotifier struct {
	subscribeCalls int
	stopCalled     bool
}

func (s *stubNotifier) Subscribe() (func(), <-chan struct{}) {
	s.subscribeCalls++
	ch := make(chan struct{}, 1)
	return func() {}, ch
}

func (s *stubNotifier) StopAll() { s.stopCalled = true }

func newTestJobService(t *testing.T, repo core.JobRepository, bus core.EventBus) (*JobService, *stubNotifier) {
	t.Helper()
	notifier := &stubNotifier{}
	svc := MustNewJobService(JobServiceOptions{
		Repo:         repo,
		Bus:          bus,
		DefaultLease: 30 * time.Second,
		Notifiers: map[model.JobType]domainjob.Notifier{
			model.JobTypeVideo:    notifier,
			model.JobTypePlaylist: notifier,
		},
	})
	return svc, notifier
}

func videoRequest(t *testing.T, url string) *model.CreateJobRequest {
	t.Helper()
	payload, err := json.Marshal(model.VideoPayload{URL: url, Format: model.FormatMP4})
	require.NoError(t, err)
	return &model.CreateJobRequest{Type: model.JobTypeVideo, Payload: payload}
}

func TestJobServiceRequiresRepo(t *testing.T) {
	t.Parallel()

	_, err := NewJobService(JobServiceOptions{DefaultLease: time.Second})
	require.Error(t, err)
}

func TestJobServiceRequiresLease(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)

	_, err := NewJobService(JobServiceOptions{Repo: repo})
	require.Error(t, err)
}

func TestCreateValidVideoJob(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo, nil)

	req := videoRequest(t, "https://www.youtube.com/watch?v=abc123")
	created := &model.Job{ID: "j1", Type: model.JobTypeVideo, Status: model.JobStatusPending}
	repo.EXPECT().Create(gomock.Any(), req).Return(created, nil)

	job, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
}

func TestCreateRejectsBadURLs(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo, nil)

	cases := []string{
		"",
		"ftp://example.com/video",
		"https:///nohost",
		"https://nodomain",
		"not a url at all%%",
	}
	for _, url := range cases {
		_, err := svc.Create(context.Background(), videoRequest(t, url))
		require.Error(t, err, "url %q", url)
		assert.True(t, apperrors.IsValidation(err), "url %q", url)
	}
}

func TestCreateAllowsLabHosts(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo, nil)

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(&model.Job{ID: "x"}, nil).Times(2)

	for _, url := range []string{"http://localhost:9000/v", "http://127.0.0.1/v"} {
		_, err := svc.Create(context.Background(), videoRequest(t, url))
		require.NoError(t, err, "url %q", url)
	}
}

func TestCreateRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo, nil)

	payload, err := json.Marshal(map[string]string{
		"url":    "https://example.com/v",
		"format": "flac",
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), &model.CreateJobRequest{
		Type:    model.JobTypeVideo,
		Payload: payload,
	})
	require.Error(t, err)
	assert.Equal(t, "format", apperrors.GetField(err))
}

func TestReserveNextResolvesLease(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo, nil)

	job := &model.Job{ID: "j1", Type: model.JobTypeVideo, Status: model.JobStatusRunning}
	// Zero lease falls back to the 30s default.
	repo.EXPECT().ReserveNext(gomock.Any(), model.JobTypeVideo, 30).Return(job, nil)

	got, err := svc.ReserveNext(context.Background(), model.JobTypeVideo, 0)
	require.NoError(t, err)
	assert.Equal(t, "j1", got.ID)
}

func TestReserveNextClampsSubSecondLease(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo, nil)

	repo.EXPECT().ReserveNext(gomock.Any(), model.JobTypeVideo, 1).
		Return(nil, model.ErrNoJobsAvailable)

	_, err := svc.ReserveNext(context.Background(), model.JobTypeVideo, 100*time.Millisecond)
	require.ErrorIs(t, err, model.ErrNoJobsAvailable)
}

func TestUpdateProgressPublishes(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	bus := mocks.NewMockEventBus(ctrl)
	svc, _ := newTestJobService(t, repo, bus)

	progress := &model.Progress{Percent: 42}
	repo.EXPECT().UpdateProgress(gomock.Any(), "j1", progress).Return(true, nil)
	bus.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, event *model.ProgressEvent) error {
			assert.Equal(t, "j1", event.JobID)
			assert.Equal(t, model.EventProgress, event.Type)
			assert.Equal(t, float64(42), event.Progress.Percent)
			return nil
		})

	updated, err := svc.UpdateProgress(context.Background(), "j1", progress)
	require.NoError(t, err)
	assert.True(t, updated)
}

func TestUpdateProgressSwallowsBusFault(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	bus := mocks.NewMockEventBus(ctrl)
	svc, _ := newTestJobService(t, repo, bus)

	repo.EXPECT().UpdateProgress(gomock.Any(), "j1", gomock.Any()).Return(true, nil)
	bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	updated, err := svc.UpdateProgress(context.Background(), "j1", &model.Progress{Percent: 10})
	require.NoError(t, err)
	assert.True(t, updated)
}

func TestCompletePublishesTerminalEvent(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	bus := mocks.NewMockEventBus(ctrl)
	svc, _ := newTestJobService(t, repo, bus)

	result := &model.JobResult{Files: []model.FileArtifact{{Name: "a.mp4", Path: "/d/a.mp4"}}}
	repo.EXPECT().Complete(gomock.Any(), "j1", result).Return(true, nil)
	bus.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, event *model.ProgressEvent) error {
			assert.Equal(t, model.EventCompleted, event.Type)
			assert.Equal(t, result, event.Result)
			return nil
		})

	completed, err := svc.Complete(context.Background(), "j1", result)
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestFailRetryDoesNotNotify(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	bus := mocks.NewMockEventBus(ctrl)
	svc, _ := newTestJobService(t, repo, bus)

	repo.EXPECT().Fail(gomock.Any(), core.FailJobParams{
		ID:     "j1",
		ErrMsg: "exit status 1",
	}).Return(model.JobStatusPending, nil)

	status, err := svc.Fail(context.Background(), "j1", errors.New("exit status 1"))
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, status)
}

func TestFailTerminalNotifiesAndPublishes(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	bus := mocks.NewMockEventBus(ctrl)

	var received []notify.JobFailurePayload
	fn := failurenotifier.NewService(failurenotifier.Options{
		Sinks: []failurenotifier.SinkRegistration{{
			Name: "capture",
			Sink: notify.SinkFunc(func(_ context.Context, payload notify.JobFailurePayload) error {
				received = append(received, payload)
				return nil
			}),
		}},
	})

	notifier := &stubNotifier{}
	svc := MustNewJobService(JobServiceOptions{
		Repo:            repo,
		Bus:             bus,
		DefaultLease:    30 * time.Second,
		FailureNotifier: fn,
		Notifiers: map[model.JobType]domainjob.Notifier{
			model.JobTypeVideo:    notifier,
			model.JobTypePlaylist: notifier,
		},
	})

	jobErr := apperrors.EmptySelection("playlist has no items")
	repo.EXPECT().Fail(gomock.Any(), core.FailJobParams{
		ID:           "j1",
		ErrMsg:       jobErr.Error(),
		NonRetryable: true,
	}).Return(model.JobStatusFailed, nil)
	bus.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, event *model.ProgressEvent) error {
			assert.Equal(t, model.EventFailed, event.Type)
			assert.NotEmpty(t, event.Error)
			return nil
		})
	repo.EXPECT().GetByID(gomock.Any(), "j1").Return(&model.Job{
		ID:         "j1",
		Type:       model.JobTypePlaylist,
		RetryCount: 0,
		MaxRetries: 3,
	}, nil)

	status, err := svc.Fail(context.Background(), "j1", jobErr)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, status)

	require.Len(t, received, 1)
	assert.Equal(t, "j1", received[0].JobID)
	assert.Equal(t, "playlist", received[0].JobType)
	assert.Equal(t, "empty_selection", received[0].ErrorClass)
	assert.Equal(t, 1, received[0].Attempts)
}

func TestListNormalizesPagination(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo, nil)

	repo.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, opts *core.JobListOptions) ([]*model.Job, error) {
			assert.Equal(t, 50, opts.Limit)
			assert.Equal(t, 0, opts.Offset)
			return nil, nil
		})

	_, err := svc.List(context.Background(), &core.JobListOptions{Limit: -1, Offset: -5})
	require.NoError(t, err)
}

func TestSubscribeAndStop(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, notifier := newTestJobService(t, repo, nil)

	unsub, ch := svc.Subscribe(model.JobTypeVideo)
	require.NotNil(t, ch)
	unsub()
	assert.Equal(t, 1, notifier.subscribeCalls)

	svc.StopAllListeners()
	assert.True(t, notifier.stopCalled)
}

func TestValidateMediaURL(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateMediaURL("https://music.example.co.uk/watch?v=1"))
	require.NoError(t, ValidateMediaURL("http://192.168.1.4:8080/clip"))
	require.Error(t, ValidateMediaURL("file:///etc/passwd"))
	require.Error(t, ValidateMediaURL("https://internalhost/clip"))
}
