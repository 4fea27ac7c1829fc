package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/clipforge/clipforge/internal/bus"
	"github.com/clipforge/clipforge/internal/domain/model"
	apperrors "github.com/clipforge/clipforge/internal/errors"
	"github.com/clipforge/clipforge/internal/mocks"
)

func recvEvent(t *testing.T, ch <-chan *model.ProgressEvent) *model.ProgressEvent {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "stream closed early")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func requireClosed(t *testing.T, ch <-chan *model.ProgressEvent) {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.False(t, ok, "expected closed stream, got event %+v", event)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream close")
	}
}

func TestStreamEmitsSnapshotThenLiveEvents(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	eventBus := bus.NewMemoryBus()

	svc := MustNewStreamService(StreamServiceOptions{Repo: repo, Bus: eventBus})

	repo.EXPECT().GetByID(gomock.Any(), "j1").Return(&model.Job{
		ID:       "j1",
		Type:     model.JobTypeVideo,
		Status:   model.JobStatusRunning,
		Progress: &model.Progress{Percent: 33},
	}, nil)

	ctx := context.Background()
	events, cancel, err := svc.Stream(ctx, "j1")
	require.NoError(t, err)
	defer cancel()

	first := recvEvent(t, events)
	assert.Equal(t, model.EventProgress, first.Type)
	assert.Equal(t, float64(33), first.Progress.Percent)

	require.NoError(t, eventBus.Publish(ctx, &model.ProgressEvent{
		JobID:    "j1",
		Type:     model.EventProgress,
		Progress: &model.Progress{Percent: 60},
	}))
	second := recvEvent(t, events)
	assert.Equal(t, float64(60), second.Progress.Percent)

	require.NoError(t, eventBus.Publish(ctx, &model.ProgressEvent{
		JobID: "j1",
		Type:  model.EventCompleted,
	}))
	third := recvEvent(t, events)
	assert.Equal(t, model.EventCompleted, third.Type)

	requireClosed(t, events)
}

func TestStreamTerminalJobClosesImmediately(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	eventBus := bus.NewMemoryBus()

	svc := MustNewStreamService(StreamServiceOptions{Repo: repo, Bus: eventBus})

	errMsg := "exit status 1"
	repo.EXPECT().GetByID(gomock.Any(), "j2").Return(&model.Job{
		ID:        "j2",
		Type:      model.JobTypeVideo,
		Status:    model.JobStatusFailed,
		LastError: &errMsg,
	}, nil)

	events, cancel, err := svc.Stream(context.Background(), "j2")
	require.NoError(t, err)
	defer cancel()

	first := recvEvent(t, events)
	assert.Equal(t, model.EventFailed, first.Type)
	assert.Equal(t, errMsg, first.Error)

	requireClosed(t, events)
}

func TestStreamUnknownJob(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	eventBus := bus.NewMemoryBus()

	svc := MustNewStreamService(StreamServiceOptions{Repo: repo, Bus: eventBus})

	repo.EXPECT().GetByID(gomock.Any(), "missing").
		Return(nil, apperrors.NotFound("job not found"))

	_, _, err := svc.Stream(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStreamCancelReleasesSubscription(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	eventBus := bus.NewMemoryBus()

	svc := MustNewStreamService(StreamServiceOptions{Repo: repo, Bus: eventBus})

	repo.EXPECT().GetByID(gomock.Any(), "j3").Return(&model.Job{
		ID:     "j3",
		Type:   model.JobTypeVideo,
		Status: model.JobStatusPending,
	}, nil)

	events, cancel, err := svc.Stream(context.Background(), "j3")
	require.NoError(t, err)

	recvEvent(t, events)
	cancel()
	requireClosed(t, events)
}
