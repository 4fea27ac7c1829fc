package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/domain/model"
)

func TestProgressRelayNeverBlocksReporter(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	var seen []*model.Progress
	relay := newProgressRelay(context.Background(), func(_ context.Context, progress *model.Progress) {
		<-gate
		seen = append(seen, progress)
	})

	reported := make(chan struct{})
	go func() {
		defer close(reported)
		for i := range 200 {
			relay.Report(&model.Progress{Percent: float64(i)})
		}
	}()

	select {
	case <-reported:
	case <-time.After(2 * time.Second):
		t.Fatal("reporter stalled behind a slow progress sink")
	}

	close(gate)
	relay.Close()

	require.NotEmpty(t, seen)
	assert.InDelta(t, 199, seen[len(seen)-1].Percent, 0.001)
	assert.Less(t, len(seen), 200)
}

func TestProgressRelayFlushesLastValueOnClose(t *testing.T) {
	t.Parallel()

	var seen []*model.Progress
	relay := newProgressRelay(context.Background(), func(_ context.Context, progress *model.Progress) {
		seen = append(seen, progress)
	})

	relay.Report(&model.Progress{Percent: 100, Message: "done"})
	relay.Close()

	require.NotEmpty(t, seen)
	assert.Equal(t, "done", seen[len(seen)-1].Message)
}
