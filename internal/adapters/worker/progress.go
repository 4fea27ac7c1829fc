package worker

import (
	"context"
	"sync"

	"github.com/clipforge/clipforge/internal/domain/model"
)

// progressRelay decouples progress reporting from the subprocess output
// stream. Reports land in a single slot where a newer value replaces a
// pending one, and one drain goroutine persists whatever is latest. The
// reporter never waits on the database or the event bus; skipped
// intermediate values are fine because a later report supersedes them.
type progressRelay struct {
	updates chan *model.Progress
	done    chan struct{}
	once    sync.Once
}

// newProgressRelay starts the drain goroutine. The sink runs on that
// goroutine only. Close must be called after the last Report.
func newProgressRelay(ctx context.Context, sink func(ctx context.Context, progress *model.Progress)) *progressRelay {
	r := &progressRelay{
		updates: make(chan *model.Progress, 1),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		for progress := range r.updates {
			sink(ctx, progress)
		}
	}()
	return r
}

// Report stores progress for the drain goroutine without blocking. When the
// slot is occupied the stale value is discarded first.
func (r *progressRelay) Report(progress *model.Progress) {
	for {
		select {
		case r.updates <- progress:
			return
		default:
		}
		select {
		case <-r.updates:
		default:
		}
	}
}

// Close stops accepting reports and waits for the drain goroutine to flush
// the remaining value.
func (r *progressRelay) Close() {
	r.once.Do(func() { close(r.updates) })
	<-r.done
}
