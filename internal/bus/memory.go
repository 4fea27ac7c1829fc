package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/clipforge/clipforge/internal/domain/model"
)

// MemoryBus is an in-process EventBus used by tests and single-node setups.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string]map[chan *model.ProgressEvent]struct{}
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[string]map[chan *model.ProgressEvent]struct{}),
	}
}

// Publish delivers the event to all current subscribers of the job. Events
// for slow subscribers with a full buffer are dropped.
func (b *MemoryBus) Publish(_ context.Context, event *model.ProgressEvent) error {
	if event == nil || event.JobID == "" {
		return errors.New("event with job id is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[event.JobID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for the job's events.
func (b *MemoryBus) Subscribe(
	_ context.Context,
	jobID string,
) (<-chan *model.ProgressEvent, func(), error) {
	if jobID == "" {
		return nil, nil, errors.New("job id is required")
	}

	ch := make(chan *model.ProgressEvent, subscriberBuffer)

	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan *model.ProgressEvent]struct{})
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[jobID], ch)
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}

	return ch, cancel, nil
}
