// Package bus fans job progress events out to stream subscribers over Redis
// pub/sub so any http instance can serve events for jobs run elsewhere.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/clipforge/clipforge/internal/domain/model"
)

const channelPrefix = "clipforge:jobs:"

// subscriberBuffer bounds how many undelivered events a slow subscriber may
// hold before further events for it are dropped.
const subscriberBuffer = 64

// RedisBus implements core.EventBus on Redis pub/sub.
type RedisBus struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// RedisBusOptions bundles dependencies for NewRedisBus.
type RedisBusOptions struct {
	Client redis.UniversalClient
	Logger *slog.Logger
}

// NewRedisBus creates a RedisBus with the given client.
func NewRedisBus(opts RedisBusOptions) (*RedisBus, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{client: opts.Client, logger: logger}, nil
}

func channelFor(jobID string) string {
	return channelPrefix + jobID
}

// Publish delivers an event to all current subscribers of the job's channel.
// Publishing to a channel with no subscribers is not an error.
func (b *RedisBus) Publish(ctx context.Context, event *model.ProgressEvent) error {
	if event == nil || event.JobID == "" {
		return errors.New("event with job id is required")
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}

	if err := b.client.Publish(ctx, channelFor(event.JobID), raw).Err(); err != nil {
		return fmt.Errorf("publish progress event: %w", err)
	}
	return nil
}

// Subscribe returns a channel of events for the given job and a cancel
// function. The returned channel is closed once cancel is called or the
// context ends.
func (b *RedisBus) Subscribe(
	ctx context.Context,
	jobID string,
) (<-chan *model.ProgressEvent, func(), error) {
	if jobID == "" {
		return nil, nil, errors.New("job id is required")
	}

	pubsub := b.client.Subscribe(ctx, channelFor(jobID))

	// Confirm the subscription before returning so no events published
	// after Subscribe returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe to job channel: %w", err)
	}

	out := make(chan *model.ProgressEvent, subscriberBuffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		src := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-src:
				if !ok {
					return
				}
				var event model.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.WarnContext(ctx, "drop malformed progress event",
						"job_id", jobID,
						"error", err,
					)
					continue
				}
				select {
				case out <- &event:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	var closed bool
	cancel := func() {
		if closed {
			return
		}
		closed = true
		close(done)
		_ = pubsub.Close()
	}

	return out, cancel, nil
}
