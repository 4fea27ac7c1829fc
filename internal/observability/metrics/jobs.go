package metrics

import (
	"time"

	obserrors "github.com/clipforge/clipforge/internal/observability/errors"
	"github.com/clipforge/clipforge/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Lifecycle transition names used in metric tags.
const (
	TransitionCreate     = "create"
	TransitionReserve    = "reserve"
	TransitionComplete   = "complete"
	TransitionRetry      = "retry"
	TransitionDeadLetter = "dead_letter"
	TransitionReap       = "reap"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	JobType    string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job_type":   in.JobType,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("jobs.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("jobs.duration", in.Duration, CloneTags(tags))
	}
}

// EmitQueueDepth reports current queue sizes from a stats snapshot.
func EmitQueueDepth(sink statsd.Sink, pending, running int64) {
	if sink == nil {
		return
	}
	sink.Gauge("jobs.pending", float64(pending), nil)
	sink.Gauge("jobs.running", float64(running), nil)
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
