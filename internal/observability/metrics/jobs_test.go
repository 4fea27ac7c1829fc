package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMetric struct {
	name  string
	tags  map[string]string
	value any
}

type captureSink struct {
	metrics []recordedMetric
}

func (s *captureSink) Count(name string, value int64, tags map[string]string) {
	s.metrics = append(s.metrics, recordedMetric{name: name, tags: tags, value: value})
}

func (s *captureSink) Gauge(name string, value float64, tags map[string]string) {
	s.metrics = append(s.metrics, recordedMetric{name: name, tags: tags, value: value})
}

func (s *captureSink) Timing(name string, value time.Duration, tags map[string]string) {
	s.metrics = append(s.metrics, recordedMetric{name: name, tags: tags, value: value})
}

func TestEmitJobLifecycle(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	EmitJobLifecycle(sink, JobMetric{
		JobType:    "video",
		Transition: TransitionComplete,
		Result:     ResultSuccess,
		Duration:   3 * time.Second,
	})

	require.Len(t, sink.metrics, 2)
	assert.Equal(t, "jobs.transition", sink.metrics[0].name)
	assert.Equal(t, "video", sink.metrics[0].tags["job_type"])
	assert.Equal(t, TransitionComplete, sink.metrics[0].tags["transition"])
	assert.Equal(t, "jobs.duration", sink.metrics[1].name)
}

func TestEmitJobLifecycleTagsErrorClass(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	EmitJobLifecycle(sink, JobMetric{
		JobType:    "playlist",
		Transition: TransitionDeadLetter,
		Result:     ResultError,
		Err:        errors.New("boom"),
	})

	require.Len(t, sink.metrics, 1)
	assert.NotEmpty(t, sink.metrics[0].tags["error_class"])
}

func TestEmitQueueDepth(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	EmitQueueDepth(sink, 4, 2)

	require.Len(t, sink.metrics, 2)
	assert.Equal(t, "jobs.pending", sink.metrics[0].name)
	assert.Equal(t, float64(4), sink.metrics[0].value)
	assert.Equal(t, "jobs.running", sink.metrics[1].name)

	EmitQueueDepth(nil, 1, 1)
}

func TestCloneTags(t *testing.T) {
	t.Parallel()

	assert.Nil(t, CloneTags(nil))

	src := map[string]string{"a": "1", "": "drop"}
	out := CloneTags(src)
	assert.Equal(t, map[string]string{"a": "1"}, out)

	out["a"] = "2"
	assert.Equal(t, "1", src["a"])
}
