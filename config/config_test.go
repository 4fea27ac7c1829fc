package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	t.Parallel()

	services, err := ParseServices("http, worker,reaper")
	require.NoError(t, err)
	assert.True(t, services[ServiceModeHTTP])
	assert.True(t, services[ServiceModeWorker])
	assert.True(t, services[ServiceModeReaper])

	_, err = ParseServices("")
	require.Error(t, err)

	_, err = ParseServices("http,scheduler")
	require.Error(t, err)

	_, err = ParseServices(" , ,")
	require.Error(t, err)
}

func TestWorkerSanitizeClampsValues(t *testing.T) {
	t.Parallel()

	w := WorkerConfig{Concurrency: 0, Lease: 10 * time.Millisecond, MaxJobDuration: time.Second}
	w.Sanitize()
	assert.Equal(t, 1, w.Concurrency)
	assert.Equal(t, time.Second, w.Lease)
	assert.Equal(t, time.Minute, w.MaxJobDuration)
}

func TestReaperSanitizeClampsValues(t *testing.T) {
	t.Parallel()

	r := ReaperConfig{
		Interval:         time.Second,
		CompletedMaxAge:  time.Minute,
		DeadLetterMaxAge: time.Hour,
		BatchSize:        0,
	}
	r.Sanitize()
	assert.Equal(t, time.Minute, r.Interval)
	assert.Equal(t, time.Hour, r.CompletedMaxAge)
	assert.Equal(t, 24*time.Hour, r.DeadLetterMaxAge)
	assert.Equal(t, 1, r.BatchSize)

	r.BatchSize = 50000
	r.Sanitize()
	assert.Equal(t, 10000, r.BatchSize)
}

func TestReaperSanitizeKeepsDeadLetterPurgeDisabled(t *testing.T) {
	t.Parallel()

	r := ReaperConfig{Interval: time.Minute, CompletedMaxAge: time.Hour, BatchSize: 100}
	r.Sanitize()
	assert.Equal(t, time.Duration(0), r.DeadLetterMaxAge)

	r.DeadLetterMaxAge = -time.Hour
	r.Sanitize()
	assert.Equal(t, time.Duration(0), r.DeadLetterMaxAge)
}

func TestMediaSanitizeDefaultsBinaries(t *testing.T) {
	t.Parallel()

	m := MediaConfig{YtdlpBin: "  ", FfmpegBin: "", PlaylistCacheTTL: 0}
	m.Sanitize()
	assert.Equal(t, "yt-dlp", m.YtdlpBin)
	assert.Equal(t, "ffmpeg", m.FfmpegBin)
	assert.Equal(t, 10*time.Minute, m.PlaylistCacheTTL)
}

func TestTokenSanitize(t *testing.T) {
	t.Parallel()

	tc := TokenConfig{Secret: "  s3cret  ", TTL: -1}
	tc.Sanitize()
	assert.Equal(t, "s3cret", tc.Secret)
	assert.Equal(t, time.Hour, tc.TTL)
}

func TestNotificationsSanitizeDisablesUnconfiguredSinks(t *testing.T) {
	t.Parallel()

	n := ObservabilityNotificationsConfig{
		Enabled: true,
		Slack:   SlackNotificationConfig{Enabled: true, WebhookURL: "   "},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: "rk",
		},
	}
	n.Sanitize()
	assert.False(t, n.Slack.Enabled)
	assert.True(t, n.PagerDuty.Enabled)
	assert.Equal(t, "clipforge", n.PagerDuty.Source)

	n.Enabled = false
	n.Sanitize()
	assert.False(t, n.PagerDuty.Enabled)
}

func TestServiceFlags(t *testing.T) {
	t.Parallel()

	cfg := AppConfig{Services: "http,worker"}
	assert.True(t, cfg.IsHTTPServerEnabled())
	assert.True(t, cfg.IsWorkerEnabled())
	assert.False(t, cfg.IsReaperEnabled())

	cfg.Services = "bogus"
	assert.False(t, cfg.IsHTTPServerEnabled())
}
