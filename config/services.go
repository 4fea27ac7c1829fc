package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the download worker.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the job reaper for retention cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains download worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of jobs processed in parallel per job type.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// Lease is how long a reserved job stays owned without a heartbeat.
	Lease time.Duration `env:"WORKER_LEASE" envDefault:"30s"`

	// MaxJobDuration is the hard wall clock limit for one job.
	MaxJobDuration time.Duration `env:"WORKER_MAX_JOB_DURATION" envDefault:"2h"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.Lease < time.Second {
		w.Lease = time.Second
	}
	if w.MaxJobDuration < time.Minute {
		w.MaxJobDuration = time.Minute
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// DeadLetterMaxAge is the maximum age for dead letter rows before deletion.
	// Zero disables the purge entirely; dead letters are then retained until
	// an operator clears them. Failed jobs are never reaped: they and their
	// dead letters hold the failure history and go away only on explicit delete.
	DeadLetterMaxAge time.Duration `env:"REAPER_DEAD_LETTER_MAX_AGE" envDefault:"0"`

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.DeadLetterMaxAge < 0 {
		r.DeadLetterMaxAge = 0
	}
	if r.DeadLetterMaxAge > 0 && r.DeadLetterMaxAge < 24*time.Hour {
		r.DeadLetterMaxAge = 24 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}

// StorageConfig contains artifact storage layout configuration.
type StorageConfig struct {
	// TempDir holds per-job scratch directories while a download runs.
	TempDir string `env:"STORAGE_TEMP_DIR" envDefault:"/tmp/clipforge"`

	// DownloadsDir holds finalized artifacts, one directory per job.
	DownloadsDir string `env:"STORAGE_DOWNLOADS_DIR" envDefault:"/var/lib/clipforge/downloads"`
}

// Sanitize normalises storage paths.
func (s *StorageConfig) Sanitize() {
	s.TempDir = strings.TrimSpace(s.TempDir)
	s.DownloadsDir = strings.TrimSpace(s.DownloadsDir)
}

// MediaConfig contains the external media toolchain configuration.
type MediaConfig struct {
	// YtdlpBin is the yt-dlp binary path or name resolved via PATH.
	YtdlpBin string `env:"MEDIA_YTDLP_BIN" envDefault:"yt-dlp"`

	// FfmpegBin is the ffmpeg binary path or name resolved via PATH.
	FfmpegBin string `env:"MEDIA_FFMPEG_BIN" envDefault:"ffmpeg"`

	// PlaylistCacheTTL is how long flat playlist listings stay cached.
	PlaylistCacheTTL time.Duration `env:"MEDIA_PLAYLIST_CACHE_TTL" envDefault:"10m"`
}

// Sanitize applies guardrails to media toolchain configuration values.
func (m *MediaConfig) Sanitize() {
	if m.YtdlpBin = strings.TrimSpace(m.YtdlpBin); m.YtdlpBin == "" {
		m.YtdlpBin = "yt-dlp"
	}
	if m.FfmpegBin = strings.TrimSpace(m.FfmpegBin); m.FfmpegBin == "" {
		m.FfmpegBin = "ffmpeg"
	}
	if m.PlaylistCacheTTL <= 0 {
		m.PlaylistCacheTTL = 10 * time.Minute
	}
}

// TokenConfig contains signed download link configuration.
type TokenConfig struct {
	// Secret is the HMAC signing secret for download tokens.
	// Required when the http service is enabled.
	Secret string `env:"TOKEN_SECRET"`

	// TTL is the lifetime of issued download tokens.
	TTL time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
}

// Sanitize applies guardrails to token configuration values.
func (t *TokenConfig) Sanitize() {
	t.Secret = strings.TrimSpace(t.Secret)
	if t.TTL <= 0 {
		t.TTL = time.Hour
	}
}
