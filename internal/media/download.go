package media

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrUnresolvedOutputPath indicates the tool exited successfully but never
// reported where it wrote the output file.
var ErrUnresolvedOutputPath = errors.New("download finished without reporting an output path")

// DefaultOutputTemplate is the yt-dlp output template for single downloads.
const DefaultOutputTemplate = "%(title).200B.%(ext)s"

// DownloadRequest describes one single-video fetch.
type DownloadRequest struct {
	URL       string
	OutputDir string
	// Template overrides DefaultOutputTemplate when set.
	Template string
	Quality  string
}

// ProgressObserver receives monotonic percent updates during a download.
type ProgressObserver func(percent float64, message string)

// Downloader wraps the external download tool behind the subprocess runner.
type Downloader struct {
	runner CommandRunner
	bin    string
}

// NewDownloader creates a Downloader using the given runner and binary path.
func NewDownloader(runner CommandRunner, bin string) *Downloader {
	if bin == "" {
		bin = "yt-dlp"
	}
	return &Downloader{runner: runner, bin: bin}
}

// Download fetches one video and returns the resolved output file path. Both
// output streams feed one monotonic tracker; percent regressions are
// suppressed before the observer sees them.
func (d *Downloader) Download(
	ctx context.Context,
	req DownloadRequest,
	observe ProgressObserver,
) (string, error) {
	if strings.TrimSpace(req.URL) == "" {
		return "", errors.New("download url is required")
	}
	if strings.TrimSpace(req.OutputDir) == "" {
		return "", errors.New("output directory is required")
	}

	template := req.Template
	if template == "" {
		template = DefaultOutputTemplate
	}

	args := []string{
		"--no-playlist",
		"--newline",
		"--restrict-filenames",
		"-f", selectFormat(req.Quality),
		"-P", req.OutputDir,
		"-o", template,
		req.URL,
	}

	tracker := &Tracker{}
	cmd := Command{
		Bin:  d.bin,
		Args: args,
		OnLine: func(_ OutputStream, line string) {
			obs := tracker.Observe(line)
			if obs.Percent != nil && observe != nil {
				observe(*obs.Percent, obs.Message)
			}
		},
	}

	if err := d.runner.Run(ctx, cmd); err != nil {
		return "", err
	}

	dest := tracker.Destination()
	if dest == "" {
		return "", ErrUnresolvedOutputPath
	}
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(req.OutputDir, dest)
	}
	return dest, nil
}

// selectFormat maps a quality tier to a yt-dlp format selector.
func selectFormat(rawQuality string) string {
	switch strings.ToLower(strings.TrimSpace(rawQuality)) {
	case "", "best":
		return "bv*+ba/b"
	case "1080p", "1080", "hd":
		return "bv*[height<=1080]+ba/b[height<=1080]"
	case "720p", "720":
		return "bv*[height<=720]+ba/b[height<=720]"
	case "480p", "480":
		return "bv*[height<=480]+ba/b[height<=480]"
	default:
		return "bv*+ba/b"
	}
}

// FormatSelector exposes the selector chosen for a quality tier.
func FormatSelector(quality string) string {
	return selectFormat(quality)
}
