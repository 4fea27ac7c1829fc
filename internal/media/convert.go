package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Converter performs the audio-only post-processing step with ffmpeg.
type Converter struct {
	runner CommandRunner
	bin    string
}

// NewConverter creates a Converter using the given runner and binary path.
func NewConverter(runner CommandRunner, bin string) *Converter {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Converter{runner: runner, bin: bin}
}

// ToMP3 strips the video stream from src and encodes the audio to mp3,
// removing the pre-conversion intermediate on success so it never surfaces
// as a duplicate artifact. Returns the path of the converted file.
func (c *Converter) ToMP3(ctx context.Context, src string) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", errors.New("source file is required")
	}

	ext := filepath.Ext(src)
	dst := strings.TrimSuffix(src, ext) + ".mp3"

	cmd := Command{
		Bin: c.bin,
		Args: []string{
			"-y",
			"-i", src,
			"-vn",
			"-codec:a", "libmp3lame",
			"-qscale:a", "2",
			dst,
		},
	}
	if err := c.runner.Run(ctx, cmd); err != nil {
		// A failed encode must not leave a partial target behind.
		_ = os.Remove(dst)
		return "", fmt.Errorf("convert %s to mp3: %w", filepath.Base(src), err)
	}

	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove intermediate %s: %w", filepath.Base(src), err)
	}
	return dst, nil
}
