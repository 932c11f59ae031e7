// Package ffmpeg archives raw recordings in a compact codec by running the
// ffmpeg binary.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Strob0t/lifelog/internal/config"
)

// Transcoder converts lossless captures to Opus.
type Transcoder struct {
	bin     string
	codec   string
	bitrate string

	// execCommand is swappable for testing.
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// New returns a transcoder for cfg.
func New(cfg config.Transcode) *Transcoder {
	return &Transcoder{
		bin:         cfg.FFmpeg,
		codec:       cfg.Codec,
		bitrate:     cfg.Bitrate,
		execCommand: exec.CommandContext,
	}
}

// Eligible reports whether path is a lossless capture worth transcoding.
func Eligible(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".flac":
		return true
	}
	return false
}

// Eligible reports whether t should archive path.
func (t *Transcoder) Eligible(path string) bool { return Eligible(path) }

// OutputPath is the archive name for path.
func OutputPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".opus"
}

// Transcode writes OutputPath(path) and removes path once ffmpeg reports
// success. On failure the original is kept and any partial output removed.
func (t *Transcoder) Transcode(ctx context.Context, path string) (string, error) {
	out := OutputPath(path)
	cmd := t.execCommand(ctx, t.bin, "-y", "-loglevel", "error", "-i", path, "-c:a", t.codec, "-b:a", t.bitrate, out)
	if output, err := cmd.CombinedOutput(); err != nil {
		if rmErr := os.Remove(out); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.WarnContext(ctx, "failed to remove partial transcode", "path", out, "error", rmErr)
		}
		return "", fmt.Errorf("ffmpeg %s: %w: %s", path, err, strings.TrimSpace(string(output)))
	}

	if err := os.Remove(path); err != nil {
		slog.WarnContext(ctx, "failed to remove original after transcode", "path", path, "error", err)
	}
	return out, nil
}

// Version runs `ffmpeg -version` and returns its first line.
func (t *Transcoder) Version(ctx context.Context) (string, error) {
	output, err := t.execCommand(ctx, t.bin, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg not available (%s): %w", t.bin, err)
	}
	line, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(line), nil
}
