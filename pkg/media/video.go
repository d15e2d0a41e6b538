package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrFFmpegNotFound is returned when the ffmpeg binary cannot be located
var ErrFFmpegNotFound = errors.New("ffmpeg not found")

// VideoOptions controls CompressVideo
type VideoOptions struct {
	MaxDimension int
	CRF          int
	Preset       string
	FFmpegPath   string
}

// DefaultVideoOptions produces H.264/AAC at 720p
func DefaultVideoOptions() VideoOptions {
	return VideoOptions{
		MaxDimension: 1280,
		CRF:          28,
		Preset:       "veryfast",
		FFmpegPath:   "ffmpeg",
	}
}

// CompressVideo transcodes src into an MP4 at dst. Unlike images, failures are returned.
func CompressVideo(ctx context.Context, src, dst string, opts VideoOptions) error {
	opts = withVideoDefaults(opts)

	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("video source: %w", err)
	}

	bin, err := exec.LookPath(opts.FFmpegPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFFmpegNotFound, err)
	}

	cmd := exec.CommandContext(ctx, bin, ffmpegArgs(src, dst, opts)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, lastLines(stderr.String(), 5))
	}
	return nil
}

func withVideoDefaults(opts VideoOptions) VideoOptions {
	def := DefaultVideoOptions()
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = def.MaxDimension
	}
	if opts.CRF <= 0 || opts.CRF > 51 {
		opts.CRF = def.CRF
	}
	if opts.Preset == "" {
		opts.Preset = def.Preset
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = def.FFmpegPath
	}
	return opts
}

func ffmpegArgs(src, dst string, opts VideoOptions) []string {
	max := strconv.Itoa(opts.MaxDimension)
	// fit inside max x max, keep even dimensions for yuv420p
	scale := fmt.Sprintf("scale='min(%s,iw)':'min(%s,ih)':force_original_aspect_ratio=decrease:force_divisible_by=2", max, max)
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-vf", scale,
		"-c:v", "libx264",
		"-preset", opts.Preset,
		"-crf", strconv.Itoa(opts.CRF),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		dst,
	}
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
