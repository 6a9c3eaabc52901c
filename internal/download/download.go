// Package download records live streams to disk with ffmpeg.
// Uses exec.CommandContext with explicit argument slices and validates
// output paths against directory traversal.
package download

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"sportstream/internal/httputil"
	"sportstream/internal/media"
)

// Options controls a recording.
type Options struct {
	Dir      string
	Title    string
	Referer  string
	Duration time.Duration // stop after this long; zero records until the stream ends
}

// Record copies the stream into an MPEG-TS file in opts.Dir and returns its path.
// Audio and video are copied without re-encoding. Cancelling ctx stops ffmpeg and
// keeps what was written so far.
func Record(ctx context.Context, stream media.ExtractedStream, opts Options) (string, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	outputPath, err := httputil.SafeOutputPath(opts.Dir, opts.Title+".ts")
	if err != nil {
		return "", fmt.Errorf("invalid output path: %w", err)
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, ffmpegArgs(stream, opts, outputPath)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// ffmpeg finalizes the file on 'q' but not on SIGKILL.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 10 * time.Second

	fmt.Fprintf(os.Stderr, "Recording to: %s\n", outputPath)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return outputPath, nil
		}
		if info, statErr := os.Stat(outputPath); statErr == nil && info.Size() == 0 {
			os.Remove(outputPath)
		}
		return "", fmt.Errorf("ffmpeg recording failed: %w", err)
	}
	return outputPath, nil
}

func ffmpegArgs(stream media.ExtractedStream, opts Options, outputPath string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "warning"}
	if opts.Referer != "" {
		args = append(args, "-referer", opts.Referer)
	}
	if stream.Kind == media.HLS {
		args = append(args, "-reconnect", "1", "-reconnect_streamed", "1")
	}
	args = append(args, "-i", stream.URL)
	if opts.Duration > 0 {
		args = append(args, "-t", strconv.Itoa(int(opts.Duration.Seconds())))
	}
	args = append(args,
		"-c", "copy",
		"-metadata", "title="+opts.Title,
		"-f", "mpegts",
		outputPath,
	)
	return args
}
