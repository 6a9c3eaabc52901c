package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"sportstream/internal/media"
)

// mpv exit codes, see mpv(1) EXIT CODES.
const (
	mpvExitUnplayable = 2
	mpvExitPartial    = 3
	mpvExitQuit       = 4
)

// MPV implements the Player interface for mpv.
type MPV struct{}

func (m *MPV) Name() string { return "mpv" }

func (m *MPV) Available() bool {
	_, err := exec.LookPath("mpv")
	return err == nil
}

// Play launches mpv on the stream. Live HLS is played with a small cache so a stall
// surfaces as an error rather than an endless buffer.
func (m *MPV) Play(ctx context.Context, stream media.ExtractedStream, title, referer string) error {
	cmd := exec.CommandContext(ctx, "mpv", mpvArgs(stream, title, referer)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	return mpvResult(cmd.Run())
}

func mpvArgs(stream media.ExtractedStream, title, referer string) []string {
	args := []string{
		stream.URL,
		"--force-media-title=" + title,
		"--really-quiet",
	}
	if referer != "" {
		args = append(args, "--referrer="+referer)
	}
	if stream.Kind == media.HLS {
		args = append(args, "--cache=yes", "--demuxer-max-bytes=50MiB")
	}
	return args
}

// mpvResult maps mpv's exit status onto Play's contract.
func mpvResult(err error) error {
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("running mpv: %w", err)
	}

	switch exitErr.ExitCode() {
	case mpvExitUnplayable, mpvExitPartial:
		return ErrPlaybackFailed
	case mpvExitQuit:
		return nil
	default:
		return fmt.Errorf("mpv exited with status %d", exitErr.ExitCode())
	}
}
