package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"sportstream/internal/media"
)

// VLC implements the Player interface for VLC media player.
type VLC struct{}

func (v *VLC) Name() string { return "vlc" }

func (v *VLC) Available() bool {
	_, err := exec.LookPath("vlc")
	return err == nil
}

// Play launches VLC. VLC exits non-zero on user close as well as on errors,
// so playback failures cannot be told apart and are never reported.
func (v *VLC) Play(ctx context.Context, stream media.ExtractedStream, title, referer string) error {
	args := []string{
		stream.URL,
		"--meta-title", title,
		"--play-and-exit",
	}
	if referer != "" {
		args = append(args, "--http-referrer", referer)
	}

	cmd := exec.CommandContext(ctx, "vlc", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return fmt.Errorf("running vlc: %w", err)
	}
	return nil
}
