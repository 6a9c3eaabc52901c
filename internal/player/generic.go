package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"sportstream/internal/media"
)

// Generic implements the Player interface for players like iina and celluloid
// that accept mpv-compatible arguments.
type Generic struct {
	name string
}

func (g *Generic) Name() string { return g.name }

func (g *Generic) Available() bool {
	_, err := exec.LookPath(g.name)
	return err == nil
}

// Play launches the generic player. Exit statuses are not mapped to playback failures.
func (g *Generic) Play(ctx context.Context, stream media.ExtractedStream, title, referer string) error {
	args := []string{stream.URL, "--force-media-title=" + title}
	if referer != "" {
		args = append(args, "--referrer="+referer)
	}

	cmd := exec.CommandContext(ctx, g.name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return fmt.Errorf("running %s: %w", g.name, err)
	}
	return nil
}
