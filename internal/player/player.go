// Package player launches external media players on resolved streams.
// All player invocations use exec.CommandContext with explicit argument slices;
// nothing is passed through a shell.
package player

import (
	"context"
	"errors"

	"sportstream/internal/media"
)

// ErrPlaybackFailed means the player started but could not play the stream.
// Callers treat it as a signal that the embed domain serving the stream is bad.
var ErrPlaybackFailed = errors.New("stream failed to play")

// Player is the interface for media player implementations.
type Player interface {
	// Play blocks until the player exits. A stream the player cannot open
	// is reported as ErrPlaybackFailed; a user quitting is not an error.
	Play(ctx context.Context, stream media.ExtractedStream, title, referer string) error

	// Name returns the player name.
	Name() string

	// Available checks if the player binary exists in PATH.
	Available() bool
}

// New creates a player by name.
func New(name string) Player {
	switch name {
	case "mpv":
		return &MPV{}
	case "vlc":
		return &VLC{}
	case "iina", "celluloid":
		return &Generic{name: name}
	default:
		return &MPV{} // Default to mpv
	}
}
