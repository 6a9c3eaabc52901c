// Package ui lets the user pick a stream through fzf.
// Items are piped to fzf via stdin as plain text; no preview commands or
// shell-evaluated strings carry provider data.
package ui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"sportstream/internal/media"
)

// ErrCancelled is returned when the user aborts the picker.
var ErrCancelled = errors.New("selection cancelled")

// Select presents items via fzf and returns the chosen item's index.
func Select(ctx context.Context, prompt string, items []string) (int, error) {
	if len(items) == 0 {
		return -1, fmt.Errorf("no items to select from")
	}

	fzfPath, err := exec.LookPath("fzf")
	if err != nil {
		return -1, fmt.Errorf("fzf not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, fzfPath,
		"--prompt", prompt+" > ",
		"--height", "40%",
		"--reverse",
		"--with-nth", "2..", // hide the index column
		"--delimiter", "\t",
		"--no-multi",
		"--cycle",
	)
	cmd.Stdin = strings.NewReader(numbered(items))
	cmd.Stderr = os.Stderr

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 130 {
			return -1, ErrCancelled
		}
		return -1, fmt.Errorf("fzf failed: %w", err)
	}

	return parseSelection(stdout.String(), len(items))
}

// SelectStream asks the user to pick one of records.
// A single record is returned without prompting.
func SelectStream(ctx context.Context, records []media.StreamRecord) (media.StreamRecord, error) {
	if len(records) == 1 {
		return records[0], nil
	}
	idx, err := Select(ctx, "Stream", StreamItems(records))
	if err != nil {
		return media.StreamRecord{}, err
	}
	return records[idx], nil
}

// StreamItems formats one picker line per record.
func StreamItems(records []media.StreamRecord) []string {
	items := make([]string, len(records))
	for i, r := range records {
		quality := "SD"
		if r.IsHD {
			quality = "HD"
		}
		items[i] = fmt.Sprintf("#%d %s %s  %s", r.StreamIndex, r.Language, quality, hostOf(r.EmbedURL))
	}
	return items
}

// numbered prefixes each item with its index so the choice survives fzf's reordering.
// Tabs and newlines inside items would break the format and are flattened.
func numbered(items []string) string {
	flatten := strings.NewReplacer("\t", " ", "\n", " ")
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d\t%s\n", i, flatten.Replace(item))
	}
	return b.String()
}

// parseSelection extracts the index from fzf's output line.
func parseSelection(out string, n int) (int, error) {
	selected := strings.TrimSpace(out)
	if selected == "" {
		return -1, fmt.Errorf("no selection made")
	}

	field, _, _ := strings.Cut(selected, "\t")
	var idx int
	if _, err := fmt.Sscanf(field, "%d", &idx); err != nil {
		return -1, fmt.Errorf("parsing selection index: %w", err)
	}
	if idx < 0 || idx >= n {
		return -1, fmt.Errorf("selection index %d out of range", idx)
	}
	return idx, nil
}

func hostOf(rawURL string) string {
	rest, ok := strings.CutPrefix(rawURL, "https://")
	if !ok {
		rest = strings.TrimPrefix(rawURL, "http://")
	}
	host, _, _ := strings.Cut(rest, "/")
	return host
}
