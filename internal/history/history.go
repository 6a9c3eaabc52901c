// Package history records which stream was last watched for each match, as TSV.
// Uses atomic writes (temp+rename) to prevent data corruption.
package history

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"sportstream/internal/config"
	"sportstream/internal/media"
)

// TSV columns: source, match id, stream no, embed url, stream url, domain, watched at (unix seconds)
const numColumns = 7

// Load reads the history file and returns all entries, most recent first.
func Load() ([]media.HistoryEntry, error) {
	path, err := config.HistoryPath()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening history: %w", err)
	}
	defer f.Close()

	var entries []media.HistoryEntry
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, err := parseLine(line)
		if err != nil {
			continue // Skip malformed lines
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	slices.SortStableFunc(entries, func(a, b media.HistoryEntry) int {
		return b.WatchedAt.Compare(a.WatchedAt)
	})
	return entries, nil
}

// Save records entry, replacing any earlier entry for the same match.
func Save(entry media.HistoryEntry) error {
	entries, err := Load()
	if err != nil {
		return err
	}

	entries = slices.DeleteFunc(entries, func(e media.HistoryEntry) bool {
		return sameMatch(e, entry.Source, entry.MatchID)
	})
	return write(append([]media.HistoryEntry{entry}, entries...))
}

// Remove deletes the entry for a match.
func Remove(source, matchID string) error {
	entries, err := Load()
	if err != nil {
		return err
	}

	filtered := slices.DeleteFunc(entries, func(e media.HistoryEntry) bool {
		return sameMatch(e, source, matchID)
	})
	return write(filtered)
}

// Find returns the entry for a match, if any.
func Find(source, matchID string) (media.HistoryEntry, bool, error) {
	entries, err := Load()
	if err != nil {
		return media.HistoryEntry{}, false, err
	}
	for _, e := range entries {
		if sameMatch(e, source, matchID) {
			return e, true, nil
		}
	}
	return media.HistoryEntry{}, false, nil
}

// FormatForDisplay creates one display line per entry.
func FormatForDisplay(entries []media.HistoryEntry) []string {
	items := make([]string, 0, len(entries))
	for _, e := range entries {
		display := fmt.Sprintf("%s/%s #%d", e.Source, e.MatchID, e.StreamNo)
		if !e.WatchedAt.IsZero() {
			display += "  " + e.WatchedAt.Local().Format("2006-01-02 15:04")
		}
		if e.Domain != "" {
			display += "  " + e.Domain
		}
		items = append(items, display)
	}
	return items
}

func sameMatch(e media.HistoryEntry, source, matchID string) bool {
	return e.Source == source && e.MatchID == matchID
}

// write replaces the history file atomically: temp file + rename.
func write(entries []media.HistoryEntry) error {
	path, err := config.HistoryPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating history dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "history-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	writer := bufio.NewWriter(tmpFile)
	for _, e := range entries {
		if _, err := writer.WriteString(formatLine(e) + "\n"); err != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("writing history: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flushing history: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming history file: %w", err)
	}
	return nil
}

// parseLine parses a TSV line into a HistoryEntry.
func parseLine(line string) (media.HistoryEntry, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < numColumns {
		return media.HistoryEntry{}, fmt.Errorf("expected %d columns, got %d", numColumns, len(fields))
	}

	streamNo, err := strconv.Atoi(fields[2])
	if err != nil {
		return media.HistoryEntry{}, fmt.Errorf("stream number: %w", err)
	}
	watched, _ := strconv.ParseInt(fields[6], 10, 64)

	e := media.HistoryEntry{
		Source:    fields[0],
		MatchID:   fields[1],
		StreamNo:  streamNo,
		EmbedURL:  fields[3],
		StreamURL: fields[4],
		Domain:    fields[5],
	}
	if watched > 0 {
		e.WatchedAt = time.Unix(watched, 0)
	}
	return e, nil
}

// formatLine converts a HistoryEntry to a TSV line. Tabs and newlines in fields are dropped.
func formatLine(e media.HistoryEntry) string {
	var watched int64
	if !e.WatchedAt.IsZero() {
		watched = e.WatchedAt.Unix()
	}
	return strings.Join([]string{
		clean(e.Source),
		clean(e.MatchID),
		strconv.Itoa(e.StreamNo),
		clean(e.EmbedURL),
		clean(e.StreamURL),
		clean(e.Domain),
		strconv.FormatInt(watched, 10),
	}, "\t")
}

var fieldCleaner = strings.NewReplacer("\t", " ", "\n", " ", "\r", "")

func clean(s string) string {
	return fieldCleaner.Replace(s)
}
