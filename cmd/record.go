package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sportstream/internal/download"
)

var (
	flagOut   string
	flagFor   time.Duration
	flagTitle string
)

var recordCmd = &cobra.Command{
	Use:   "record <embed-url>",
	Short: "Resolve an embed page and record the stream with ffmpeg",
	Args:  cobra.ExactArgs(1),
	RunE:  recordRun,
}

func init() {
	recordCmd.Flags().StringVarP(&flagOut, "out", "o", "", "Output directory (default from config)")
	recordCmd.Flags().DurationVarP(&flagFor, "for", "t", 0, "Stop after this long (default from config)")
	recordCmd.Flags().StringVar(&flagTitle, "title", "", "File name and title metadata (default: timestamp)")
}

func recordRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	embedURL := args[0]

	e, err := newExtractor(true)
	if err != nil {
		return err
	}
	result, err := resolveEmbed(ctx, e, embedURL)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", embedURL, err)
	}
	stream, ok := result.Get()
	if !ok {
		return errNoStream
	}

	dir := flagOut
	if dir == "" {
		if dir, err = cfg.ExpandRecordDir(); err != nil {
			return fmt.Errorf("resolving record dir: %w", err)
		}
	}
	length := cfg.RecordFor.Duration
	if flagFor > 0 {
		length = flagFor
	}
	title := flagTitle
	if title == "" {
		title = "stream-" + time.Now().Format("20060102-150405")
	}

	path, err := download.Record(ctx, stream, download.Options{
		Dir:      dir,
		Title:    title,
		Referer:  embedURL,
		Duration: length,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Recorded: %s\n", path)
	return nil
}
