package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"sportstream/internal/extract"
	"sportstream/internal/media"
	"sportstream/internal/provider"
)

var (
	flagSingle      bool
	flagPlaceholder bool
	flagExtract     bool
)

var streamsCmd = &cobra.Command{
	Use:   "streams <source> <match-id>",
	Short: "List the streams providers publish for a match",
	Args:  cobra.ExactArgs(2),
	RunE:  streamsRun,
}

func init() {
	streamsCmd.Flags().BoolVarP(&flagSingle, "single", "1", false, "Stop at the first provider that returns streams")
	streamsCmd.Flags().BoolVarP(&flagPlaceholder, "placeholder", "p", false, "Print a placeholder stream on the current domain when none are found")
	streamsCmd.Flags().BoolVarP(&flagExtract, "extract", "e", false, "Also resolve every stream's embed page")
}

// streamRow is one line of streams output.
type streamRow struct {
	media.StreamRecord
	Stream *media.ExtractedStream `json:"stream,omitempty"`
}

func streamsRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	source, matchID := args[0], args[1]

	policy := provider.ContinueAll
	if flagSingle {
		policy = provider.FirstSuccess
	}

	r, err := newResolver(policy)
	if err != nil {
		return err
	}

	fetch := r.FetchFromProviders
	if flagRetry {
		fetch = func(ctx context.Context, matchID, source string) ([]media.StreamRecord, error) {
			return r.Retry(ctx, matchID, source, policy)
		}
	}
	records, err := fetch(ctx, matchID, source)
	if errors.Is(err, provider.ErrNoStreams) && flagPlaceholder {
		m, closeStore, derr := newDomainManager()
		if derr != nil {
			return fmt.Errorf("placeholder: %w", derr)
		}
		defer closeStore()
		records = []media.StreamRecord{provider.Placeholder(matchID, source, m.CurrentDomain(ctx))}
		err = nil
	}
	if err != nil {
		return fmt.Errorf("fetching streams for %s/%s: %w", source, matchID, err)
	}

	rows := make([]streamRow, len(records))
	for i, rec := range records {
		rows[i].StreamRecord = rec
	}

	if flagExtract {
		e, err := newExtractor(true)
		if err != nil {
			return err
		}
		extractAll(cmd, e, rows)
	}

	if flagJSON {
		return printJSON(rows)
	}
	for _, row := range rows {
		quality := "SD"
		if row.IsHD {
			quality = "HD"
		}
		line := fmt.Sprintf("%2d  %-8s %s  %s", row.StreamIndex, row.Language, quality, row.EmbedURL)
		if row.Stream != nil {
			line += "  -> " + row.Stream.URL
		}
		fmt.Println(line)
	}
	return nil
}

// extractAll resolves every row's embed URL concurrently.
func extractAll(cmd *cobra.Command, e *extract.Extractor, rows []streamRow) {
	log := logger("cli")
	var wg sync.WaitGroup
	for i := range rows {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := resolveEmbed(cmd.Context(), e, rows[i].EmbedURL)
			if err != nil {
				log.WithError(err).WithField("embed_url", rows[i].EmbedURL).Warn("extraction failed")
				return
			}
			if s, ok := result.Get(); ok {
				rows[i].Stream = &s
			}
		}()
	}
	wg.Wait()
}
