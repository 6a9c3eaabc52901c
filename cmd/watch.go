package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sportstream/internal/domain"
	"sportstream/internal/extract"
	"sportstream/internal/history"
	"sportstream/internal/httputil"
	"sportstream/internal/media"
	"sportstream/internal/player"
	"sportstream/internal/provider"
	"sportstream/internal/ui"
)

var flagPick bool

var watchCmd = &cobra.Command{
	Use:   "watch <source> <match-id> [stream-no]",
	Short: "Play a match, falling back to the next embed domain when a stream fails",
	Long: `watch builds the embed URL for a match on the current working domain, resolves it
to a media URL and plays it. When nothing can be extracted or the player cannot open the
stream, the domain is marked failed and the next one is tried.

Without a stream number the one last watched for the match is used, else stream 1.
With --pick the streams listed by the providers are offered for selection first.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: watchRun,
}

func init() {
	watchCmd.Flags().BoolVar(&flagPick, "pick", false, "Choose among provider-listed streams with fzf")
}

func watchRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	source, matchID := args[0], args[1]
	if err := httputil.ValidateID(source); err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}
	if err := httputil.ValidateID(matchID); err != nil {
		return fmt.Errorf("invalid match id: %w", err)
	}

	p := player.New(cfg.Player)
	if !p.Available() {
		return fmt.Errorf("player %q not found in PATH", cfg.Player)
	}

	streamNo, picked, err := chooseStream(ctx, source, matchID, args[2:])
	if err != nil {
		return err
	}

	e, err := newExtractor(true)
	if err != nil {
		return err
	}
	m, closeStore, err := newDomainManager()
	if err != nil {
		return err
	}
	defer closeStore()

	w := &watcher{
		extractor: e,
		domains:   m,
		player:    p,
		log:       logger("cli").WithFields(logrus.Fields{"source": source, "match": matchID}),
		title:     fmt.Sprintf("%s %s #%d", source, matchID, streamNo),
	}

	// A provider-listed embed that lives outside the domain list gets one attempt first.
	if picked.EmbedURL != "" {
		err := w.play(ctx, picked.EmbedURL)
		if err == nil {
			saveHistory(source, matchID, streamNo, picked.EmbedURL, w.last, "")
			return nil
		}
		if !errors.Is(err, errUnplayable) {
			return err
		}
		w.log.WithField("embed_url", picked.EmbedURL).Info("provider stream failed, trying embed domains")
	}

	d, ok := w.playOnDomains(ctx, source, matchID, streamNo)
	if !ok {
		return errNoStream
	}
	saveHistory(source, matchID, streamNo, d.EmbedURL(source, matchID, streamNo), w.last, d.URL)
	return nil
}

// chooseStream picks the stream number from the argument, the provider picker or history.
// The picked record is returned when it came from a provider.
func chooseStream(ctx context.Context, source, matchID string, rest []string) (int, media.StreamRecord, error) {
	if len(rest) == 1 {
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 1 {
			return 0, media.StreamRecord{}, fmt.Errorf("invalid stream number %q", rest[0])
		}
		return n, media.StreamRecord{}, nil
	}

	if flagPick {
		r, err := newResolver(provider.ContinueAll)
		if err != nil {
			return 0, media.StreamRecord{}, err
		}
		records, err := r.FetchFromProviders(ctx, matchID, source)
		if err != nil {
			return 0, media.StreamRecord{}, fmt.Errorf("listing streams: %w", err)
		}
		rec, err := ui.SelectStream(ctx, records)
		if err != nil {
			return 0, media.StreamRecord{}, err
		}
		return rec.StreamIndex, rec, nil
	}

	if e, ok, err := history.Find(source, matchID); err == nil && ok && e.StreamNo > 0 {
		return e.StreamNo, media.StreamRecord{}, nil
	}
	return 1, media.StreamRecord{}, nil
}

// errUnplayable means the embed yielded no stream or the player could not open it.
var errUnplayable = errors.New("embed not playable")

type watcher struct {
	extractor *extract.Extractor
	domains   *domain.Manager
	player    player.Player
	log       *logrus.Entry
	title     string
	last      media.ExtractedStream
}

// playOnDomains walks the embed domains from the working one, demoting each that fails.
func (w *watcher) playOnDomains(ctx context.Context, source, matchID string, n int) (media.EmbedDomain, bool) {
	d := w.domains.ResolveWorkingDomain(ctx)
	for {
		embed := d.EmbedURL(source, matchID, n)
		err := w.play(ctx, embed)
		if err == nil {
			return d, true
		}
		if ctx.Err() != nil {
			return d, false
		}

		w.log.WithError(err).WithField("domain", d.URL).Warn("domain failed, trying next")
		if err := w.domains.MarkFailed(ctx, d); err != nil {
			w.log.WithError(err).Warn("marking domain failed")
		}
		next, ok := w.domains.NextAfter(d).Get()
		if !ok {
			return d, false
		}
		d = next
	}
}

func (w *watcher) play(ctx context.Context, embedURL string) error {
	result, err := w.extractor.Resolve(ctx, embedURL)
	if err != nil {
		return err
	}
	stream, ok := result.Get()
	if !ok {
		return errUnplayable
	}

	w.log.WithField("stream_url", stream.URL).Debug("playing")
	err = w.player.Play(ctx, stream, w.title, embedURL)
	if errors.Is(err, player.ErrPlaybackFailed) {
		// The extracted URL is dead; the next visit must re-extract.
		w.extractor.Forget(embedURL)
		return errUnplayable
	}
	if err != nil {
		return err
	}
	w.last = stream
	return nil
}

// saveHistory records the watched stream. Failures are logged, never fatal.
func saveHistory(source, matchID string, n int, embedURL string, stream media.ExtractedStream, domainURL string) {
	entry := media.HistoryEntry{
		Source:    source,
		MatchID:   matchID,
		StreamNo:  n,
		EmbedURL:  embedURL,
		StreamURL: stream.URL,
		Domain:    domainURL,
		WatchedAt: time.Now(),
	}
	if err := history.Save(entry); err != nil {
		logger("cli").WithError(err).Warn("saving history failed")
	}
}
