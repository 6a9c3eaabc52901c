package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sportstream/internal/domain"
	"sportstream/internal/media"
	"sportstream/internal/server"
)

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the extraction service other clients use as their intermediary",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sportstream %s\n", Version)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "Listen address (default from config)")
}

func serveRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger("cli")

	if flagListen != "" {
		cfg.Listen = flagListen
	}

	// The service is the intermediary, so it must never call one itself.
	e, err := newExtractor(false)
	if err != nil {
		return err
	}
	if !e.Configured() {
		return fmt.Errorf("serve needs direct_fetch or at least one proxy")
	}

	// Keep the working-domain marker warm for CLI clients sharing the state file.
	if len(cfg.Domains) > 0 {
		m, closeStore, err := newDomainManager()
		if err != nil {
			return err
		}
		stop := startWatch(ctx, func(ctx context.Context) { watchDomains(ctx, m) }, closeStore)
		defer stop()
	}

	srv := server.New(cfg.Listen, cfg.APIKey, Version, e, logger("server"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("stopping server: %w", err)
	}
	return <-errCh
}

// startWatch runs watch in the background until the returned stop is called.
// stop cancels watch, waits for it to return and only then calls release.
func startWatch(ctx context.Context, watch func(context.Context), release func()) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		watch(ctx)
	}()
	return func() {
		cancel()
		<-done
		release()
	}
}

func watchDomains(ctx context.Context, m *domain.Manager) {
	log := logger("cli")
	d := m.ResolveWorkingDomain(ctx)
	log.WithField("domain", d.URL).Info("working domain")

	err := m.Schedule(ctx, cfg.ProbeSchedule, func(d media.EmbedDomain) {
		log.WithField("domain", d.URL).Debug("working domain")
	})
	if err != nil {
		log.WithError(err).Warn("domain schedule stopped")
	}
}
