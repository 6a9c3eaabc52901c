package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/mo"

	"sportstream/internal/cache"
	"sportstream/internal/domain"
	"sportstream/internal/extract"
	"sportstream/internal/media"
	"sportstream/internal/provider"
	"sportstream/internal/state"
)

// newExtractor builds the stream extractor from cfg. The serve command passes
// withIntermediary=false so it never forwards requests to itself.
func newExtractor(withIntermediary bool) (*extract.Extractor, error) {
	c, err := cache.New[media.ExtractedStream](cache.Config{
		SuccessTTL: cfg.SuccessTTL.Duration,
		FailureTTL: cfg.FailureTTL.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction cache: %w", err)
	}

	opts := []extract.Option{
		extract.WithLogger(logger("extract")),
		extract.WithCache(c),
		extract.WithProxies(cfg.Proxies...),
		extract.WithDirectFetch(cfg.DirectFetch),
		extract.WithTimeouts(cfg.PageTimeout.Duration, cfg.IntermediaryTimeout.Duration),
	}
	if withIntermediary && cfg.IntermediaryURL != "" {
		opts = append(opts, extract.WithIntermediary(cfg.IntermediaryURL, cfg.IntermediaryKey))
	}
	return extract.New(opts...)
}

func newResolver(policy provider.Policy) (*provider.Resolver, error) {
	c, err := cache.New[[]media.StreamRecord](cache.Config{
		SuccessTTL: cfg.SuccessTTL.Duration,
		FailureTTL: cfg.FailureTTL.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("stream cache: %w", err)
	}

	opts := []provider.Option{
		provider.WithLogger(logger("provider")),
		provider.WithCache(c),
		provider.WithTimeout(cfg.ProviderTimeout.Duration),
		provider.WithPolicy(policy),
	}
	if len(cfg.Endpoints) > 0 {
		opts = append(opts, provider.WithEndpoints(cfg.Endpoints...))
	}
	return provider.New(cfg.Providers, opts...)
}

// newDomainManager opens the marker store and builds the domain manager.
// The returned close function releases the store.
func newDomainManager() (*domain.Manager, func(), error) {
	path, err := cfg.ResolvedStatePath()
	if err != nil {
		return nil, nil, err
	}
	store, err := state.Open(cfg.StateBackend, path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening domain state: %w", err)
	}

	m, err := domain.New(cfg.EmbedDomains(),
		domain.WithLogger(logger("domain")),
		domain.WithStore(store),
		domain.WithProbeTimeout(cfg.ProbeTimeout.Duration),
		domain.WithMarkerTTL(cfg.DomainTTL.Duration),
		domain.WithStrictProbe(cfg.StrictProbe),
	)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return m, func() { store.Close() }, nil
}

// findDomain returns the configured domain whose URL is rawURL, ignoring a trailing slash.
func findDomain(m *domain.Manager, rawURL string) (media.EmbedDomain, error) {
	for _, d := range m.Domains() {
		if strings.TrimRight(d.URL, "/") == strings.TrimRight(rawURL, "/") {
			return d, nil
		}
	}
	return media.EmbedDomain{}, fmt.Errorf("%q is not a configured domain", rawURL)
}

// resolveEmbed resolves embedURL, bypassing cached outcomes when --retry is set.
func resolveEmbed(ctx context.Context, e *extract.Extractor, embedURL string) (mo.Option[media.ExtractedStream], error) {
	if flagRetry {
		return e.Retry(ctx, embedURL)
	}
	return e.Resolve(ctx, embedURL)
}
