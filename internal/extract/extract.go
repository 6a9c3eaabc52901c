// Package extract resolves embed page URLs into playable stream URLs.
// An external intermediary service is asked first; failing that the page is fetched
// (directly or through forwarding proxies) and scanned for media URLs.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/sirupsen/logrus"

	"sportstream/internal/cache"
	"sportstream/internal/httputil"
	"sportstream/internal/media"
	"sportstream/internal/pattern"
	"sportstream/internal/urlnorm"
)

const (
	DefaultPageTimeout         = 10 * time.Second
	DefaultIntermediaryTimeout = 10 * time.Second
)

var (
	// ErrNotConfigured means no intermediary, proxy or direct fetch is available.
	ErrNotConfigured = errors.New("no intermediary, proxy or direct fetch configured")
	// ErrInvalidURL means the embed URL is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid embed URL")
)

// Option configures an Extractor.
type Option func(*Extractor)

func WithHTTPClient(client *http.Client) Option {
	return func(e *Extractor) { e.client = client }
}

func WithLogger(log *logrus.Entry) Option {
	return func(e *Extractor) { e.log = log }
}

// WithCache shares an outcome cache, e.g. one built with a test clock.
func WithCache(c *cache.Cache[media.ExtractedStream]) Option {
	return func(e *Extractor) { e.cache = c }
}

// WithIntermediary sets the extraction service endpoint and its optional API key.
func WithIntermediary(endpoint, apiKey string) Option {
	return func(e *Extractor) {
		e.intermediaryURL = endpoint
		e.intermediaryKey = apiKey
	}
}

// WithProxies sets forwarding proxy bases, tried in order. The target URL is
// query-escaped and appended to each base.
func WithProxies(bases ...string) Option {
	return func(e *Extractor) { e.proxies = bases }
}

// WithDirectFetch makes the extractor try the embed page itself before any proxy.
func WithDirectFetch(enabled bool) Option {
	return func(e *Extractor) { e.direct = enabled }
}

func WithTimeouts(page, intermediary time.Duration) Option {
	return func(e *Extractor) {
		if page > 0 {
			e.pageTimeout = page
		}
		if intermediary > 0 {
			e.intermediaryTimeout = intermediary
		}
	}
}

// Extractor turns embed URLs into stream URLs and memoizes the outcome.
// It is safe for concurrent use.
type Extractor struct {
	client *http.Client
	log    *logrus.Entry
	cache  *cache.Cache[media.ExtractedStream]

	intermediaryURL string
	intermediaryKey string
	proxies         []string
	direct          bool

	pageTimeout         time.Duration
	intermediaryTimeout time.Duration
}

// New creates an Extractor.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{
		pageTimeout:         DefaultPageTimeout,
		intermediaryTimeout: DefaultIntermediaryTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.client == nil {
		e.client = httputil.NewClient()
	}
	if e.log == nil {
		e.log = logrus.WithField("component", "extract")
	}
	if e.cache == nil {
		c, err := cache.New[media.ExtractedStream](cache.Config{})
		if err != nil {
			return nil, err
		}
		e.cache = c
	}
	return e, nil
}

// Resolve returns the best stream for embedURL, or None when nothing could be found.
// URLs that already point at media are returned as-is without any network traffic.
// Only an invalid URL or a missing configuration is reported as an error.
func (e *Extractor) Resolve(ctx context.Context, embedURL string) (mo.Option[media.ExtractedStream], error) {
	return e.lookup(ctx, embedURL, false)
}

// Retry drops any cached outcome for embedURL and resolves it again.
// The intermediary is asked to bypass its own cache as well.
func (e *Extractor) Retry(ctx context.Context, embedURL string) (mo.Option[media.ExtractedStream], error) {
	e.Forget(embedURL)
	return e.lookup(ctx, embedURL, true)
}

func (e *Extractor) lookup(ctx context.Context, embedURL string, fresh bool) (mo.Option[media.ExtractedStream], error) {
	embedURL = strings.TrimSpace(embedURL)
	if err := httputil.ValidateURL(embedURL); err != nil {
		return mo.None[media.ExtractedStream](), fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if media.HasMediaExtension(embedURL) {
		return mo.Some(media.ExtractedStream{URL: embedURL, Kind: media.KindOf(embedURL)}), nil
	}

	if !e.Configured() {
		return mo.None[media.ExtractedStream](), ErrNotConfigured
	}

	log := e.log.WithField("embed_url", embedURL)

	if v, ok := e.cache.Get(embedURL); ok {
		log.WithField("found", v.IsPresent()).Debug("cache hit")
		return v, nil
	}

	result := e.resolve(ctx, log, embedURL, fresh)
	if err := ctx.Err(); err != nil {
		return mo.None[media.ExtractedStream](), err
	}

	e.cache.PutOption(embedURL, result)
	return result, nil
}

// Forget drops the cached outcome for embedURL, e.g. after the stream it produced failed to play.
func (e *Extractor) Forget(embedURL string) {
	e.cache.Delete(strings.TrimSpace(embedURL))
}

// Purge forgets every cached outcome.
func (e *Extractor) Purge() {
	e.cache.Purge()
}

// Configured reports whether any resolution path is available.
func (e *Extractor) Configured() bool {
	return e.intermediaryURL != "" || len(e.proxies) > 0 || e.direct
}

func (e *Extractor) resolve(ctx context.Context, log *logrus.Entry, embedURL string, fresh bool) mo.Option[media.ExtractedStream] {
	if e.intermediaryURL != "" {
		s, err := e.viaIntermediary(ctx, embedURL, fresh)
		if err == nil {
			log.WithField("stream_url", s.URL).Debug("resolved by intermediary")
			return mo.Some(s)
		}
		log.WithError(err).Debug("intermediary did not resolve")
	}

	page, err := e.fetchPage(ctx, log, embedURL)
	if err != nil {
		log.WithError(err).Info("embed page not reachable")
		return mo.None[media.ExtractedStream]()
	}

	best, ok := pattern.Best(absolute(pattern.Candidates(page), embedURL))
	if !ok {
		log.Info("no stream found in embed page")
		return mo.None[media.ExtractedStream]()
	}

	log.WithFields(logrus.Fields{"stream_url": best.URL, "kind": best.Kind}).Debug("resolved from page")
	return mo.Some(media.ExtractedStream{URL: best.URL, Kind: best.Kind})
}

type intermediaryRequest struct {
	EmbedURL string `json:"embedUrl"`
	Retry    bool   `json:"retry,omitempty"`
}

type intermediaryResponse struct {
	HLSURL string `json:"hlsUrl"`
}

func (e *Extractor) viaIntermediary(ctx context.Context, embedURL string, fresh bool) (media.ExtractedStream, error) {
	ctx, cancel := context.WithTimeout(ctx, e.intermediaryTimeout)
	defer cancel()

	var headers map[string]string
	if e.intermediaryKey != "" {
		headers = map[string]string{"X-API-Key": e.intermediaryKey}
	}

	body, err := httputil.PostJSON(ctx, e.client, e.intermediaryURL, intermediaryRequest{EmbedURL: embedURL, Retry: fresh}, headers)
	if err != nil {
		return media.ExtractedStream{}, err
	}

	var resp intermediaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return media.ExtractedStream{}, fmt.Errorf("parsing intermediary response: %w", err)
	}
	if resp.HLSURL == "" {
		return media.ExtractedStream{}, fmt.Errorf("intermediary returned no stream")
	}

	abs, ok := urlnorm.ToAbsolute(resp.HLSURL, embedURL)
	if !ok || httputil.ValidateURL(abs) != nil {
		return media.ExtractedStream{}, fmt.Errorf("intermediary returned unusable URL %q", resp.HLSURL)
	}

	kind := media.KindOf(abs)
	if kind == media.Unknown {
		kind = media.HLS
	}
	return media.ExtractedStream{URL: abs, Kind: kind}, nil
}

// fetchPage returns the first page body any route delivers.
func (e *Extractor) fetchPage(ctx context.Context, log *logrus.Entry, embedURL string) (string, error) {
	var lastErr error
	for _, target := range e.pageRoutes(embedURL) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page, err := e.fetch(ctx, target, embedURL)
		if err != nil {
			log.WithError(err).WithField("route", target).Debug("page fetch failed")
			lastErr = err
			continue
		}
		return page, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no page routes")
	}
	return "", lastErr
}

func (e *Extractor) fetch(ctx context.Context, target, embedURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.pageTimeout)
	defer cancel()

	referer := ""
	if target == embedURL {
		referer = origin(embedURL)
	}
	return httputil.GetPage(ctx, e.client, target, referer)
}

// pageRoutes lists the URLs to try for embedURL: itself when direct fetch is on,
// then each proxy.
func (e *Extractor) pageRoutes(embedURL string) []string {
	routes := make([]string, 0, len(e.proxies)+1)
	if e.direct {
		routes = append(routes, embedURL)
	}
	for _, base := range e.proxies {
		routes = append(routes, base+url.QueryEscape(embedURL))
	}
	return routes
}

// absolute resolves every candidate against base, dropping ones that do not end up
// as valid absolute http(s) URLs.
func absolute(candidates iter.Seq[pattern.Candidate], base string) iter.Seq[pattern.Candidate] {
	return func(yield func(pattern.Candidate) bool) {
		for c := range candidates {
			abs, ok := urlnorm.ToAbsolute(c.URL, base)
			if !ok || httputil.ValidateURL(abs) != nil {
				continue
			}
			if !yield(pattern.Candidate{URL: abs, Kind: c.Kind}) {
				return
			}
		}
	}
}

func origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}
