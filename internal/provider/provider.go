// Package provider aggregates stream listings for a match from an ordered set of
// provider APIs, failing over between bases and endpoint templates.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"sportstream/internal/cache"
	"sportstream/internal/httputil"
	"sportstream/internal/media"
)

// DefaultTimeout bounds each provider request.
const DefaultTimeout = 8 * time.Second

// DefaultEndpoints are the path templates tried against every base, in order.
var DefaultEndpoints = []string{
	"/api/stream/{source}/{id}",
	"/api/streams/{source}/{id}",
	"/stream/{source}/{id}",
}

var (
	// ErrNoStreams means every provider was tried and none listed a stream.
	ErrNoStreams = errors.New("no streams available")
	// ErrNoProviders means no provider base is configured.
	ErrNoProviders = errors.New("no provider bases configured")
)

// Policy decides whether aggregation stops at the first accepted response.
type Policy int

const (
	ContinueAll Policy = iota
	FirstSuccess
)

func (p Policy) String() string {
	if p == FirstSuccess {
		return "first"
	}
	return "all"
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) { r.client = client }
}

func WithLogger(log *logrus.Entry) Option {
	return func(r *Resolver) { r.log = log }
}

func WithCache(c *cache.Cache[[]media.StreamRecord]) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithEndpoints replaces the endpoint templates. Empty keeps the defaults.
func WithEndpoints(templates ...string) Option {
	return func(r *Resolver) {
		if len(templates) > 0 {
			r.endpoints = templates
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPolicy sets the policy used by FetchFromProviders.
func WithPolicy(p Policy) Option {
	return func(r *Resolver) { r.policy = p }
}

// Resolver queries provider APIs for a match's streams. It is safe for concurrent use.
type Resolver struct {
	bases     []string
	endpoints []string
	client    *http.Client
	log       *logrus.Entry
	cache     *cache.Cache[[]media.StreamRecord]
	timeout   time.Duration
	policy    Policy
}

// New creates a Resolver over bases, tried in the given order.
func New(bases []string, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		bases:     bases,
		endpoints: DefaultEndpoints,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.client == nil {
		r.client = httputil.NewClient()
	}
	if r.log == nil {
		r.log = logrus.WithField("component", "provider")
	}
	if r.cache == nil {
		c, err := cache.New[[]media.StreamRecord](cache.Config{})
		if err != nil {
			return nil, err
		}
		r.cache = c
	}
	return r, nil
}

// FetchFromProviders aggregates streams for a match using the configured policy.
func (r *Resolver) FetchFromProviders(ctx context.Context, matchID, source string) ([]media.StreamRecord, error) {
	return r.Fetch(ctx, matchID, source, r.policy)
}

// Fetch aggregates streams for a match, deduplicated by embed URL.
// Outcomes, including "nothing found", are cached per source, match and policy.
func (r *Resolver) Fetch(ctx context.Context, matchID, source string, policy Policy) ([]media.StreamRecord, error) {
	if err := httputil.ValidateID(matchID); err != nil {
		return nil, fmt.Errorf("invalid match ID: %w", err)
	}
	if err := httputil.ValidateID(source); err != nil {
		return nil, fmt.Errorf("invalid source: %w", err)
	}
	if len(r.bases) == 0 {
		return nil, ErrNoProviders
	}

	key := cacheKey(matchID, source, policy)
	log := r.log.WithFields(logrus.Fields{"match": matchID, "source": source, "policy": policy.String()})

	if v, ok := r.cache.Get(key); ok {
		log.WithField("found", v.IsPresent()).Debug("cache hit")
		if records, present := v.Get(); present {
			return clone(records), nil
		}
		return nil, ErrNoStreams
	}

	records := r.collect(ctx, log, matchID, source, policy)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.cache.Put(key, records, len(records) > 0)
	if len(records) == 0 {
		log.Info("no provider listed any stream")
		return nil, ErrNoStreams
	}
	return clone(records), nil
}

// Retry drops the cached outcome and fetches again.
func (r *Resolver) Retry(ctx context.Context, matchID, source string, policy Policy) ([]media.StreamRecord, error) {
	r.cache.Delete(cacheKey(matchID, source, policy))
	return r.Fetch(ctx, matchID, source, policy)
}

func (r *Resolver) collect(ctx context.Context, log *logrus.Entry, matchID, source string, policy Policy) []media.StreamRecord {
	var records []media.StreamRecord
	seen := make(map[string]bool)

	for _, base := range r.bases {
		for _, tmpl := range r.endpoints {
			if ctx.Err() != nil {
				return records
			}

			target := httputil.JoinBase(base, httputil.ExpandTemplate(tmpl, source, matchID))
			items, err := r.request(ctx, target)
			if err != nil {
				entry := log.WithError(err).WithField("url", target)
				if isTransport(err) {
					entry.Debug("provider unreachable, skipping its remaining endpoints")
					break
				}
				entry.Debug("provider response rejected")
				continue
			}

			before := len(records)
			for _, item := range items {
				if seen[item.embed()] {
					continue
				}
				seen[item.embed()] = true
				records = append(records, item.record(matchID, source, base, len(records)+1))
			}
			log.WithFields(logrus.Fields{"url": target, "items": len(items), "new": len(records) - before}).Debug("provider answered")

			if policy == FirstSuccess && len(records) > 0 {
				return records
			}
		}
	}
	return records
}

func (r *Resolver) request(ctx context.Context, target string) ([]rawStream, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := httputil.GetJSON(ctx, r.client, target)
	if err != nil {
		return nil, err
	}
	return parseStreams(body)
}

// isTransport reports whether err means the provider could not be reached at all,
// as opposed to answering with a bad status or an unrecognized body.
func isTransport(err error) bool {
	var se *httputil.StatusError
	return !errors.As(err, &se) && !errors.Is(err, ErrMalformed)
}

// Placeholder builds a best-guess record pointing at the first stream of a match on domain,
// for callers that prefer a fallback link over ErrNoStreams.
func Placeholder(matchID, source string, domain media.EmbedDomain) media.StreamRecord {
	return media.StreamRecord{
		EmbedURL:    domain.EmbedURL(source, matchID, 1),
		Source:      source,
		MatchID:     matchID,
		StreamIndex: 1,
		Language:    defaultLanguage,
		IsHD:        true,
		OriginBase:  domain.URL,
	}
}

func cacheKey(matchID, source string, policy Policy) string {
	return source + "/" + matchID + "/" + policy.String()
}

func clone(records []media.StreamRecord) []media.StreamRecord {
	return append([]media.StreamRecord(nil), records...)
}
