// Package domain picks a reachable embed-hosting domain from a priority list,
// remembers the last one that worked and demotes ones that fail.
package domain

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/robfig/cron/v3"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"sportstream/internal/httputil"
	"sportstream/internal/media"
	"sportstream/internal/state"
)

// DefaultProbeTimeout bounds each reachability check.
const DefaultProbeTimeout = 3 * time.Second

// ErrNoDomains is returned when the manager is built without any domain.
var ErrNoDomains = errors.New("no embed domains configured")

// Option configures a Manager.
type Option func(*Manager)

func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) { m.client = client }
}

func WithLogger(log *logrus.Entry) Option {
	return func(m *Manager) { m.log = log }
}

// WithStore persists the working-domain marker. The default keeps it in memory.
func WithStore(s state.Store) Option {
	return func(m *Manager) { m.store = s }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithProbeTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// WithMarkerTTL sets how long a working-domain marker is trusted.
func WithMarkerTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithStrictProbe treats 5xx answers as unreachable. By default any answer counts.
func WithStrictProbe(strict bool) Option {
	return func(m *Manager) { m.strict = strict }
}

// Manager tracks embed domains. It is safe for concurrent use.
type Manager struct {
	domains []media.EmbedDomain
	failed  *xsync.MapOf[string, struct{}]

	mu    sync.Mutex // serializes marker reads and writes
	store state.Store

	client       *http.Client
	log          *logrus.Entry
	now          func() time.Time
	probeTimeout time.Duration
	ttl          time.Duration
	strict       bool
}

// New creates a Manager over domains in priority order. The first is the primary.
func New(domains []media.EmbedDomain, opts ...Option) (*Manager, error) {
	if len(domains) == 0 {
		return nil, ErrNoDomains
	}

	m := &Manager{
		domains:      domains,
		failed:       xsync.NewMapOf[string, struct{}](),
		now:          time.Now,
		probeTimeout: DefaultProbeTimeout,
		ttl:          state.DefaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.client == nil {
		m.client = httputil.NewClient()
	}
	if m.log == nil {
		m.log = logrus.WithField("component", "domain")
	}
	if m.store == nil {
		store, err := state.NewFileStore("/domain.json", afero.NewMemMapFs())
		if err != nil {
			return nil, err
		}
		m.store = store
	}
	return m, nil
}

// Domains returns the configured domains in priority order.
func (m *Manager) Domains() []media.EmbedDomain {
	return append([]media.EmbedDomain(nil), m.domains...)
}

// Primary returns the highest-priority domain.
func (m *Manager) Primary() media.EmbedDomain {
	return m.domains[0]
}

// CurrentDomain returns the remembered working domain if it is still trusted,
// else the first domain not marked failed, else the primary. It never probes.
func (m *Manager) CurrentDomain(ctx context.Context) media.EmbedDomain {
	if d, ok := m.remembered(ctx); ok {
		return d
	}
	for _, d := range m.domains {
		if !m.IsFailed(d) {
			return d
		}
	}
	return m.Primary()
}

// Verify reports whether d answers a HEAD request within the probe timeout.
func (m *Manager) Verify(ctx context.Context, d media.EmbedDomain) bool {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	log := m.log.WithField("domain", d.URL)
	code, err := httputil.Head(ctx, m.client, d.URL)
	if err != nil {
		log.WithError(err).Debug("probe failed")
		return false
	}
	if m.strict && code >= http.StatusInternalServerError {
		log.WithField("status", code).Debug("probe answered with server error")
		return false
	}
	log.WithField("status", code).Debug("probe answered")
	return true
}

// ResolveWorkingDomain returns the remembered working domain, or probes the domains in
// priority order, remembers the first reachable one and marks the others failed.
// When none answers the primary is returned.
func (m *Manager) ResolveWorkingDomain(ctx context.Context) media.EmbedDomain {
	if d, ok := m.remembered(ctx); ok {
		return d
	}

	for _, d := range m.domains {
		if m.IsFailed(d) {
			continue
		}
		if m.Verify(ctx, d) {
			m.remember(ctx, d)
			return d
		}
		if ctx.Err() != nil {
			break
		}
		m.failed.Store(d.URL, struct{}{})
	}

	m.log.Info("no embed domain reachable, falling back to primary")
	return m.Primary()
}

// MarkFailed demotes d and forgets the remembered working domain.
func (m *Manager) MarkFailed(ctx context.Context, d media.EmbedDomain) error {
	m.failed.Store(d.URL, struct{}{})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.log.WithField("domain", d.URL).Info("domain marked failed")
	return m.store.Clear(ctx)
}

// IsFailed reports whether d has been marked failed.
func (m *Manager) IsFailed(d media.EmbedDomain) bool {
	_, ok := m.failed.Load(d.URL)
	return ok
}

// NextAfter returns the next domain after d, in priority order, that is not marked failed.
// An unknown d starts the search from the primary. Nothing is probed.
func (m *Manager) NextAfter(d media.EmbedDomain) mo.Option[media.EmbedDomain] {
	start := 0
	if i := m.index(d.URL); i >= 0 {
		start = i + 1
	}
	for _, next := range m.domains[start:] {
		if !m.IsFailed(next) {
			return mo.Some(next)
		}
	}
	return mo.None[media.EmbedDomain]()
}

// Reset clears the failed set and the remembered working domain.
func (m *Manager) Reset(ctx context.Context) error {
	m.failed.Clear()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Clear(ctx)
}

// Reprobe forgets every failure and resolves the working domain from scratch.
func (m *Manager) Reprobe(ctx context.Context) (media.EmbedDomain, error) {
	if err := m.Reset(ctx); err != nil {
		return media.EmbedDomain{}, err
	}
	return m.ResolveWorkingDomain(ctx), nil
}

// EmbedURL builds the watch page URL for stream n of a match on d.
func (m *Manager) EmbedURL(d media.EmbedDomain, source, id string, n int) string {
	return d.EmbedURL(source, id, n)
}

// Schedule reprobes on the given cron spec until ctx is done. Each result is passed
// to onProbe when it is not nil.
func (m *Manager) Schedule(ctx context.Context, spec string, onProbe func(media.EmbedDomain)) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		d, err := m.Reprobe(ctx)
		if err != nil {
			m.log.WithError(err).Warn("scheduled reprobe failed")
			return
		}
		if onProbe != nil {
			onProbe(d)
		}
	})
	if err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// DomainStatus is one row of a Status snapshot.
type DomainStatus struct {
	Domain  media.EmbedDomain `json:"domain"`
	Failed  bool              `json:"failed"`
	Current bool              `json:"current"`
}

// Status is a point-in-time view of the manager.
type Status struct {
	Domains     []DomainStatus `json:"domains"`
	Marker      state.Marker   `json:"marker"`
	MarkerFresh bool           `json:"markerFresh"`
}

// Status reports each domain's failed flag and the persisted marker.
func (m *Manager) Status(ctx context.Context) Status {
	m.mu.Lock()
	marker, err := m.store.Load(ctx)
	m.mu.Unlock()
	if err != nil {
		m.log.WithError(err).Warn("reading domain marker")
	}

	current := m.CurrentDomain(ctx)
	st := Status{
		Marker:      marker,
		MarkerFresh: marker.Fresh(m.now(), m.ttl),
	}
	for _, d := range m.domains {
		st.Domains = append(st.Domains, DomainStatus{
			Domain:  d,
			Failed:  m.IsFailed(d),
			Current: d.URL == current.URL,
		})
	}
	return st
}

// remembered returns the domain named by a fresh marker, if it is known and not failed.
// An expired marker is cleared along with the failed set.
func (m *Manager) remembered(ctx context.Context) (media.EmbedDomain, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	marker, err := m.store.Load(ctx)
	if err != nil {
		m.log.WithError(err).Warn("reading domain marker")
		return media.EmbedDomain{}, false
	}
	if marker.IsZero() {
		return media.EmbedDomain{}, false
	}

	if !marker.Fresh(m.now(), m.ttl) {
		m.log.WithField("domain", marker.Domain).Debug("working domain marker expired, clearing failures")
		m.failed.Clear()
		if err := m.store.Clear(ctx); err != nil {
			m.log.WithError(err).Warn("clearing domain marker")
		}
		return media.EmbedDomain{}, false
	}

	i := m.index(marker.Domain)
	if i < 0 || m.IsFailed(m.domains[i]) {
		return media.EmbedDomain{}, false
	}
	return m.domains[i], true
}

func (m *Manager) remember(ctx context.Context, d media.EmbedDomain) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(ctx, state.NewMarker(d.URL, m.now())); err != nil {
		m.log.WithError(err).Warn("saving domain marker")
	}
}

func (m *Manager) index(url string) int {
	for i, d := range m.domains {
		if d.URL == url {
			return i
		}
	}
	return -1
}
