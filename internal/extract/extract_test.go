package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"sportstream/internal/cache"
	"sportstream/internal/media"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// failingTransport fails the test on any request.
type failingTransport struct{ t *testing.T }

func (f failingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	f.t.Errorf("unexpected request to %s", r.URL)
	return nil, errors.New("no network")
}

func newCache(t *testing.T, clock *fakeClock) *cache.Cache[media.ExtractedStream] {
	t.Helper()
	c, err := cache.New[media.ExtractedStream](cache.Config{Now: clock.Now})
	if err != nil {
		t.Fatalf("cache.New() error: %v", err)
	}
	return c
}

// pageServer serves body for every request and counts hits.
func pageServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestResolveDirectMediaURL(t *testing.T) {
	e, err := New(WithHTTPClient(&http.Client{Transport: failingTransport{t}}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	tests := []struct {
		url  string
		kind media.Kind
	}{
		{"https://cdn.example/live/index.m3u8", media.HLS},
		{"https://cdn.example/vod/clip.MP4?token=1", media.MP4},
	}
	for _, tt := range tests {
		got, err := e.Resolve(context.Background(), tt.url)
		if err != nil {
			t.Fatalf("Resolve(%q) error: %v", tt.url, err)
		}
		s, ok := got.Get()
		if !ok || s.URL != tt.url || s.Kind != tt.kind {
			t.Errorf("Resolve(%q) = %+v (%v), want unchanged %v", tt.url, s, ok, tt.kind)
		}
	}
}

func TestResolveNotConfigured(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := e.Resolve(context.Background(), "https://embed.example/e/1"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Resolve() error = %v, want ErrNotConfigured", err)
	}
}

func TestResolveInvalidURL(t *testing.T) {
	e, err := New(WithDirectFetch(true))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	for _, u := range []string{"", "ftp://embed.example/e/1", "not a url"} {
		if _, err := e.Resolve(context.Background(), u); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("Resolve(%q) accepted an invalid URL", u)
		}
	}
}

func TestResolveDirectFetchCachesSuccess(t *testing.T) {
	srv, hits := pageServer(t, `<script>player.setup({source: "/hls/live.m3u8"});</script>`)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	e, err := New(WithHTTPClient(srv.Client()), WithDirectFetch(true), WithCache(newCache(t, clock)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	embed := srv.URL + "/embed/abc"
	want := srv.URL + "/hls/live.m3u8"

	for i := range 2 {
		got, err := e.Resolve(context.Background(), embed)
		if err != nil {
			t.Fatalf("Resolve() #%d error: %v", i, err)
		}
		if s, ok := got.Get(); !ok || s.URL != want || s.Kind != media.HLS {
			t.Fatalf("Resolve() #%d = %+v, want %s", i, s, want)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("two resolves within TTL made %d requests, want 1", hits.Load())
	}

	clock.Advance(cache.DefaultSuccessTTL)
	if _, err := e.Resolve(context.Background(), embed); err != nil {
		t.Fatalf("Resolve() after TTL error: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("resolve after TTL made %d total requests, want 2", hits.Load())
	}
}

func TestResolveFailureRetriesSooner(t *testing.T) {
	srv, hits := pageServer(t, `<html><body>stream offline</body></html>`)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	e, err := New(WithHTTPClient(srv.Client()), WithDirectFetch(true), WithCache(newCache(t, clock)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	embed := srv.URL + "/embed/offline"

	got, err := e.Resolve(context.Background(), embed)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got.IsPresent() {
		t.Fatalf("Resolve() = %v, want none", got)
	}

	clock.Advance(cache.DefaultFailureTTL - time.Second)
	e.Resolve(context.Background(), embed)
	if hits.Load() != 1 {
		t.Errorf("cached failure re-fetched early: %d requests", hits.Load())
	}

	clock.Advance(time.Second)
	e.Resolve(context.Background(), embed)
	if hits.Load() != 2 {
		t.Errorf("failure not retried after failure TTL: %d requests", hits.Load())
	}
}

func TestResolvePrefersHLS(t *testing.T) {
	srv, _ := pageServer(t, `var a = {src: "https://cdn.example/low.mp4"}; var b = {file: "https://cdn.example/live.m3u8"};`)
	e, err := New(WithHTTPClient(srv.Client()), WithDirectFetch(true))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got, err := e.Resolve(context.Background(), srv.URL+"/embed/1")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if s, _ := got.Get(); s.URL != "https://cdn.example/live.m3u8" || s.Kind != media.HLS {
		t.Errorf("Resolve() = %+v, want the m3u8", s)
	}
}

func TestResolveThroughProxies(t *testing.T) {
	var badHits, goodHits atomic.Int32
	var gotTarget atomic.Value

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badHits.Add(1)
		http.Error(w, "blocked", http.StatusBadGateway)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		goodHits.Add(1)
		gotTarget.Store(r.URL.Query().Get("url"))
		w.Write([]byte(`{"file":"\/\/cdn.example\/p\/index.m3u8"}`))
	}))
	defer good.Close()

	e, err := New(WithProxies(bad.URL+"/?url=", good.URL+"/?url="))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	embed := "https://embed.example/watch?id=7&source=alpha"
	got, err := e.Resolve(context.Background(), embed)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if s, _ := got.Get(); s.URL != "https://cdn.example/p/index.m3u8" {
		t.Errorf("Resolve() = %+v", s)
	}
	if badHits.Load() != 1 || goodHits.Load() != 1 {
		t.Errorf("proxy hits = %d/%d, want 1/1", badHits.Load(), goodHits.Load())
	}
	if gotTarget.Load() != embed {
		t.Errorf("proxy received target %v, want %q", gotTarget.Load(), embed)
	}
}

func TestResolveViaIntermediary(t *testing.T) {
	var gotKey, gotEmbed string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		var req struct {
			EmbedURL string `json:"embedUrl"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotEmbed = req.EmbedURL
		json.NewEncoder(w).Encode(map[string]string{"hlsUrl": "https://cdn.example/i/master.m3u8"})
	}))
	defer srv.Close()

	e, err := New(WithHTTPClient(srv.Client()), WithIntermediary(srv.URL+"/api/extract", "secret"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got, err := e.Resolve(context.Background(), "https://embed.example/e/9")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if s, _ := got.Get(); s.URL != "https://cdn.example/i/master.m3u8" || s.Kind != media.HLS {
		t.Errorf("Resolve() = %+v", s)
	}
	if gotKey != "secret" {
		t.Errorf("X-API-Key = %q, want secret", gotKey)
	}
	if gotEmbed != "https://embed.example/e/9" {
		t.Errorf("embedUrl = %q", gotEmbed)
	}
}

func TestRetryAsksIntermediaryToBypassCache(t *testing.T) {
	var retries []bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Retry bool `json:"retry"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		retries = append(retries, req.Retry)
		json.NewEncoder(w).Encode(map[string]string{"hlsUrl": "https://cdn.example/i/master.m3u8"})
	}))
	defer srv.Close()

	e, err := New(WithHTTPClient(srv.Client()), WithIntermediary(srv.URL+"/api/extract", ""))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	e.Resolve(context.Background(), "https://embed.example/e/10")
	e.Resolve(context.Background(), "https://embed.example/e/10")
	e.Retry(context.Background(), "https://embed.example/e/10")

	if len(retries) != 2 || retries[0] || !retries[1] {
		t.Errorf("intermediary retry flags = %v, want [false true]", retries)
	}
}

func TestResolveIntermediaryFallsThrough(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/extract", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/embed/1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<video src="clip.mp4"></video>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, err := New(
		WithHTTPClient(srv.Client()),
		WithIntermediary(srv.URL+"/api/extract", ""),
		WithDirectFetch(true),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got, err := e.Resolve(context.Background(), srv.URL+"/embed/1")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if s, _ := got.Get(); s.URL != srv.URL+"/embed/clip.mp4" || s.Kind != media.MP4 {
		t.Errorf("Resolve() = %+v", s)
	}
}

func TestResolveSkipsInvalidCandidates(t *testing.T) {
	srv, _ := pageServer(t, `file: "/live/a%zz.m3u8"; backup = "https://cdn.example/ok.mp4"`)
	e, err := New(WithHTTPClient(srv.Client()), WithDirectFetch(true))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got, err := e.Resolve(context.Background(), srv.URL+"/embed/bad")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	s, ok := got.Get()
	if !ok {
		t.Fatal("Resolve() found nothing, want the valid mp4")
	}
	if s.URL != "https://cdn.example/ok.mp4" || s.Kind != media.MP4 {
		t.Errorf("Resolve() = %+v, want the valid mp4", s)
	}
	if _, err := url.Parse(s.URL); err != nil {
		t.Errorf("returned URL does not parse: %v", err)
	}
}

func TestRetryBypassesCache(t *testing.T) {
	srv, hits := pageServer(t, `file: "https://cdn.example/a.m3u8"`)
	e, err := New(WithHTTPClient(srv.Client()), WithDirectFetch(true))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	embed := srv.URL + "/embed/r"

	e.Resolve(context.Background(), embed)
	e.Retry(context.Background(), embed)
	if hits.Load() != 2 {
		t.Errorf("Retry made %d total requests, want 2", hits.Load())
	}
}

func TestForgetDropsCachedOutcome(t *testing.T) {
	srv, hits := pageServer(t, `file: "https://cdn.example/a.m3u8"`)
	e, err := New(WithHTTPClient(srv.Client()), WithDirectFetch(true))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	embed := srv.URL + "/embed/f"

	e.Resolve(context.Background(), embed)
	e.Forget(embed)
	e.Resolve(context.Background(), embed)
	if hits.Load() != 2 {
		t.Errorf("resolve after Forget made %d total requests, want 2", hits.Load())
	}
}

func TestResolveCancelledIsNotCached(t *testing.T) {
	srv, _ := pageServer(t, `file: "https://cdn.example/a.m3u8"`)
	c := newCache(t, &fakeClock{now: time.Unix(1000, 0)})
	e, err := New(WithHTTPClient(srv.Client()), WithDirectFetch(true), WithCache(c))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Resolve(ctx, srv.URL+"/embed/c"); !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve() error = %v, want context.Canceled", err)
	}
	if c.Len() != 0 {
		t.Errorf("cancelled resolve wrote %d cache entries", c.Len())
	}
}
