package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"sportstream/internal/media"
)

// jsonServer answers every request with body and counts hits.
func jsonServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetchDedupAcrossProviders(t *testing.T) {
	a, _ := jsonServer(t, http.StatusOK, `[{"embedUrl":"https://embed.example/x","source":"alpha","streamNo":1}]`)
	b, _ := jsonServer(t, http.StatusOK, `{"streams":[
		{"embedUrl":"https://embed.example/x","source":"bravo","streamNo":7},
		{"embed_url":"https://embed.example/y","language":"ES","hd":false}
	]}`)

	r, err := New([]string{a.URL, b.URL}, WithEndpoints("/api/stream/{source}/{id}"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got, err := r.FetchFromProviders(context.Background(), "m1", "alpha")
	if err != nil {
		t.Fatalf("FetchFromProviders() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(got), got)
	}

	if got[0].EmbedURL != "https://embed.example/x" || got[0].OriginBase != a.URL || got[0].StreamIndex != 1 {
		t.Errorf("first record = %+v, want the one from the first provider", got[0])
	}
	want := media.StreamRecord{
		EmbedURL:    "https://embed.example/y",
		Source:      "alpha",
		MatchID:     "m1",
		StreamIndex: 2,
		Language:    "ES",
		IsHD:        false,
		OriginBase:  b.URL,
	}
	if got[1] != want {
		t.Errorf("second record = %+v, want %+v", got[1], want)
	}
}

func TestFetchDefaultIndexFollowsAggregateCount(t *testing.T) {
	a, _ := jsonServer(t, http.StatusOK, `[{"embedUrl":"https://embed.example/1"}]`)
	b, _ := jsonServer(t, http.StatusOK, `[{"embedUrl":"https://embed.example/1"},{"embedUrl":"https://embed.example/2"},{"embedUrl":"https://embed.example/2"},{"embedUrl":"https://embed.example/3"}]`)

	r, err := New([]string{a.URL, b.URL}, WithEndpoints("/api/stream/{source}/{id}"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got, err := r.FetchFromProviders(context.Background(), "m1", "alpha")
	if err != nil {
		t.Fatalf("FetchFromProviders() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3: %+v", len(got), got)
	}
	for i, rec := range got {
		if rec.StreamIndex != i+1 {
			t.Errorf("record %d (%s) StreamIndex = %d, want %d", i, rec.EmbedURL, rec.StreamIndex, i+1)
		}
	}
}

func TestFetchFirstSuccessShortCircuits(t *testing.T) {
	a, aHits := jsonServer(t, http.StatusOK, `[{"url":"https://embed.example/a"}]`)
	b, bHits := jsonServer(t, http.StatusOK, `[{"url":"https://embed.example/b"}]`)

	r, err := New([]string{a.URL, b.URL}, WithPolicy(FirstSuccess))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got, err := r.FetchFromProviders(context.Background(), "m1", "alpha")
	if err != nil {
		t.Fatalf("FetchFromProviders() error: %v", err)
	}
	if len(got) != 1 || got[0].EmbedURL != "https://embed.example/a" {
		t.Errorf("got %+v, want only the first provider's stream", got)
	}
	if aHits.Load() != 1 || bHits.Load() != 0 {
		t.Errorf("hits = %d/%d, want 1/0", aHits.Load(), bHits.Load())
	}
}

func TestFetchContinueAllTriesEverything(t *testing.T) {
	a, aHits := jsonServer(t, http.StatusOK, `[{"url":"https://embed.example/a"}]`)
	b, bHits := jsonServer(t, http.StatusOK, `[{"url":"https://embed.example/b"}]`)

	r, err := New([]string{a.URL, b.URL})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got, err := r.Fetch(context.Background(), "m1", "alpha", ContinueAll)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d records, want 2", len(got))
	}
	if int(aHits.Load()) != len(DefaultEndpoints) || int(bHits.Load()) != len(DefaultEndpoints) {
		t.Errorf("hits = %d/%d, want %d each", aHits.Load(), bHits.Load(), len(DefaultEndpoints))
	}
}

func TestFetchSkipsUnreachableBase(t *testing.T) {
	var slowHits atomic.Int32
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slowHits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()
	good, _ := jsonServer(t, http.StatusOK, `{"data":[{"url":"https://embed.example/ok"}]}`)

	r, err := New([]string{slow.URL, good.URL}, WithTimeout(50*time.Millisecond), WithPolicy(FirstSuccess))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got, err := r.FetchFromProviders(context.Background(), "m1", "alpha")
	if err != nil {
		t.Fatalf("FetchFromProviders() error: %v", err)
	}
	if len(got) != 1 || got[0].OriginBase != good.URL {
		t.Errorf("got %+v, want the reachable provider's stream", got)
	}
	if slowHits.Load() != 1 {
		t.Errorf("timed-out base was asked %d times, want 1", slowHits.Load())
	}
}

func TestFetchStatusErrorTriesNextTemplate(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/api/stream/alpha/m1" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[{"url":"https://embed.example/second"}]`))
	}))
	defer srv.Close()

	r, err := New([]string{srv.URL}, WithPolicy(FirstSuccess))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got, err := r.FetchFromProviders(context.Background(), "m1", "alpha")
	if err != nil {
		t.Fatalf("FetchFromProviders() error: %v", err)
	}
	if len(got) != 1 || hits.Load() != 2 {
		t.Errorf("got %d records after %d requests, want 1 after 2", len(got), hits.Load())
	}
}

func TestFetchNoStreamsIsCached(t *testing.T) {
	srv, hits := jsonServer(t, http.StatusOK, `{"message":"match not found"}`)

	r, err := New([]string{srv.URL}, WithEndpoints("/s/{source}/{id}"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	for i := range 2 {
		if _, err := r.FetchFromProviders(context.Background(), "m1", "alpha"); !errors.Is(err, ErrNoStreams) {
			t.Fatalf("call %d error = %v, want ErrNoStreams", i, err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("cached failure re-requested: %d hits", hits.Load())
	}

	if _, err := r.Retry(context.Background(), "m1", "alpha", ContinueAll); !errors.Is(err, ErrNoStreams) {
		t.Errorf("Retry() error = %v, want ErrNoStreams", err)
	}
	if hits.Load() != 2 {
		t.Errorf("Retry did not bypass cache: %d hits", hits.Load())
	}
}

func TestFetchCacheKeyIncludesPolicy(t *testing.T) {
	srv, hits := jsonServer(t, http.StatusOK, `[{"url":"https://embed.example/a"}]`)

	r, err := New([]string{srv.URL}, WithEndpoints("/s/{source}/{id}"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	r.Fetch(context.Background(), "m1", "alpha", ContinueAll)
	r.Fetch(context.Background(), "m1", "alpha", FirstSuccess)
	r.Fetch(context.Background(), "m1", "alpha", ContinueAll)
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want one per policy", hits.Load())
	}
}

func TestFetchEscapesPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`[{"url":"https://embed.example/a"}]`))
	}))
	defer srv.Close()

	r, err := New([]string{srv.URL + "/"}, WithEndpoints("/api/stream/{source}/{id}"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := r.FetchFromProviders(context.Background(), "real-madrid_vs.barca", "delta"); err != nil {
		t.Fatalf("FetchFromProviders() error: %v", err)
	}
	if gotPath != "/api/stream/delta/real-madrid_vs.barca" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestFetchRejectsBadInput(t *testing.T) {
	r, err := New([]string{"https://api.example"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	for _, tc := range []struct{ id, source string }{
		{"", "alpha"},
		{"m1", ""},
		{"../etc", "alpha"},
		{"m1", "al/pha"},
	} {
		if _, err := r.FetchFromProviders(context.Background(), tc.id, tc.source); err == nil || errors.Is(err, ErrNoStreams) {
			t.Errorf("FetchFromProviders(%q, %q) error = %v, want validation error", tc.id, tc.source, err)
		}
	}

	empty, _ := New(nil)
	if _, err := empty.FetchFromProviders(context.Background(), "m1", "alpha"); !errors.Is(err, ErrNoProviders) {
		t.Errorf("no bases error = %v, want ErrNoProviders", err)
	}
}

func TestFetchCancelled(t *testing.T) {
	srv, _ := jsonServer(t, http.StatusOK, `[{"url":"https://embed.example/a"}]`)
	r, err := New([]string{srv.URL})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.FetchFromProviders(ctx, "m1", "alpha"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestPlaceholder(t *testing.T) {
	got := Placeholder("m1", "alpha", media.EmbedDomain{URL: "https://embed.example", Format: media.PathSegments})
	want := media.StreamRecord{
		EmbedURL:    "https://embed.example/embed/alpha/m1/1",
		Source:      "alpha",
		MatchID:     "m1",
		StreamIndex: 1,
		Language:    "EN",
		IsHD:        true,
		OriginBase:  "https://embed.example",
	}
	if got != want {
		t.Errorf("Placeholder() = %+v, want %+v", got, want)
	}
}
