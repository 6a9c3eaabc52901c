package media

import (
	"encoding/json"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		input    string
		expected Kind
	}{
		{"https://cdn.example/live/index.m3u8", HLS},
		{"https://cdn.example/live/INDEX.M3U8?token=1", HLS},
		{"https://cdn.example/vod/match.mp4", MP4},
		{"https://cdn.example/embed/123", Unknown},
		{"", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := KindOf(tt.input); got != tt.expected {
				t.Errorf("KindOf(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestKindPriority(t *testing.T) {
	if !(HLS.Priority() > MP4.Priority() && MP4.Priority() > Unknown.Priority()) {
		t.Errorf("priority order broken: hls=%d mp4=%d unknown=%d",
			HLS.Priority(), MP4.Priority(), Unknown.Priority())
	}
}

func TestExtractedStreamJSON(t *testing.T) {
	data, err := json.Marshal(ExtractedStream{URL: "https://a/b.m3u8", Kind: HLS})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(data) != `{"url":"https://a/b.m3u8","kind":"hls"}` {
		t.Errorf("Marshal() = %s", data)
	}
}

func TestParseURLFormat(t *testing.T) {
	tests := []struct {
		input  string
		want   URLFormat
		wantOK bool
	}{
		{"", QueryParams, true},
		{"query", QueryParams, true},
		{"Path", PathSegments, true},
		{"pathSegments", PathSegments, true},
		{"hash", QueryParams, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseURLFormat(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseURLFormat(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestEmbedURL(t *testing.T) {
	tests := []struct {
		name   string
		domain EmbedDomain
		want   string
	}{
		{"query form", EmbedDomain{URL: "https://embed.example", Format: QueryParams}, "https://embed.example/?id=m-1&source=alpha&streamNo=2"},
		{"query form trailing slash", EmbedDomain{URL: "https://embed.example/", Format: QueryParams}, "https://embed.example/?id=m-1&source=alpha&streamNo=2"},
		{"path form", EmbedDomain{URL: "https://embed.example", Format: PathSegments}, "https://embed.example/embed/alpha/m-1/2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.domain.EmbedURL("alpha", "m-1", 2); got != tt.want {
				t.Errorf("EmbedURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
