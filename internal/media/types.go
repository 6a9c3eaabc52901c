// Package media defines shared types for the sportstream application.
package media

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Kind is the container format of a resolved stream.
type Kind int

const (
	Unknown Kind = iota
	MP4
	HLS
)

func (k Kind) String() string {
	switch k {
	case HLS:
		return "hls"
	case MP4:
		return "mp4"
	default:
		return "unknown"
	}
}

// MarshalText lets Kind render as its name in JSON output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Priority ranks kinds for stream selection. Higher wins.
func (k Kind) Priority() int {
	switch k {
	case HLS:
		return 2
	case MP4:
		return 1
	default:
		return 0
	}
}

// KindOf derives a Kind from the media extension found in a URL or text.
func KindOf(s string) Kind {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, ".m3u8"):
		return HLS
	case strings.Contains(lower, ".mp4"):
		return MP4
	default:
		return Unknown
	}
}

// HasMediaExtension reports whether s mentions a recognized media extension.
func HasMediaExtension(s string) bool {
	return KindOf(s) != Unknown
}

// ExtractedStream is a playable media URL resolved from an embed page.
type ExtractedStream struct {
	URL  string `json:"url"`  // Absolute URL
	Kind Kind   `json:"kind"` // hls, mp4 or unknown
}

// StreamRecord is one stream listing aggregated from a provider API.
type StreamRecord struct {
	EmbedURL    string `json:"embedUrl"`
	Source      string `json:"source"`
	MatchID     string `json:"matchId"`
	StreamIndex int    `json:"streamNo"`
	Language    string `json:"language"`
	IsHD        bool   `json:"hd"`
	OriginBase  string `json:"origin"` // Provider base URL that served the record
}

// URLFormat selects how an embed domain expects match parameters.
type URLFormat int

const (
	QueryParams  URLFormat = iota // <domain>/?id=<id>&source=<source>&streamNo=<n>
	PathSegments                  // <domain>/embed/<source>/<id>/<n>
)

func (f URLFormat) String() string {
	switch f {
	case PathSegments:
		return "path"
	default:
		return "query"
	}
}

// MarshalText lets URLFormat render as its name in JSON output.
func (f URLFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *URLFormat) UnmarshalText(text []byte) error {
	v, ok := ParseURLFormat(string(text))
	if !ok {
		return fmt.Errorf("unknown URL format %q", text)
	}
	*f = v
	return nil
}

// ParseURLFormat maps a config value onto a URLFormat.
func ParseURLFormat(s string) (URLFormat, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "query", "queryparams":
		return QueryParams, true
	case "path", "pathsegments":
		return PathSegments, true
	default:
		return QueryParams, false
	}
}

// EmbedDomain is an embed-hosting domain in priority order.
type EmbedDomain struct {
	URL    string    `json:"url"`
	Format URLFormat `json:"format"`
}

// EmbedURL builds the watch page URL for stream n of a match on this domain.
func (d EmbedDomain) EmbedURL(source, id string, n int) string {
	base := strings.TrimRight(d.URL, "/")
	if d.Format == PathSegments {
		return fmt.Sprintf("%s/embed/%s/%s/%d", base, url.PathEscape(source), url.PathEscape(id), n)
	}
	return fmt.Sprintf("%s/?id=%s&source=%s&streamNo=%d", base, url.QueryEscape(id), url.QueryEscape(source), n)
}

// HistoryEntry records the last stream watched for a match.
type HistoryEntry struct {
	Source    string    `json:"source"`
	MatchID   string    `json:"matchId"`
	StreamNo  int       `json:"streamNo"`
	EmbedURL  string    `json:"embedUrl"`
	StreamURL string    `json:"streamUrl,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	WatchedAt time.Time `json:"watchedAt"`
}
