// Package state persists the last known working embed domain across runs.
package state

import (
	"context"
	"fmt"
	"time"
)

// DefaultTTL is how long a working-domain marker is trusted.
const DefaultTTL = 5 * time.Minute

// Marker records which domain last answered a probe and when.
type Marker struct {
	Domain    string `json:"domain"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// NewMarker stamps domain with t.
func NewMarker(domain string, t time.Time) Marker {
	return Marker{Domain: domain, Timestamp: t.UnixMilli()}
}

// Time returns the marker timestamp.
func (m Marker) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// IsZero reports whether the marker is empty.
func (m Marker) IsZero() bool {
	return m.Domain == ""
}

// Fresh reports whether the marker is set and younger than ttl at now.
func (m Marker) Fresh(now time.Time, ttl time.Duration) bool {
	return !m.IsZero() && now.Sub(m.Time()) < ttl
}

// Store holds at most one marker.
type Store interface {
	// Load returns the stored marker. A missing marker is the zero Marker with a nil error.
	Load(ctx context.Context) (Marker, error)
	Save(ctx context.Context, m Marker) error
	Clear(ctx context.Context) error
	Close() error
}

// Open returns the store for backend ("file" or "sqlite") rooted at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(path, nil)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown state backend %q (valid: file, sqlite)", backend)
	}
}
