package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const markerKey = "working_domain"

// SQLiteStore keeps the marker in a single-row sqlite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS markers (
			key TEXT PRIMARY KEY,
			domain TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating markers table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (Marker, error) {
	var m Marker
	err := s.db.QueryRowContext(ctx,
		"SELECT domain, timestamp FROM markers WHERE key = ?", markerKey,
	).Scan(&m.Domain, &m.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return Marker{}, nil
	}
	if err != nil {
		return Marker{}, fmt.Errorf("reading domain marker: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) Save(ctx context.Context, m Marker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markers(key, domain, timestamp) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET domain = excluded.domain, timestamp = excluded.timestamp
	`, markerKey, m.Domain, m.Timestamp)
	if err != nil {
		return fmt.Errorf("writing domain marker: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM markers WHERE key = ?", markerKey); err != nil {
		return fmt.Errorf("clearing domain marker: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
