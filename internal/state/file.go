package state

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/metafates/gache"
	"github.com/spf13/afero"
)

// gacheFs adapts an afero filesystem to gache.FileSystem.
type gacheFs struct {
	fs afero.Fs
}

func (g gacheFs) OpenFile(name string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	return g.fs.OpenFile(name, flag, perm)
}

func (g gacheFs) MkdirAll(path string, perm os.FileMode) error {
	return g.fs.MkdirAll(path, perm)
}

// FileStore keeps the marker in a JSON file.
type FileStore struct {
	mu     sync.Mutex
	cacher *gache.Cache[Marker]
}

// NewFileStore stores the marker at path on fs. A nil fs means the OS filesystem.
func NewFileStore(path string, fs afero.Fs) (*FileStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	return &FileStore{
		cacher: gache.New[Marker](&gache.Options{
			Path:       path,
			FileSystem: gacheFs{fs: fs},
		}),
	}, nil
}

func (s *FileStore) Load(_ context.Context) (Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, expired, err := s.cacher.Get()
	if err != nil {
		return Marker{}, fmt.Errorf("reading domain marker: %w", err)
	}
	if expired {
		return Marker{}, nil
	}
	return m, nil
}

func (s *FileStore) Save(_ context.Context, m Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cacher.Set(m); err != nil {
		return fmt.Errorf("writing domain marker: %w", err)
	}
	return nil
}

// Clear overwrites the marker with the zero value.
func (s *FileStore) Clear(ctx context.Context) error {
	return s.Save(ctx, Marker{})
}

func (s *FileStore) Close() error { return nil }
