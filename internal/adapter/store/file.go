package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/trace-alert-service/internal/domain"
)

// FileStore keeps the coordinate as a JSON document on disk, keyed by LocationKey.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileDocument map[string]json.RawMessage

// Load reads the stored coordinate.
func (s *FileStore) Load(_ context.Context) (domain.Coordinate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Coordinate{}, false, nil
	}
	if err != nil {
		return domain.Coordinate{}, false, fmt.Errorf("read location file: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.Coordinate{}, false, fmt.Errorf("parse location file: %w: %w", domain.ErrInvalidLocation, err)
	}
	raw, ok := doc[LocationKey]
	if !ok {
		return domain.Coordinate{}, false, nil
	}
	c, err := decode(raw)
	if err != nil {
		return domain.Coordinate{}, false, err
	}
	return c, true, nil
}

// Save writes the coordinate atomically via a temp file and rename.
func (s *FileStore) Save(_ context.Context, c domain.Coordinate) error {
	value, err := encode(c)
	if err != nil {
		return err
	}
	data, err := json.Marshal(fileDocument{LocationKey: value})
	if err != nil {
		return fmt.Errorf("marshal location file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".trace-location-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename location file: %w", err)
	}
	return nil
}

// Clear removes the stored coordinate. Clearing an empty store is not an error.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove location file: %w", err)
	}
	return nil
}
