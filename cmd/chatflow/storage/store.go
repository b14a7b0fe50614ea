package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lyzr/chatflow/common/logger"
)

// ErrNotFound is returned when a stored blob does not exist
var ErrNotFound = errors.New("not found")

// Store persists JSON blobs as one file per id under a directory.
// Writes go through a temp file and rename, so readers never observe a
// partially written blob.
type Store[T any] struct {
	dir string
	log *logger.Logger
	mu  sync.Mutex
}

// NewStore creates the directory if needed and returns a store over it
func NewStore[T any](dir string, log *logger.Logger) (*Store[T], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", dir, err)
	}
	return &Store[T]{dir: dir, log: log}, nil
}

func (s *Store[T]) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the value under the given id
func (s *Store[T]) Save(id string, value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", id, err)
	}

	tmp := s.path(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", id, err)
	}
	if err := os.Rename(tmp, s.path(id)); err != nil {
		return fmt.Errorf("failed to commit %s: %w", id, err)
	}

	s.log.Debug("blob saved", "dir", s.dir, "id", id, "bytes", len(data))
	return nil
}

// Load reads the value stored under the given id
func (s *Store[T]) Load(id string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value T
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return value, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return value, fmt.Errorf("failed to read %s: %w", id, err)
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("failed to decode %s: %w", id, err)
	}
	return value, nil
}

// LoadAll reads every stored value
func (s *Store[T]) LoadAll() (map[string]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}

	out := make(map[string]T)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		var value T
		if err := json.Unmarshal(data, &value); err != nil {
			s.log.Warn("skipping corrupt blob", "dir", s.dir, "id", id, "error", err)
			continue
		}
		out[id] = value
	}
	return out, nil
}

// Delete removes the value stored under the given id
func (s *Store[T]) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}

// Exists reports whether an id has a stored value
func (s *Store[T]) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := os.Stat(s.path(id))
	return err == nil
}
