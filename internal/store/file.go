package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/datallboy/modfetch/internal/domain"
)

// FileStore keeps the queue as a JSON array in a single file. Writes go
// through a temp file and rename.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// LoadQueue returns an empty queue when the file doesn't exist yet.
func (s *FileStore) LoadQueue(_ context.Context) ([]*domain.QueuedTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*domain.QueuedTransfer{}, nil
		}
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}

	var items []*domain.QueuedTransfer
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode queue file %s: %w", s.path, err)
	}
	if items == nil {
		items = []*domain.QueuedTransfer{}
	}
	return items, nil
}

func (s *FileStore) SaveQueue(_ context.Context, items []*domain.QueuedTransfer) error {
	if items == nil {
		items = []*domain.QueuedTransfer{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	return renameio.WriteFile(s.path, data, 0644)
}

func (s *FileStore) Close() error { return nil }
