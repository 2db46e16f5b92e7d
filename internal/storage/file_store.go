package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileStore keeps the seen set as a JSON object mapping id to an RFC 3339
// timestamp.
type FileStore struct {
	filePath  string
	retention time.Duration
	items     map[string]string
	now       func() time.Time
}

// NewFileStore opens the store at filePath. A missing or empty file is an
// empty set.
func NewFileStore(filePath string, retention time.Duration) (*FileStore, error) {
	fs := &FileStore{
		filePath:  filePath,
		retention: retention,
		items:     make(map[string]string),
		now:       time.Now,
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &fs.items); err != nil {
		return fmt.Errorf("failed to parse state file %s: %w", fs.filePath, err)
	}
	return nil
}

func (fs *FileStore) Has(id string) bool {
	_, ok := fs.items[id]
	return ok
}

func (fs *FileStore) Mark(id string, at time.Time) {
	fs.items[id] = at.UTC().Format(time.RFC3339)
}

func (fs *FileStore) Len() int {
	return len(fs.items)
}

func (fs *FileStore) Save(_ context.Context) error {
	fs.prune()

	data, err := json.MarshalIndent(fs.items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(fs.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	if err := os.WriteFile(fs.filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// prune removes entries at or before the retention cutoff. Timestamps that
// do not parse are treated as expired.
func (fs *FileStore) prune() {
	cutoff := fs.now().Add(-fs.retention)
	for id, ts := range fs.items {
		seenAt, err := time.Parse(time.RFC3339, ts)
		if err != nil || !seenAt.After(cutoff) {
			delete(fs.items, id)
		}
	}
}

func (fs *FileStore) Close() error { return nil }
