package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrStoreCorrupted is returned when a persisted snapshot cannot be decoded.
	ErrStoreCorrupted = errors.New("state: stored snapshot corrupted")
	// ErrStorePersist is returned when the snapshot cannot be written.
	ErrStorePersist = errors.New("state: failed to persist snapshot")
)

// FileStore keeps the snapshot as a JSON file readable only by the owner.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the snapshot. A missing or empty file is an empty snapshot.
func (f *FileStore) Load(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

// Update reads, applies fn and rewrites the file atomically.
func (f *FileStore) Update(ctx context.Context, fn func(*Snapshot)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, err := f.read()
	if err != nil {
		return err
	}
	fn(&snap)
	return f.writeLocked(snap)
}

func (f *FileStore) read() (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("state: read file: %w", err)
	}
	if len(data) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
	}
	return snap, nil
}

func (f *FileStore) writeLocked(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("%w: mkdir: %v", ErrStorePersist, err)
	}

	tmpPath := f.path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrStorePersist, err)
	}

	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write: %v", ErrStorePersist, err)
	}

	// Data must be on disk before the rename makes it visible.
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: fsync: %v", ErrStorePersist, err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close: %v", ErrStorePersist, err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename: %v", ErrStorePersist, err)
	}
	return nil
}
