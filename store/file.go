package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	iam "github.com/chimerakang/portfolio-iam"
)

// File keeps the snapshot as a JSON object in a single file, keyed by
// iam.SnapshotKey so the layout matches a browser's local storage entry.
type File struct {
	path string
	mu   sync.Mutex
}

var _ iam.SnapshotStore = (*File)(nil)

// NewFile returns a store backed by path. The file is created on first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Load(_ context.Context) (*iam.ActivitySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return nil, err
	}
	raw, ok := entries[iam.SnapshotKey]
	if !ok {
		return nil, nil
	}
	var snap iam.ActivitySnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("iam/store: decode snapshot: %w", err)
	}
	return &snap, nil
}

func (f *File) Save(_ context.Context, snap iam.ActivitySnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		// A corrupt file is replaced rather than blocking the session.
		entries = make(map[string]json.RawMessage)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("iam/store: encode snapshot: %w", err)
	}
	entries[iam.SnapshotKey] = raw
	return f.write(entries)
}

func (f *File) Delete(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return os.Remove(f.path)
	}
	if _, ok := entries[iam.SnapshotKey]; !ok {
		return nil
	}
	delete(entries, iam.SnapshotKey)
	return f.write(entries)
}

func (f *File) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]json.RawMessage), nil
	}
	if err != nil {
		return nil, fmt.Errorf("iam/store: read %s: %w", f.path, err)
	}
	entries := make(map[string]json.RawMessage)
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("iam/store: decode %s: %w", f.path, err)
	}
	return entries, nil
}

func (f *File) write(entries map[string]json.RawMessage) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("iam/store: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("iam/store: mkdir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("iam/store: write: %w", err)
	}
	return os.Rename(tmp, f.path)
}
