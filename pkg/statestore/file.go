package statestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps the state in a small YAML file. Writes go to a temporary
// file that is renamed over the target so a crash never leaves a torn file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var (
	_ Store  = (*FileStore)(nil)
	_ Pinger = (*FileStore)(nil)
)

// NewFileStore creates a FileStore at path, creating parent directories.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("statestore: file path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("statestore: create dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load implements [Store].
func (f *FileStore) Load(_ context.Context) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("statestore: read %s: %w", f.path, err)
	}
	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("statestore: decode %s: %w", f.path, err)
	}
	return s, nil
}

// Save implements [Store].
func (f *FileStore) Save(_ context.Context, s State) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("statestore: encode: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("statestore: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("statestore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("statestore: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("statestore: rename: %w", err)
	}
	return nil
}

// Ping implements [Pinger] by checking the directory is writable.
func (f *FileStore) Ping(_ context.Context) error {
	info, err := os.Stat(filepath.Dir(f.path))
	if err != nil {
		return fmt.Errorf("statestore: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("statestore: %s is not a directory", filepath.Dir(f.path))
	}
	return nil
}

// Close implements [Store].
func (f *FileStore) Close() error { return nil }
