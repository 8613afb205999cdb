// Package local implements [download.Sink] on a directory.
//
// Files keep their suggested name. When the name is taken the sink appends a
// counter the way browsers do ("t (1).mp3"). Each saved file gets a random
// UUID as its download identifier.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/tabrec/pkg/download"
)

const maxUniquify = 1000

// Sink writes files into Dir.
type Sink struct {
	dir string

	mu    sync.Mutex
	paths map[string]string
}

var (
	_ download.Sink    = (*Sink)(nil)
	_ download.Locator = (*Sink)(nil)
)

// New creates a Sink for dir, creating the directory if needed.
func New(dir string) (*Sink, error) {
	if dir == "" {
		return nil, errors.New("local: directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local: create %s: %w", dir, err)
	}
	return &Sink{dir: dir, paths: make(map[string]string)}, nil
}

// Dir returns the target directory.
func (s *Sink) Dir() string { return s.dir }

// Save implements [download.Sink].
func (s *Sink) Save(ctx context.Context, f download.File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", download.ErrDownloadFailure, err)
	}
	name := download.SanitizeName(f.Name, filepath.Ext(f.Name))
	path, file, err := s.create(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", download.ErrDownloadFailure, err)
	}
	if _, err := file.Write(f.Data); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("%w: write %s: %w", download.ErrDownloadFailure, path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: close %s: %w", download.ErrDownloadFailure, path, err)
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.paths[id] = path
	s.mu.Unlock()
	return id, nil
}

// create opens a new file named name, or "base (n).ext" if taken.
func (s *Sink) create(name string) (string, *os.File, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := range maxUniquify {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
		}
		path := filepath.Join(s.dir, candidate)
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("create %s: %w", path, err)
		}
		return path, file, nil
	}
	return "", nil, fmt.Errorf("no free filename for %s in %s", name, s.dir)
}

// Locate implements [download.Locator].
func (s *Sink) Locate(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.paths[id]
	return p, ok
}
