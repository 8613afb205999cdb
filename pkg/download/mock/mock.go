// Package mock provides an in-memory [download.Sink] for unit tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/tabrec/pkg/download"
)

// Sink is a mock implementation of [download.Sink]. It is safe for
// concurrent use.
type Sink struct {
	mu sync.Mutex

	// SaveErr is returned (wrapped in [download.ErrDownloadFailure]) by Save
	// when non-nil.
	SaveErr error

	// Files records every successfully saved file in order.
	Files []download.File

	// CallCountSave records how many times Save was called.
	CallCountSave int
}

var _ download.Sink = (*Sink)(nil)

// Save implements [download.Sink]. Identifiers are "mock-1", "mock-2", …
func (s *Sink) Save(_ context.Context, f download.File) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountSave++
	if s.SaveErr != nil {
		return "", fmt.Errorf("%w: %w", download.ErrDownloadFailure, s.SaveErr)
	}
	f.Data = append([]byte(nil), f.Data...)
	s.Files = append(s.Files, f)
	return fmt.Sprintf("mock-%d", len(s.Files)), nil
}

// Saved returns a copy of the saved files.
func (s *Sink) Saved() []download.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]download.File(nil), s.Files...)
}

// SaveCount returns CallCountSave under the lock.
func (s *Sink) SaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountSave
}

// SetSaveErr sets SaveErr under the lock.
func (s *Sink) SetSaveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveErr = err
}
