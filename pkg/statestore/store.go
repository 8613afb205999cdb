// Package statestore persists the minimal recording state a control surface
// needs to rebuild its UI after a restart: whether a recording is running
// and under which filename.
//
// The coordinator is the only writer. Backends: [MemoryStore], [FileStore]
// (YAML on disk), [RedisStore] and [PostgresStore].
package statestore

import (
	"context"
	"time"
)

// State is the persisted session flag.
type State struct {
	Recording bool      `yaml:"recording" json:"recording"`
	Filename  string    `yaml:"filename" json:"filename"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// Store loads and saves the State. Implementations must be safe for
// concurrent use; last write wins.
type Store interface {
	// Load returns the stored state, or the zero State if nothing was saved.
	Load(ctx context.Context) (State, error)

	// Save replaces the stored state.
	Save(ctx context.Context, s State) error

	// Close releases backend resources.
	Close() error
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}
