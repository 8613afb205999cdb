// Package mock provides in-memory mock implementations of [capture.Source]
// and [capture.Handle] for use in unit tests.
//
// All mocks are safe for concurrent use. Tests feed audio with
// [Handle.Push] (which blocks until the consumer reads it, so no chunk is
// ever dropped) and simulate the tab's stream ending with [Handle.End].
//
// Typical usage:
//
//	src := &mock.Source{Format: audio.Format{SampleRate: 44100, Channels: 2}}
//	h, _ := src.Acquire(ctx, capture.Request{})
//	src.LastHandle().Push(ctx, chunk)
//	src.LastHandle().End()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tabrec/pkg/audio"
	"github.com/MrWong99/tabrec/pkg/capture"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [capture.Source].
type Source struct {
	mu sync.Mutex

	// Format is reported by every handle. Defaults to 44100 Hz stereo.
	Format audio.Format

	// AcquireErr is returned by Acquire when non-nil.
	AcquireErr error

	// CheckErr is returned by Check.
	CheckErr error

	// CallCountAcquire records how many times Acquire was called.
	CallCountAcquire int

	// Requests records every Acquire request in order.
	Requests []capture.Request

	// Handles holds every handle handed out, in order.
	Handles []*Handle
}

var (
	_ capture.Source  = (*Source)(nil)
	_ capture.Checker = (*Source)(nil)
)

// Acquire implements [capture.Source].
func (s *Source) Acquire(_ context.Context, req capture.Request) (capture.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountAcquire++
	s.Requests = append(s.Requests, req)
	if s.AcquireErr != nil {
		return nil, s.AcquireErr
	}
	f := s.Format
	if f.SampleRate == 0 {
		f = audio.Format{SampleRate: 44100, Channels: 2}
	}
	h := NewHandle(f)
	s.Handles = append(s.Handles, h)
	return h, nil
}

// Check implements [capture.Checker].
func (s *Source) Check(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CheckErr
}

// LastHandle returns the most recent handle or nil.
func (s *Source) LastHandle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Handles) == 0 {
		return nil
	}
	return s.Handles[len(s.Handles)-1]
}

// AcquireCount returns CallCountAcquire under the lock.
func (s *Source) AcquireCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountAcquire
}

// ─── Handle ───────────────────────────────────────────────────────────────────

// Handle is a mock implementation of [capture.Handle].
type Handle struct {
	format audio.Format
	chunks chan audio.Chunk
	ended  chan struct{}

	endOnce sync.Once

	mu                 sync.Mutex
	callCountRelease   int
	releaseErr         error
	pushedChunkSamples int
}

var _ capture.Handle = (*Handle)(nil)

// NewHandle creates an open handle with the given format.
func NewHandle(f audio.Format) *Handle {
	return &Handle{
		format: f,
		chunks: make(chan audio.Chunk),
		ended:  make(chan struct{}),
	}
}

// Format implements [capture.Handle].
func (h *Handle) Format() audio.Format { return h.format }

// Chunks implements [capture.Handle].
func (h *Handle) Chunks() <-chan audio.Chunk { return h.chunks }

// Ended implements [capture.Handle].
func (h *Handle) Ended() <-chan struct{} { return h.ended }

// Release implements [capture.Handle]. It ends the stream and counts calls.
func (h *Handle) Release() error {
	h.End()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callCountRelease++
	return h.releaseErr
}

// SetReleaseError makes subsequent Release calls return err.
func (h *Handle) SetReleaseError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releaseErr = err
}

// ReleaseCount returns how many times Release was called.
func (h *Handle) ReleaseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.callCountRelease
}

// Push delivers c to the consumer. It blocks until the chunk is received and
// reports false if the stream ended or ctx was cancelled first.
func (h *Handle) Push(ctx context.Context, c audio.Chunk) bool {
	select {
	case h.chunks <- c:
		h.mu.Lock()
		h.pushedChunkSamples += c.Len()
		h.mu.Unlock()
		return true
	case <-h.ended:
		return false
	case <-ctx.Done():
		return false
	}
}

// PushedSamples returns the number of samples per channel delivered so far.
func (h *Handle) PushedSamples() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pushedChunkSamples
}

// End simulates the capture stream ending outside the consumer's control.
func (h *Handle) End() {
	h.endOnce.Do(func() { close(h.ended) })
}
