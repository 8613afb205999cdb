package capture

import (
	"sync"
	"sync/atomic"

	"github.com/MrWong99/tabrec/pkg/audio"
)

// DefaultStreamBuffer is the chunk queue depth used when none is given.
const DefaultStreamBuffer = 64

// Stream is a ready-made [Handle] for source implementations. Producers call
// [Stream.Push] from their audio thread and [Stream.End] when the underlying
// stream stops. Push never blocks: when the consumer falls behind the chunk
// is dropped and counted.
type Stream struct {
	format audio.Format
	chunks chan audio.Chunk
	ended  chan struct{}

	endOnce     sync.Once
	releaseOnce sync.Once
	onRelease   func() error
	releaseErr  error

	dropped atomic.Uint64
}

var _ Handle = (*Stream)(nil)

// NewStream creates a Stream. onRelease, if non-nil, runs once on the first
// Release call and should stop the underlying tracks.
func NewStream(f audio.Format, buffer int, onRelease func() error) *Stream {
	if buffer <= 0 {
		buffer = DefaultStreamBuffer
	}
	return &Stream{
		format:    f,
		chunks:    make(chan audio.Chunk, buffer),
		ended:     make(chan struct{}),
		onRelease: onRelease,
	}
}

// Format implements [Handle].
func (s *Stream) Format() audio.Format { return s.format }

// Chunks implements [Handle].
func (s *Stream) Chunks() <-chan audio.Chunk { return s.chunks }

// Ended implements [Handle].
func (s *Stream) Ended() <-chan struct{} { return s.ended }

// Push enqueues c. It reports false when the stream has ended or the queue is
// full.
func (s *Stream) Push(c audio.Chunk) bool {
	select {
	case <-s.ended:
		return false
	default:
	}
	select {
	case s.chunks <- c:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// End marks the stream as ended. Safe to call multiple times.
func (s *Stream) End() {
	s.endOnce.Do(func() { close(s.ended) })
}

// Dropped returns how many chunks Push discarded because the queue was full.
func (s *Stream) Dropped() uint64 { return s.dropped.Load() }

// Release implements [Handle].
func (s *Stream) Release() error {
	s.releaseOnce.Do(func() {
		s.End()
		if s.onRelease != nil {
			s.releaseErr = s.onRelease()
		}
	})
	return s.releaseErr
}

// DropCounter is implemented by handles that count discarded chunks.
type DropCounter interface {
	Dropped() uint64
}
