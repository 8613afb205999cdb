// Package capture defines how the recorder obtains a live audio stream.
//
// A [Source] grants access to the audio of one browser tab (or, for local
// backends, one capture device) and returns a [Handle] that delivers planar
// float32 chunks until the stream ends or the handle is released.
//
// Implementations:
//   - capture/wscapture: the browser extension streams tab audio over WebSocket.
//   - capture/device: a local capture device through miniaudio.
//   - capture/mock: scripted chunks for tests.
package capture

import (
	"context"
	"errors"

	"github.com/MrWong99/tabrec/pkg/audio"
)

// ErrCaptureUnavailable is returned by [Source.Acquire] when the selected tab
// is not the active tab, nothing is connected, or the capture grant was denied.
var ErrCaptureUnavailable = errors.New("capture: capture unavailable")

// Request selects what to capture.
type Request struct {
	// TabSelector identifies the tab. Empty selects the currently active tab.
	TabSelector string
}

// Source acquires capture streams.
type Source interface {
	// Acquire obtains a live stream for req. Errors wrap
	// [ErrCaptureUnavailable] when the platform refuses the capture.
	Acquire(ctx context.Context, req Request) (Handle, error)
}

// Handle is one acquired capture stream.
//
// Chunks is never closed; consumers select on Chunks and Ended together.
// Ended is closed exactly once when the stream stops for any reason outside
// the consumer's control (tab closed, permission revoked, device lost) and
// also when Release is called.
type Handle interface {
	// Format reports the stream's native sample rate and channel count.
	Format() audio.Format

	// Chunks delivers captured audio in capture order.
	Chunks() <-chan audio.Chunk

	// Ended is closed when the stream has stopped.
	Ended() <-chan struct{}

	// Release stops all underlying tracks. Safe to call multiple times.
	Release() error
}

// Checker is implemented by sources that can report backend readiness.
type Checker interface {
	Check(ctx context.Context) error
}
