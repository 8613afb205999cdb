package audio

import (
	"fmt"
	"time"
)

// DefaultFrameSize is the number of samples per channel in one processing
// window when no other size is configured.
const DefaultFrameSize = 4096

// Format describes the sample rate and channel count of a captured stream.
type Format struct {
	// SampleRate in Hz as reported by the capture device (e.g., 44100, 48000).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// String returns a human-readable description, e.g. "44100Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Chunk is a run of planar float32 samples as delivered by a capture source.
// Chunks have arbitrary length; Samples[c] holds channel c and all channels
// have the same length.
type Chunk struct {
	Samples [][]float32

	// Timestamp marks when this chunk was captured, relative to stream start.
	Timestamp time.Duration
}

// Len returns the number of samples per channel.
func (c Chunk) Len() int {
	if len(c.Samples) == 0 {
		return 0
	}
	return len(c.Samples[0])
}

// Frame is a fixed-length processing window produced by a [Windower]. Every
// frame except possibly the last one of a stream holds exactly the window
// size in samples per channel.
type Frame struct {
	// Channels holds one slice of samples per channel.
	Channels [][]float32

	// SampleRate of the underlying stream in Hz.
	SampleRate int

	// Seq is the zero-based position of this frame in its stream.
	Seq uint64
}

// Len returns the number of samples per channel.
func (f Frame) Len() int {
	if len(f.Channels) == 0 {
		return 0
	}
	return len(f.Channels[0])
}
