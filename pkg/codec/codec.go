// Package codec defines the encoder adapter used by the recording pipeline.
//
// An [Encoder] wraps a block-oriented lossy audio codec. The pipeline feeds it
// per-channel 16-bit PCM in slices of exactly [Encoder.UnitSize] samples, collects
// the variable-length compressed chunks it returns, and calls [Encoder.Flush]
// exactly once after the last Encode to drain anything the codec held back.
//
// Implementations live in sub-packages (codec/mp3, codec/opus) and are selected
// by name through the config registry.
package codec

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnsupportedConfiguration is returned by encoder constructors when the
// channel count, sample rate or bitrate is outside the codec's supported range.
var ErrUnsupportedConfiguration = errors.New("codec: unsupported configuration")

// ErrEncodeFailure wraps any error raised by the codec while encoding or
// flushing a block.
var ErrEncodeFailure = errors.New("codec: encode failure")

// Config holds the per-session encoder parameters.
type Config struct {
	// Channels is the number of encoded channels: 1 or 2.
	Channels int

	// SampleRate is the capture device's native rate in Hz.
	SampleRate int

	// BitrateKbps is the target bitrate in kilobits per second.
	BitrateKbps int
}

// Encoder is a stateful block encoder. Calls must be sequential; an Encoder
// is never used from two goroutines at once.
type Encoder interface {
	// UnitSize is the number of samples per channel one Encode call expects.
	UnitSize() int

	// Encode compresses one unit. left and right must hold UnitSize samples
	// each, except on the final call before Flush where they may be shorter.
	// right is ignored for mono encoders. The returned chunk may be empty.
	Encode(left, right []int16) ([]byte, error)

	// Flush drains buffered output. It must be called exactly once, after
	// the last Encode.
	Flush() ([]byte, error)

	// Close releases codec resources without flushing. Safe to call after
	// Flush and more than once.
	Close() error

	// MIMEType is the media type of the produced file (e.g., "audio/mpeg").
	MIMEType() string

	// Extension is the conventional file extension including the dot.
	Extension() string
}

// ValidateChannels reports an [ErrUnsupportedConfiguration] error unless n is
// 1 or 2.
func ValidateChannels(n int) error {
	if n != 1 && n != 2 {
		return fmt.Errorf("%w: %d channels (want 1 or 2)", ErrUnsupportedConfiguration, n)
	}
	return nil
}

// ValidateOneOf reports an [ErrUnsupportedConfiguration] error naming what
// unless v is in allowed.
func ValidateOneOf(what string, v int, allowed []int) error {
	if !slices.Contains(allowed, v) {
		return fmt.Errorf("%w: %s %d not in %v", ErrUnsupportedConfiguration, what, v, allowed)
	}
	return nil
}
