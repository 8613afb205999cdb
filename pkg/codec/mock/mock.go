// Package mock provides a deterministic in-memory [codec.Encoder] for unit
// tests.
//
// The mock "compresses" each unit by returning its interleaved PCM as
// little-endian bytes, so tests can predict the exact output stream from the
// input frames. It records every call and exposes fields that control errors
// and the flush payload.
//
// Typical usage:
//
//	enc := &mock.Encoder{Unit: 4, FlushResult: []byte("END")}
//	chunk, _ := enc.Encode(left, right)
package mock

import (
	"fmt"
	"sync"

	"github.com/MrWong99/tabrec/pkg/audio"
	"github.com/MrWong99/tabrec/pkg/codec"
)

// Encoder is a mock implementation of [codec.Encoder].
// Set the exported fields before use; inspect the Call* fields after.
type Encoder struct {
	mu sync.Mutex

	// Unit is returned by [Encoder.UnitSize]. Defaults to 1152 when zero.
	Unit int

	// Mono makes Encode ignore the right channel.
	Mono bool

	// EmptyEvery makes every n-th Encode call (1-based) return an empty chunk.
	// Zero disables it.
	EmptyEvery int

	// FailOnCall makes the n-th Encode call (1-based) return EncodeError.
	// Zero disables it.
	FailOnCall int

	// EncodeError is returned (wrapped in [codec.ErrEncodeFailure]) when
	// FailOnCall triggers. Defaults to a generic error.
	EncodeError error

	// FlushResult is returned by [Encoder.Flush].
	FlushResult []byte

	// FlushError is returned (wrapped in [codec.ErrEncodeFailure]) by Flush.
	FlushError error

	// CallCountEncode records how many times Encode was called.
	CallCountEncode int

	// CallCountFlush records how many times Flush was called.
	CallCountFlush int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// EncodedLengths records the per-channel length of every Encode call.
	EncodedLengths []int

	// Ext is returned by [Encoder.Extension]. Defaults to ".mock".
	Ext string
}

var _ codec.Encoder = (*Encoder)(nil)

// UnitSize implements [codec.Encoder].
func (e *Encoder) UnitSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Unit <= 0 {
		return 1152
	}
	return e.Unit
}

// Encode implements [codec.Encoder].
func (e *Encoder) Encode(left, right []int16) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountEncode++
	e.EncodedLengths = append(e.EncodedLengths, len(left))
	if e.FailOnCall > 0 && e.CallCountEncode == e.FailOnCall {
		err := e.EncodeError
		if err == nil {
			err = fmt.Errorf("mock failure on call %d", e.CallCountEncode)
		}
		return nil, fmt.Errorf("%w: %w", codec.ErrEncodeFailure, err)
	}
	if e.EmptyEvery > 0 && e.CallCountEncode%e.EmptyEvery == 0 {
		return nil, nil
	}
	return Expected(left, right, e.Mono), nil
}

// Flush implements [codec.Encoder].
func (e *Encoder) Flush() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountFlush++
	if e.FlushError != nil {
		return nil, fmt.Errorf("%w: %w", codec.ErrEncodeFailure, e.FlushError)
	}
	return e.FlushResult, nil
}

// Close implements [codec.Encoder].
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountClose++
	return nil
}

// MIMEType implements [codec.Encoder].
func (e *Encoder) MIMEType() string { return "application/x-mock" }

// Extension implements [codec.Encoder].
func (e *Encoder) Extension() string {
	if e.Ext == "" {
		return ".mock"
	}
	return e.Ext
}

// Expected returns the chunk the mock produces for one unit. Tests use it to
// build the byte stream a recording should contain.
func Expected(left, right []int16, mono bool) []byte {
	if mono {
		right = nil
	}
	return audio.Int16sToBytes(audio.Interleave16(left, right))
}
