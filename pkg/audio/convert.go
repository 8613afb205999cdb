package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FloatToPCM16 converts float samples to signed 16-bit PCM. Each sample is
// clamped to [-1.0, 1.0] first so out-of-range input saturates at the int16
// limits instead of wrapping. Negative values scale by 32768 and positive
// values by 32767. NaN converts to silence.
//
// dst is reused when it has enough capacity.
func FloatToPCM16(dst []int16, src []float32) []int16 {
	if cap(dst) < len(src) {
		dst = make([]int16, len(src))
	}
	dst = dst[:len(src)]
	for i, s := range src {
		dst[i] = floatToInt16(s)
	}
	return dst
}

func floatToInt16(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	v := math.Max(-1, math.Min(1, float64(s)))
	if v < 0 {
		return int16(v * 0x8000)
	}
	return int16(v * 0x7FFF)
}

// StereoPair returns the left and right channel of a planar buffer. A mono
// buffer is duplicated into both channels; channels beyond the second are
// ignored.
func StereoPair(channels [][]float32) (left, right []float32) {
	switch len(channels) {
	case 0:
		return nil, nil
	case 1:
		return channels[0], channels[0]
	default:
		return channels[0], channels[1]
	}
}

// Interleave16 merges two equally long channels into L/R interleaved PCM.
// When right is nil the output is mono.
func Interleave16(left, right []int16) []int16 {
	if right == nil {
		out := make([]int16, len(left))
		copy(out, left)
		return out
	}
	out := make([]int16, len(left)*2)
	for i := range left {
		out[i*2] = left[i]
		out[i*2+1] = right[i]
	}
	return out
}

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
// A trailing odd byte is ignored.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// DecodePlanarFloat32 decodes little-endian float32 samples laid out channel
// after channel (all of channel 0, then all of channel 1, …).
func DecodePlanarFloat32(b []byte, channels int) ([][]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	}
	if len(b)%(4*channels) != 0 {
		return nil, fmt.Errorf("audio: planar payload of %d bytes is not aligned to %d channels", len(b), channels)
	}
	n := len(b) / (4 * channels)
	out := make([][]float32, channels)
	for c := range channels {
		ch := make([]float32, n)
		base := c * n * 4
		for i := range n {
			ch[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[base+i*4:]))
		}
		out[c] = ch
	}
	return out, nil
}

// DeinterleaveFloat32 decodes little-endian interleaved float32 frames into
// one slice per channel. Incomplete trailing frames are dropped.
func DeinterleaveFloat32(b []byte, channels int) [][]float32 {
	if channels <= 0 {
		return nil
	}
	n := len(b) / (4 * channels)
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, n)
	}
	for i := range n {
		for c := range channels {
			off := (i*channels + c) * 4
			out[c][i] = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
		}
	}
	return out
}
