// Package opus implements [codec.Encoder] with libopus (via gopus) and wraps
// the packets in an Ogg container (RFC 7845) using pion's oggwriter.
//
// Each unit is one 20 ms Opus frame. Packets are carried through an RTP
// header so the Ogg page granule positions advance at the 48 kHz clock Opus
// uses regardless of the input rate.
package opus

import (
	"bytes"
	"fmt"
	"math/rand/v2"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"layeh.com/gopus"

	"github.com/MrWong99/tabrec/pkg/codec"
)

const (
	frameMs = 20

	// clockRate is the RTP/Ogg granule clock for Opus.
	clockRate = 48000

	// maxPacketBytes bounds a single encoded Opus packet.
	maxPacketBytes = 4000

	payloadType = 111
)

// SampleRates lists the input rates libopus accepts.
var SampleRates = []int{8000, 12000, 16000, 24000, 48000}

// Bitrate bounds in kbps.
const (
	MinBitrateKbps = 6
	MaxBitrateKbps = 510
)

// Encoder is an Ogg/Opus [codec.Encoder].
type Encoder struct {
	cfg  codec.Config
	unit int

	enc *gopus.Encoder
	ogg *oggwriter.OggWriter
	out bytes.Buffer

	seq  uint16
	ts   uint32
	ssrc uint32

	finished bool
}

var _ codec.Encoder = (*Encoder)(nil)

// Validate reports whether cfg can be encoded as Opus.
func Validate(cfg codec.Config) error {
	if err := codec.ValidateChannels(cfg.Channels); err != nil {
		return err
	}
	if err := codec.ValidateOneOf("sample rate", cfg.SampleRate, SampleRates); err != nil {
		return err
	}
	if cfg.BitrateKbps < MinBitrateKbps || cfg.BitrateKbps > MaxBitrateKbps {
		return fmt.Errorf("%w: bitrate %d outside [%d, %d] kbps",
			codec.ErrUnsupportedConfiguration, cfg.BitrateKbps, MinBitrateKbps, MaxBitrateKbps)
	}
	return nil
}

// New validates cfg and creates the encoder. The Ogg identification and
// comment headers are returned with the first Encode (or Flush) output.
func New(cfg codec.Config) (*Encoder, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	enc, err := gopus.NewEncoder(cfg.SampleRate, cfg.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("%w: create opus encoder: %w", codec.ErrUnsupportedConfiguration, err)
	}
	enc.SetBitrate(cfg.BitrateKbps * 1000)

	e := &Encoder{
		cfg:  cfg,
		unit: cfg.SampleRate * frameMs / 1000,
		enc:  enc,
		ssrc: rand.Uint32(),
	}
	e.ogg, err = oggwriter.NewWith(&e.out, uint32(cfg.SampleRate), uint16(cfg.Channels))
	if err != nil {
		return nil, fmt.Errorf("opus: create ogg writer: %w", err)
	}
	return e, nil
}

// UnitSize implements [codec.Encoder].
func (e *Encoder) UnitSize() int { return e.unit }

// MIMEType implements [codec.Encoder].
func (e *Encoder) MIMEType() string { return "audio/ogg" }

// Extension implements [codec.Encoder].
func (e *Encoder) Extension() string { return ".ogg" }

// Encode implements [codec.Encoder]. A short final unit is padded with
// silence because Opus only accepts whole frames.
func (e *Encoder) Encode(left, right []int16) ([]byte, error) {
	if e.finished {
		return nil, fmt.Errorf("%w: encoder already finished", codec.ErrEncodeFailure)
	}
	if len(left) > e.unit {
		return nil, fmt.Errorf("%w: unit of %d samples exceeds %d", codec.ErrEncodeFailure, len(left), e.unit)
	}
	if e.cfg.Channels == 2 && len(right) != len(left) {
		return nil, fmt.Errorf("%w: channel length mismatch %d/%d", codec.ErrEncodeFailure, len(left), len(right))
	}

	pcm := make([]int16, e.unit*e.cfg.Channels)
	for i := range left {
		if e.cfg.Channels == 2 {
			pcm[i*2] = left[i]
			pcm[i*2+1] = right[i]
		} else {
			pcm[i] = left[i]
		}
	}

	packet, err := e.enc.Encode(pcm, e.unit, maxPacketBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: opus encode: %w", codec.ErrEncodeFailure, err)
	}
	if err := e.ogg.WriteRTP(&rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    payloadType,
			SequenceNumber: e.seq,
			Timestamp:      e.ts,
			SSRC:           e.ssrc,
		},
		Payload: packet,
	}); err != nil {
		return nil, fmt.Errorf("%w: ogg write: %w", codec.ErrEncodeFailure, err)
	}
	e.seq++
	e.ts += uint32(e.unit * clockRate / e.cfg.SampleRate)
	return e.drain(), nil
}

// Flush implements [codec.Encoder]. Opus keeps no look-ahead beyond the
// current frame so Flush only closes the Ogg stream.
func (e *Encoder) Flush() ([]byte, error) {
	if e.finished {
		return nil, fmt.Errorf("%w: encoder already finished", codec.ErrEncodeFailure)
	}
	e.finished = true
	if err := e.ogg.Close(); err != nil {
		return nil, fmt.Errorf("%w: ogg close: %w", codec.ErrEncodeFailure, err)
	}
	return e.drain(), nil
}

// Close implements [codec.Encoder].
func (e *Encoder) Close() error {
	e.finished = true
	return nil
}

func (e *Encoder) drain() []byte {
	if e.out.Len() == 0 {
		return nil
	}
	chunk := bytes.Clone(e.out.Bytes())
	e.out.Reset()
	return chunk
}
