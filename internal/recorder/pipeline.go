package recorder

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/tabrec/internal/observe"
	"github.com/MrWong99/tabrec/pkg/audio"
	"github.com/MrWong99/tabrec/pkg/capture"
	"github.com/MrWong99/tabrec/pkg/codec"
)

// Monitor makes the raw captured stream listenable while recording.
type Monitor interface {
	// Open starts a tap for one session.
	Open(sessionID string, f audio.Format) Tap
}

// Tap receives the raw captured stream of one session.
type Tap interface {
	// Write receives one raw chunk. It must not block the pipeline.
	Write(c audio.Chunk)

	// Close detaches the tap. Called once when the session is released.
	Close()
}

// NullSink is the silent terminal node of the capture graph. It consumes
// every processed frame so the processing stage always has a consumer, and
// produces no output.
type NullSink struct {
	frames  atomic.Uint64
	samples atomic.Uint64
}

// Consume accepts one processed frame.
func (s *NullSink) Consume(f audio.Frame) {
	s.frames.Add(1)
	s.samples.Add(uint64(f.Len()))
}

// Frames returns the number of frames consumed.
func (s *NullSink) Frames() uint64 { return s.frames.Load() }

// Samples returns the number of samples per channel consumed.
func (s *NullSink) Samples() uint64 { return s.samples.Load() }

// pipeline is the capture graph of one session:
//
//	handle ─► windower ─► processor (PCM16 + encode) ─► NullSink
//	   └────► tap (raw, only with monitoring)
//
// It is driven from the host goroutine only.
type pipeline struct {
	handle   capture.Handle
	enc      codec.Encoder
	windower *audio.Windower
	sink     *NullSink
	tap      Tap

	// recording reports whether frames should still be processed.
	recording func() bool

	channels int
	unit     int
	codec    string
	metrics  *observe.Metrics

	// Encode-unit remainder carried across frames.
	pendL, pendR []int16

	// Compressed chunks in emission order.
	chunks [][]byte
	size   int

	err         error
	releaseOnce sync.Once
	releaseErr  error
}

type pipelineConfig struct {
	handle    capture.Handle
	enc       codec.Encoder
	codec     string
	channels  int
	frameSize int
	tap       Tap
	recording func() bool
	metrics   *observe.Metrics
}

func newPipeline(cfg pipelineConfig) *pipeline {
	return &pipeline{
		handle:    cfg.handle,
		enc:       cfg.enc,
		windower:  audio.NewWindower(cfg.handle.Format(), cfg.frameSize),
		sink:      &NullSink{},
		tap:       cfg.tap,
		recording: cfg.recording,
		channels:  cfg.channels,
		unit:      cfg.enc.UnitSize(),
		codec:     cfg.codec,
		metrics:   cfg.metrics,
	}
}

// push feeds one captured chunk through the graph. It returns the first
// encode error; after an error the pipeline ignores further input.
func (p *pipeline) push(ctx context.Context, c audio.Chunk) error {
	if p.err != nil {
		return p.err
	}
	if p.tap != nil {
		p.tap.Write(c)
	}
	p.windower.Push(c, func(f audio.Frame) {
		if p.err != nil || !p.recording() {
			return
		}
		p.err = p.process(ctx, f)
	})
	return p.err
}

// process converts one frame to PCM16 and encodes every complete unit.
func (p *pipeline) process(ctx context.Context, f audio.Frame) error {
	left, right := audio.StereoPair(f.Channels)
	if p.channels == 1 {
		left = downmix(left, right)
		p.pendL = append(p.pendL, audio.FloatToPCM16(nil, left)...)
	} else {
		p.pendL = append(p.pendL, audio.FloatToPCM16(nil, left)...)
		p.pendR = append(p.pendR, audio.FloatToPCM16(nil, right)...)
	}
	p.metrics.FramesProcessed.Add(ctx, 1)

	var off int
	for len(p.pendL)-off >= p.unit {
		if err := p.encode(ctx, p.pendL[off:off+p.unit], p.unitRight(off, off+p.unit)); err != nil {
			return err
		}
		off += p.unit
	}
	p.pendL = append(p.pendL[:0], p.pendL[off:]...)
	if p.pendR != nil {
		p.pendR = append(p.pendR[:0], p.pendR[off:]...)
	}
	p.sink.Consume(f)
	return nil
}

func (p *pipeline) unitRight(from, to int) []int16 {
	if p.pendR == nil {
		return nil
	}
	return p.pendR[from:to]
}

func (p *pipeline) encode(ctx context.Context, left, right []int16) error {
	start := time.Now()
	out, err := p.enc.Encode(left, right)
	if err != nil {
		return fmt.Errorf("recorder: encode: %w", err)
	}
	p.metrics.RecordEncode(ctx, p.codec, time.Since(start), len(out))
	p.appendChunk(out)
	return nil
}

func (p *pipeline) appendChunk(b []byte) {
	if len(b) == 0 {
		return
	}
	// Encoders may reuse their output buffer.
	p.chunks = append(p.chunks, bytes.Clone(b))
	p.size += len(b)
}

// finish runs the tail of finalization: the windower remainder and the
// buffered partial unit are encoded, then the encoder is flushed exactly once
// and the chunks are joined in emission order.
func (p *pipeline) finish(ctx context.Context) ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.windower.Flush(func(f audio.Frame) {
		if p.err == nil {
			p.err = p.process(ctx, f)
		}
	})
	if p.err != nil {
		return nil, p.err
	}
	if len(p.pendL) > 0 {
		if err := p.encode(ctx, p.pendL, p.unitRight(0, len(p.pendL))); err != nil {
			return nil, err
		}
		p.pendL, p.pendR = p.pendL[:0], nil
	}
	tail, err := p.enc.Flush()
	if err != nil {
		return nil, fmt.Errorf("recorder: flush: %w", err)
	}
	p.appendChunk(tail)

	out := make([]byte, 0, p.size)
	for _, c := range p.chunks {
		out = append(out, c...)
	}
	return out, nil
}

// release detaches the tap and stops the capture tracks. Safe to call
// multiple times; later calls return the first result.
func (p *pipeline) release() error {
	p.releaseOnce.Do(func() {
		if p.tap != nil {
			p.tap.Close()
			p.tap = nil
		}
		p.releaseErr = p.handle.Release()
		if p.releaseErr != nil {
			p.releaseErr = fmt.Errorf("recorder: release capture: %w", p.releaseErr)
		}
	})
	return p.releaseErr
}

// dropped reports chunks the capture source discarded, if it counts them.
func (p *pipeline) dropped() uint64 {
	if dc, ok := p.handle.(capture.DropCounter); ok {
		return dc.Dropped()
	}
	return 0
}

// downmix averages two channels into one. A duplicated mono source (left and
// right sharing storage) is returned as is.
func downmix(left, right []float32) []float32 {
	if len(left) == 0 || len(right) == 0 || &left[0] == &right[0] {
		return left
	}
	out := make([]float32, len(left))
	for i := range left {
		out[i] = (left[i] + right[i]) / 2
	}
	return out
}
