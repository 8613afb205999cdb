// Package device implements [capture.Source] on a local audio capture device
// through miniaudio (malgo). It records from the default capture device, or
// from the default playback device in loopback mode where the platform
// supports it (WASAPI), which is how a desktop tab's audio can be recorded
// without the browser extension.
//
// The tab selector is ignored: a device source has exactly one stream.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/tabrec/pkg/audio"
	"github.com/MrWong99/tabrec/pkg/capture"
)

// Mode selects which device is opened.
type Mode string

const (
	// ModeCapture opens the default input device.
	ModeCapture Mode = "capture"

	// ModeLoopback opens the default output device in loopback.
	ModeLoopback Mode = "loopback"
)

// Option is a functional option for [New].
type Option func(*Source)

// WithMode selects capture or loopback.
func WithMode(m Mode) Option {
	return func(s *Source) {
		if m != "" {
			s.mode = m
		}
	}
}

// WithFormat sets the requested sample rate and channel count. miniaudio
// converts from the device's native format when they differ.
func WithFormat(f audio.Format) Option {
	return func(s *Source) {
		if f.SampleRate > 0 {
			s.format.SampleRate = f.SampleRate
		}
		if f.Channels > 0 {
			s.format.Channels = f.Channels
		}
	}
}

// WithBuffer sets the chunk queue depth.
func WithBuffer(n int) Option {
	return func(s *Source) { s.buffer = n }
}

// Source opens one device stream per Acquire.
type Source struct {
	mode   Mode
	format audio.Format
	buffer int

	mu     sync.Mutex
	active bool
}

var (
	_ capture.Source  = (*Source)(nil)
	_ capture.Checker = (*Source)(nil)
)

// New creates a device Source. Defaults: capture mode, 48 kHz stereo.
func New(opts ...Option) *Source {
	s := &Source{
		mode:   ModeCapture,
		format: audio.Format{SampleRate: 48000, Channels: 2},
		buffer: capture.DefaultStreamBuffer,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Source) deviceType() malgo.DeviceType {
	if s.mode == ModeLoopback {
		return malgo.Loopback
	}
	return malgo.Capture
}

// Check implements [capture.Checker] by enumerating capture devices.
func (s *Source) Check(_ context.Context) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("device: init context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()
	kind := malgo.Capture
	if s.mode == ModeLoopback {
		kind = malgo.Playback
	}
	devices, err := mctx.Devices(kind)
	if err != nil {
		return fmt.Errorf("device: enumerate: %w", err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("device: no %s device found", s.mode)
	}
	return nil
}

// Acquire implements [capture.Source]. Only one stream may be open at a time.
func (s *Source) Acquire(_ context.Context, req capture.Request) (capture.Handle, error) {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: device already in use", capture.ErrCaptureUnavailable)
	}
	s.active = true
	s.mu.Unlock()

	h, err := s.open()
	if err != nil {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", capture.ErrCaptureUnavailable, err)
	}
	if req.TabSelector != "" {
		slog.Debug("device capture ignores tab selector", "tab", req.TabSelector)
	}
	slog.Info("device capture started", "mode", s.mode, "format", s.format.String())
	return h, nil
}

func (s *Source) open() (*capture.Stream, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "msg", message)
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	f := s.format
	cfg := malgo.DefaultDeviceConfig(s.deviceType())
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)

	var (
		dev     *malgo.Device
		stream  *capture.Stream
		started = time.Now()
	)
	stream = capture.NewStream(f, s.buffer, func() error {
		dev.Uninit()
		err := mctx.Uninit()
		mctx.Free()
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("device: uninit context: %w", err)
		}
		return nil
	})

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, frameCount uint32) {
			// The backend reuses in after the callback returns.
			samples := audio.DeinterleaveFloat32(in[:min(len(in), int(frameCount)*f.Channels*4)], f.Channels)
			stream.Push(audio.Chunk{Samples: samples, Timestamp: time.Since(started)})
		},
		Stop: func() {
			stream.End()
		},
	}

	dev, err = malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("init device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("start device: %w", err)
	}
	return stream, nil
}
