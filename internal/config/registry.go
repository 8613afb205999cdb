package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/tabrec/pkg/capture"
	"github.com/MrWong99/tabrec/pkg/codec"
	"github.com/MrWong99/tabrec/pkg/download"
	"github.com/MrWong99/tabrec/pkg/statestore"
)

// ErrBackendNotRegistered is returned by Create* methods when no factory has
// been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// CodecFactory creates one encoder per recording session.
type CodecFactory func(rec RecordingConfig, cfg codec.Config) (codec.Encoder, error)

// CaptureFactory creates the capture source.
type CaptureFactory func(cfg CaptureConfig) (capture.Source, error)

// DownloadFactory creates the download sink.
type DownloadFactory func(ctx context.Context, cfg DownloadConfig) (download.Sink, error)

// StateFactory creates the state store.
type StateFactory func(ctx context.Context, cfg StateConfig) (statestore.Store, error)

// Registry maps backend names to their constructor functions for each
// backend kind. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	codec    map[string]CodecFactory
	capture  map[string]CaptureFactory
	download map[string]DownloadFactory
	state    map[string]StateFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		codec:    make(map[string]CodecFactory),
		capture:  make(map[string]CaptureFactory),
		download: make(map[string]DownloadFactory),
		state:    make(map[string]StateFactory),
	}
}

// RegisterCodec registers an encoder factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterCodec(name string, factory CodecFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codec[name] = factory
}

// RegisterCapture registers a capture source factory under name.
func (r *Registry) RegisterCapture(name string, factory CaptureFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture[name] = factory
}

// RegisterDownload registers a download sink factory under name.
func (r *Registry) RegisterDownload(name string, factory DownloadFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.download[name] = factory
}

// RegisterState registers a state store factory under name.
func (r *Registry) RegisterState(name string, factory StateFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[name] = factory
}

// CodecFor returns the encoder factory registered under rec.Codec, bound to
// rec. Returns [ErrBackendNotRegistered] if no factory has been registered
// for that name.
func (r *Registry) CodecFor(rec RecordingConfig) (func(codec.Config) (codec.Encoder, error), error) {
	r.mu.RLock()
	factory, ok := r.codec[rec.Codec]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: codec/%q", ErrBackendNotRegistered, rec.Codec)
	}
	return func(cfg codec.Config) (codec.Encoder, error) { return factory(rec, cfg) }, nil
}

// CreateCapture instantiates the capture source registered under cfg.Backend.
func (r *Registry) CreateCapture(cfg CaptureConfig) (capture.Source, error) {
	r.mu.RLock()
	factory, ok := r.capture[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: capture/%q", ErrBackendNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}

// CreateDownload instantiates the download sink registered under cfg.Backend.
func (r *Registry) CreateDownload(ctx context.Context, cfg DownloadConfig) (download.Sink, error) {
	r.mu.RLock()
	factory, ok := r.download[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: download/%q", ErrBackendNotRegistered, cfg.Backend)
	}
	return factory(ctx, cfg)
}

// CreateState instantiates the state store registered under cfg.Backend.
func (r *Registry) CreateState(ctx context.Context, cfg StateConfig) (statestore.Store, error) {
	r.mu.RLock()
	factory, ok := r.state[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: state/%q", ErrBackendNotRegistered, cfg.Backend)
	}
	return factory(ctx, cfg)
}
