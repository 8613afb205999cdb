package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/tabrec/pkg/download"
)

// ErrAllFailed is returned when every sink of a [FallbackSink] failed or had
// an open circuit breaker.
var ErrAllFailed = errors.New("resilience: all sinks failed")

// FallbackConfig configures the per-sink circuit breaker of a [FallbackSink].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type sinkEntry struct {
	name    string
	sink    download.Sink
	breaker *CircuitBreaker
}

// FallbackSink saves to a primary [download.Sink] and falls through to the
// next sink, in registration order, when a save fails or the sink's breaker
// is open. The first successful save wins; no sink is tried twice.
type FallbackSink struct {
	cfg     FallbackConfig
	entries []sinkEntry
}

var (
	_ download.Sink    = (*FallbackSink)(nil)
	_ download.Locator = (*FallbackSink)(nil)
)

// NewFallbackSink creates a FallbackSink with primary as its first entry.
func NewFallbackSink(primary download.Sink, name string, cfg FallbackConfig) *FallbackSink {
	s := &FallbackSink{cfg: cfg}
	s.AddFallback(name, primary)
	return s
}

// AddFallback appends a sink tried after all previously added ones.
func (s *FallbackSink) AddFallback(name string, sink download.Sink) {
	cb := s.cfg.CircuitBreaker
	cb.Name = "download/" + name
	s.entries = append(s.entries, sinkEntry{name: name, sink: sink, breaker: NewCircuitBreaker(cb)})
}

// Save implements [download.Sink]. When every sink fails the error wraps
// both [download.ErrDownloadFailure] and [ErrAllFailed].
func (s *FallbackSink) Save(ctx context.Context, f download.File) (string, error) {
	var lastErr error
	for i, e := range s.entries {
		var id string
		err := e.breaker.Execute(func() error {
			var err error
			id, err = e.sink.Save(ctx, f)
			return err
		})
		if err == nil {
			if i > 0 {
				slog.Warn("recording saved to fallback sink", "sink", e.name, "file", f.Name, "id", id)
			}
			return id, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping sink (circuit open)", "sink", e.name)
		} else {
			slog.Warn("sink failed, trying next", "sink", e.name, "err", err)
		}
	}
	return "", fmt.Errorf("%w: %w: %v", download.ErrDownloadFailure, ErrAllFailed, lastErr)
}

// Locate implements [download.Locator] by asking every sink that can serve
// files back.
func (s *FallbackSink) Locate(id string) (string, bool) {
	for _, e := range s.entries {
		if l, ok := e.sink.(download.Locator); ok {
			if p, ok := l.Locate(id); ok {
				return p, true
			}
		}
	}
	return "", false
}
