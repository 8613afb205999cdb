package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/MrWong99/tabrec/internal/app"
	"github.com/MrWong99/tabrec/internal/config"
	"github.com/MrWong99/tabrec/internal/resilience"
	"github.com/MrWong99/tabrec/pkg/audio"
	"github.com/MrWong99/tabrec/pkg/capture"
	"github.com/MrWong99/tabrec/pkg/capture/device"
	"github.com/MrWong99/tabrec/pkg/capture/wscapture"
	"github.com/MrWong99/tabrec/pkg/codec"
	"github.com/MrWong99/tabrec/pkg/codec/mp3"
	"github.com/MrWong99/tabrec/pkg/codec/opus"
	"github.com/MrWong99/tabrec/pkg/download"
	"github.com/MrWong99/tabrec/pkg/download/local"
	"github.com/MrWong99/tabrec/pkg/download/s3"
	"github.com/MrWong99/tabrec/pkg/statestore"
)

// ── Backend wiring ────────────────────────────────────────────────────────────

// registerBuiltinBackends wires all built-in backend factories into reg.
// origins restricts which pages may open the capture websocket.
func registerBuiltinBackends(reg *config.Registry, origins []string) {
	// ── Codecs ────────────────────────────────────────────────────────────────

	reg.RegisterCodec("mp3", func(rec config.RecordingConfig, cfg codec.Config) (codec.Encoder, error) {
		var opts []mp3.Option
		if rec.FFmpegPath != "" {
			opts = append(opts, mp3.WithBinary(rec.FFmpegPath))
		}
		return mp3.New(cfg, opts...)
	})

	reg.RegisterCodec("opus", func(_ config.RecordingConfig, cfg codec.Config) (codec.Encoder, error) {
		return opus.New(cfg)
	})

	// ── Capture ───────────────────────────────────────────────────────────────

	reg.RegisterCapture("websocket", func(cfg config.CaptureConfig) (capture.Source, error) {
		opts := []wscapture.Option{wscapture.WithGrantTimeout(cfg.GrantTimeout)}
		if cfg.Buffer > 0 {
			opts = append(opts, wscapture.WithBuffer(cfg.Buffer))
		}
		if len(origins) > 0 {
			opts = append(opts, wscapture.WithAcceptOptions(&websocket.AcceptOptions{OriginPatterns: origins}))
		}
		return wscapture.NewHub(opts...), nil
	})

	reg.RegisterCapture("device", func(cfg config.CaptureConfig) (capture.Source, error) {
		opts := []device.Option{
			device.WithMode(device.Mode(cfg.Device.Mode)),
			device.WithFormat(audio.Format{SampleRate: cfg.Device.SampleRate, Channels: cfg.Device.Channels}),
		}
		if cfg.Buffer > 0 {
			opts = append(opts, device.WithBuffer(cfg.Buffer))
		}
		return device.New(opts...), nil
	})

	// ── Download ──────────────────────────────────────────────────────────────

	reg.RegisterDownload("local", func(_ context.Context, cfg config.DownloadConfig) (download.Sink, error) {
		return local.New(cfg.Dir)
	})

	reg.RegisterDownload("s3", func(ctx context.Context, cfg config.DownloadConfig) (download.Sink, error) {
		return s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	})

	// ── State ─────────────────────────────────────────────────────────────────

	reg.RegisterState("file", func(_ context.Context, cfg config.StateConfig) (statestore.Store, error) {
		return statestore.NewFileStore(cfg.Path)
	})

	reg.RegisterState("redis", func(_ context.Context, cfg config.StateConfig) (statestore.Store, error) {
		return statestore.NewRedisStore(statestore.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		}), nil
	})

	reg.RegisterState("postgres", func(ctx context.Context, cfg config.StateConfig) (statestore.Store, error) {
		return statestore.OpenPostgresStore(ctx, cfg.PostgresDSN)
	})

	reg.RegisterState("memory", func(context.Context, config.StateConfig) (statestore.Store, error) {
		return statestore.NewMemoryStore(), nil
	})

	for kind, names := range config.ValidBackendNames {
		for _, name := range names {
			slog.Debug("registered backend", "kind", kind, "name", name)
		}
	}
}

// buildBackends instantiates the backends named in cfg using the registry
// and returns them for the application to consume.
func buildBackends(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Backends, error) {
	newEncoder, err := reg.CodecFor(cfg.Recording)
	if err != nil {
		return nil, fmt.Errorf("codec %q: %w", cfg.Recording.Codec, err)
	}
	// Probe the codec once so a missing ffmpeg or an unusable bitrate shows
	// up at start-up rather than on the first recording.
	probe, err := newEncoder(codec.Config{Channels: cfg.Recording.Channels, SampleRate: 48000, BitrateKbps: cfg.Recording.DefaultBitrateKbps})
	switch {
	case errors.Is(err, codec.ErrUnsupportedConfiguration):
		slog.Warn("default recording settings are not supported by the codec", "codec", cfg.Recording.Codec, "err", err)
	case err != nil:
		return nil, fmt.Errorf("codec %q: %w", cfg.Recording.Codec, err)
	default:
		_ = probe.Close()
	}
	slog.Info("backend created", "kind", "codec", "name", cfg.Recording.Codec)

	src, err := reg.CreateCapture(cfg.Capture)
	if err != nil {
		return nil, fmt.Errorf("create capture source %q: %w", cfg.Capture.Backend, err)
	}
	slog.Info("backend created", "kind", "capture", "name", cfg.Capture.Backend)

	sink, err := reg.CreateDownload(ctx, cfg.Download)
	if err != nil {
		return nil, fmt.Errorf("create download sink %q: %w", cfg.Download.Backend, err)
	}
	slog.Info("backend created", "kind", "download", "name", cfg.Download.Backend)
	if cfg.Download.FallbackDir != "" && cfg.Download.Backend != "local" {
		fallback, err := local.New(cfg.Download.FallbackDir)
		if err != nil {
			return nil, fmt.Errorf("create fallback sink: %w", err)
		}
		fs := resilience.NewFallbackSink(sink, cfg.Download.Backend, resilience.FallbackConfig{})
		fs.AddFallback("local", fallback)
		sink = fs
		slog.Info("download fallback enabled", "dir", cfg.Download.FallbackDir)
	}

	store, err := reg.CreateState(ctx, cfg.State)
	if err != nil {
		return nil, fmt.Errorf("create state store %q: %w", cfg.State.Backend, err)
	}
	slog.Info("backend created", "kind", "state", "name", cfg.State.Backend)
	switch cfg.State.Backend {
	case "redis", "postgres":
		store = resilience.GuardStore(store, resilience.CircuitBreakerConfig{Name: "state/" + cfg.State.Backend})
	}

	return &app.Backends{
		Source:     src,
		NewEncoder: newEncoder,
		Sink:       sink,
		Store:      store,
	}, nil
}
