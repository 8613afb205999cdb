package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr   = ":8080"
	DefaultCodec        = "mp3"
	DefaultChannels     = 2
	DefaultFrameSize    = 4096
	DefaultBitrateKbps  = 128
	DefaultFilename     = "tab-audio.mp3"
	DefaultCapture      = "websocket"
	DefaultGrantTimeout = 10 * time.Second
	DefaultDownload     = "local"
	DefaultDownloadDir  = "recordings"
	DefaultState        = "file"
	DefaultStatePath    = "tabrec-state.yaml"
)

// ValidBackendNames lists the built-in backend names per kind.
// Used by [Validate] to warn about unrecognised names.
var ValidBackendNames = map[string][]string{
	"codec":    {"mp3", "opus"},
	"capture":  {"websocket", "device"},
	"download": {"local", "s3"},
	"state":    {"file", "redis", "postgres", "memory"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, DefaultListenAddr)
	setDefault(&cfg.Server.LogLevel, LogInfo)

	setDefault(&cfg.Recording.Codec, DefaultCodec)
	setDefault(&cfg.Recording.Channels, DefaultChannels)
	setDefault(&cfg.Recording.FrameSize, DefaultFrameSize)
	setDefault(&cfg.Recording.DefaultBitrateKbps, DefaultBitrateKbps)
	setDefault(&cfg.Recording.DefaultFilename, DefaultFilename)

	setDefault(&cfg.Capture.Backend, DefaultCapture)
	setDefault(&cfg.Capture.GrantTimeout, DefaultGrantTimeout)
	setDefault(&cfg.Capture.Device.Mode, "loopback")
	setDefault(&cfg.Capture.Device.SampleRate, 48000)
	setDefault(&cfg.Capture.Device.Channels, 2)

	setDefault(&cfg.Download.Backend, DefaultDownload)
	setDefault(&cfg.Download.Dir, DefaultDownloadDir)

	setDefault(&cfg.State.Backend, DefaultState)
	setDefault(&cfg.State.Path, DefaultStatePath)
}

func setDefault[T comparable](field *T, v T) {
	var zero T
	if *field == zero {
		*field = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Backend name validation: warn for unknown names.
	validateBackendName("codec", cfg.Recording.Codec)
	validateBackendName("capture", cfg.Capture.Backend)
	validateBackendName("download", cfg.Download.Backend)
	validateBackendName("state", cfg.State.Backend)

	// Recording
	if c := cfg.Recording.Channels; c != 0 && c != 1 && c != 2 {
		errs = append(errs, fmt.Errorf("recording.channels %d is invalid; valid values: 1, 2", c))
	}
	if fs := cfg.Recording.FrameSize; fs != 0 && (fs < 256 || fs > 16384) {
		errs = append(errs, fmt.Errorf("recording.frame_size %d is out of range [256, 16384]", fs))
	}
	if cfg.Recording.DefaultBitrateKbps < 0 {
		errs = append(errs, fmt.Errorf("recording.default_bitrate_kbps %d must not be negative", cfg.Recording.DefaultBitrateKbps))
	}

	// Capture
	if cfg.Capture.GrantTimeout < 0 {
		errs = append(errs, fmt.Errorf("capture.grant_timeout %s must not be negative", cfg.Capture.GrantTimeout))
	}
	if cfg.Capture.Buffer < 0 {
		errs = append(errs, fmt.Errorf("capture.buffer %d must not be negative", cfg.Capture.Buffer))
	}
	if m := cfg.Capture.Device.Mode; m != "" && m != "capture" && m != "loopback" {
		errs = append(errs, fmt.Errorf("capture.device.mode %q is invalid; valid values: capture, loopback", m))
	}
	if c := cfg.Capture.Device.Channels; c != 0 && c != 1 && c != 2 {
		errs = append(errs, fmt.Errorf("capture.device.channels %d is invalid; valid values: 1, 2", c))
	}

	// Download
	if cfg.Download.Backend == "s3" && cfg.Download.S3.Bucket == "" {
		errs = append(errs, errors.New("download.s3.bucket is required when download.backend is s3"))
	}
	if (cfg.Download.S3.AccessKeyID == "") != (cfg.Download.S3.SecretAccessKey == "") {
		errs = append(errs, errors.New("download.s3.access_key_id and secret_access_key must be set together"))
	}

	// State
	switch cfg.State.Backend {
	case "redis":
		if cfg.State.Redis.Addr == "" {
			errs = append(errs, errors.New("state.redis.addr is required when state.backend is redis"))
		}
	case "postgres":
		if cfg.State.PostgresDSN == "" {
			errs = append(errs, errors.New("state.postgres_dsn is required when state.backend is postgres"))
		}
	case "memory":
		slog.Warn("state.backend is memory; the recording flag will not survive a restart")
	}

	return errors.Join(errs...)
}

// validateBackendName logs a warning if name is non-empty and not found in
// the [ValidBackendNames] list for the given kind.
func validateBackendName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidBackendNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown backend name — may be a typo or third-party backend",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
