// Package config provides the configuration schema, loader, hot-reload
// watcher and backend registry for tabrec.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the tabrec server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for tabrec.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Recording RecordingConfig `yaml:"recording"`
	Capture   CaptureConfig   `yaml:"capture"`
	Download  DownloadConfig  `yaml:"download"`
	State     StateConfig     `yaml:"state"`
}

// ServerConfig holds network and logging settings for the tabrec server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists WebSocket origin patterns accepted in addition to
	// the server's own host (e.g., "chrome-extension://*").
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// RecordingConfig holds the encoder choice and the per-session defaults.
// Everything except Codec and FFmpegPath applies to the next session when
// the file is reloaded.
type RecordingConfig struct {
	// Codec selects the registered encoder ("mp3", "opus").
	Codec string `yaml:"codec"`

	// FFmpegPath overrides the ffmpeg binary used by the mp3 encoder.
	FFmpegPath string `yaml:"ffmpeg_path"`

	// Channels is the encoded channel count, 1 or 2.
	Channels int `yaml:"channels"`

	// FrameSize is the processing window in samples per channel.
	FrameSize int `yaml:"frame_size"`

	// DefaultBitrateKbps is used when a start request has no bitrate.
	DefaultBitrateKbps int `yaml:"default_bitrate_kbps"`

	// DefaultFilename is used when a start request has no filename.
	DefaultFilename string `yaml:"default_filename"`

	// Monitor taps every session to the /monitor listeners.
	Monitor bool `yaml:"monitor"`
}

// CaptureConfig selects how tab audio reaches the recorder.
type CaptureConfig struct {
	// Backend selects the registered capture source ("websocket", "device").
	Backend string `yaml:"backend"`

	// GrantTimeout bounds how long the browser extension may take to answer
	// a capture request.
	GrantTimeout time.Duration `yaml:"grant_timeout"`

	// Buffer is the chunk queue depth between the capture thread and the
	// pipeline.
	Buffer int `yaml:"buffer"`

	// Device configures the local device backend.
	Device DeviceConfig `yaml:"device"`
}

// DeviceConfig configures a local capture device.
type DeviceConfig struct {
	// Mode is "capture" (microphone/line-in) or "loopback" (system output).
	Mode string `yaml:"mode"`

	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}

// DownloadConfig selects where finished recordings are stored.
type DownloadConfig struct {
	// Backend selects the registered download sink ("local", "s3").
	Backend string `yaml:"backend"`

	// Dir is the output directory of the local sink.
	Dir string `yaml:"dir"`

	// S3 configures the s3 sink.
	S3 S3Config `yaml:"s3"`

	// FallbackDir, when set for a remote backend, receives recordings the
	// primary sink failed to store.
	FallbackDir string `yaml:"fallback_dir"`
}

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`

	// Endpoint points at an S3-compatible service (MinIO, R2).
	Endpoint string `yaml:"endpoint"`

	// AccessKeyID and SecretAccessKey are optional static credentials; the
	// default AWS credential chain is used otherwise.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// StateConfig selects where the durable recording flag lives.
type StateConfig struct {
	// Backend selects the registered store ("file", "redis", "postgres", "memory").
	Backend string `yaml:"backend"`

	// Path is the YAML file of the file store.
	Path string `yaml:"path"`

	// Redis configures the redis store.
	Redis RedisConfig `yaml:"redis"`

	// PostgresDSN is the connection string of the postgres store.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// RedisConfig configures the redis store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}
