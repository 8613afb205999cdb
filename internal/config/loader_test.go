package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/tabrec/internal/config"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty document: %v", err)
	}
	checks := []struct {
		name      string
		got, want any
	}{
		{"listen_addr", cfg.Server.ListenAddr, ":8080"},
		{"log_level", cfg.Server.LogLevel, config.LogInfo},
		{"codec", cfg.Recording.Codec, "mp3"},
		{"channels", cfg.Recording.Channels, 2},
		{"frame_size", cfg.Recording.FrameSize, 4096},
		{"bitrate", cfg.Recording.DefaultBitrateKbps, 128},
		{"filename", cfg.Recording.DefaultFilename, "tab-audio.mp3"},
		{"capture", cfg.Capture.Backend, "websocket"},
		{"grant_timeout", cfg.Capture.GrantTimeout, 10 * time.Second},
		{"download", cfg.Download.Backend, "local"},
		{"download dir", cfg.Download.Dir, "recordings"},
		{"state", cfg.State.Backend, "file"},
		{"state path", cfg.State.Path, "tabrec-state.yaml"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
	if !reflect.DeepEqual(config.Default(), cfg) {
		t.Errorf("Default() = %+v, want %+v", config.Default(), cfg)
	}
}

func TestLoadFromReader_FullDocument(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  listen_addr: "127.0.0.1:9000"
  log_level: debug
  allowed_origins: ["chrome-extension://*"]
recording:
  codec: opus
  channels: 1
  frame_size: 2048
  default_bitrate_kbps: 64
  default_filename: podcast.ogg
  monitor: true
capture:
  backend: device
  grant_timeout: 3s
  buffer: 128
  device:
    mode: capture
    sample_rate: 44100
    channels: 1
download:
  backend: s3
  s3:
    bucket: recordings
    region: eu-central-1
    prefix: tabs
    endpoint: http://minio:9000
state:
  backend: redis
  redis:
    addr: localhost:6379
    db: 2
    key: tabrec:test
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Recording.Codec != "opus" || cfg.Recording.Channels != 1 || !cfg.Recording.Monitor {
		t.Errorf("recording = %+v", cfg.Recording)
	}
	if cfg.Capture.GrantTimeout != 3*time.Second || cfg.Capture.Device.SampleRate != 44100 {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	if cfg.Download.S3.Bucket != "recordings" || cfg.Download.S3.Endpoint != "http://minio:9000" {
		t.Errorf("download = %+v", cfg.Download)
	}
	if cfg.State.Redis.DB != 2 || cfg.State.Redis.Key != "tabrec:test" {
		t.Errorf("state = %+v", cfg.State)
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("allowed_origins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "server:\n  log_level: loud\n", "server.log_level"},
		{"tls incomplete", "server:\n  tls:\n    cert_file: a.pem\n", "server.tls"},
		{"channels", "recording:\n  channels: 6\n", "recording.channels"},
		{"frame size", "recording:\n  frame_size: 10\n", "recording.frame_size"},
		{"negative bitrate", "recording:\n  default_bitrate_kbps: -1\n", "default_bitrate_kbps"},
		{"device mode", "capture:\n  device:\n    mode: mirror\n", "capture.device.mode"},
		{"negative grant timeout", "capture:\n  grant_timeout: -1s\n", "grant_timeout"},
		{"s3 without bucket", "download:\n  backend: s3\n", "download.s3.bucket"},
		{"s3 half credentials", "download:\n  s3:\n    access_key_id: AK\n", "set together"},
		{"redis without addr", "state:\n  backend: redis\n", "state.redis.addr"},
		{"postgres without dsn", "state:\n  backend: postgres\n", "state.postgres_dsn"},
		{"unknown field", "recording:\n  sample_rate: 44100\n", "sample_rate"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error should mention %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  log_level: loud
recording:
  channels: 3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "recording.channels"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error misses %q: %v", want, err)
		}
	}
}

func TestValidate_UnknownBackendOnlyWarns(t *testing.T) {
	t.Parallel()

	if _, err := config.LoadFromReader(strings.NewReader("recording:\n  codec: flac\n")); err != nil {
		t.Errorf("unknown codec should only warn, got %v", err)
	}
}

func TestLoad_FileErrors(t *testing.T) {
	t.Parallel()

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "bad.yaml") {
		t.Errorf("error should name the file, got %v", err)
	}
}
