package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/tabrec/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged || d.RecordingChanged {
		t.Errorf("expected no hot changes, got %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("expected no restart, got %v", d.RestartRequired)
	}
	if !d.Empty() {
		t.Error("Empty() = false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.Empty() {
		t.Error("Empty() = true for a log level change")
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level must not require a restart, got %v", d.RestartRequired)
	}
}

func TestDiff_RecordingDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.RecordingConfig)
	}{
		{"bitrate", func(r *config.RecordingConfig) { r.DefaultBitrateKbps = 192 }},
		{"filename", func(r *config.RecordingConfig) { r.DefaultFilename = "other.mp3" }},
		{"channels", func(r *config.RecordingConfig) { r.Channels = 1 }},
		{"frame size", func(r *config.RecordingConfig) { r.FrameSize = 2048 }},
		{"monitor", func(r *config.RecordingConfig) { r.Monitor = true }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			new := config.Default()
			tc.mutate(&new.Recording)

			d := config.Diff(old, new)
			if !d.RecordingChanged {
				t.Fatal("expected RecordingChanged=true")
			}
			if d.NewRecording != new.Recording {
				t.Errorf("NewRecording = %+v, want %+v", d.NewRecording, new.Recording)
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("recording defaults must apply live, got %v", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"codec", func(c *config.Config) { c.Recording.Codec = "opus" }, "recording.codec"},
		{"ffmpeg", func(c *config.Config) { c.Recording.FFmpegPath = "/opt/ffmpeg" }, "recording.codec"},
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9090" }, "server"},
		{"tls", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"} }, "server"},
		{"origins", func(c *config.Config) { c.Server.AllowedOrigins = []string{"*"} }, "server"},
		{"capture", func(c *config.Config) { c.Capture.Backend = "device" }, "capture"},
		{"download", func(c *config.Config) { c.Download.Dir = "/tmp/out" }, "download"},
		{"state", func(c *config.Config) { c.State.Backend = "memory" }, "state"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			new := config.Default()
			tc.mutate(new)

			d := config.Diff(old, new)
			if !slices.Contains(d.RestartRequired, tc.want) {
				t.Errorf("RestartRequired = %v, want it to contain %q", d.RestartRequired, tc.want)
			}
		})
	}
}

func TestDiff_SameTLSIsEqual(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	old.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"}
	new.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"}

	if d := config.Diff(old, new); len(d.RestartRequired) != 0 {
		t.Errorf("equal TLS pointers should not differ, got %v", d.RestartRequired)
	}
}
