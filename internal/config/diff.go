package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only LogLevel and Recording defaults are applied without a restart; other
// changed sections are listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RecordingChanged is true when a per-session default changed. The new
	// values apply to the next session.
	RecordingChanged bool
	NewRecording     RecordingConfig

	// RestartRequired names changed settings that only take effect after a
	// restart (e.g., "capture", "recording.codec").
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Recording defaults
	o, n := old.Recording, new.Recording
	if o.Channels != n.Channels || o.FrameSize != n.FrameSize ||
		o.DefaultBitrateKbps != n.DefaultBitrateKbps ||
		o.DefaultFilename != n.DefaultFilename || o.Monitor != n.Monitor {
		d.RecordingChanged = true
		d.NewRecording = n
	}

	// Settings bound at start-up.
	if o.Codec != n.Codec || o.FFmpegPath != n.FFmpegPath {
		d.RestartRequired = append(d.RestartRequired, "recording.codec")
	}
	if old.Server.ListenAddr != new.Server.ListenAddr || !tlsEqual(old.Server.TLS, new.Server.TLS) ||
		!slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Capture != new.Capture {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if old.Download != new.Download {
		d.RestartRequired = append(d.RestartRequired, "download")
	}
	if old.State != new.State {
		d.RestartRequired = append(d.RestartRequired, "state")
	}

	return d
}

// Empty reports whether nothing the application acts on changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.RecordingChanged && len(d.RestartRequired) == 0
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
