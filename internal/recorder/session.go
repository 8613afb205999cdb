package recorder

import (
	"time"

	"github.com/MrWong99/tabrec/pkg/audio"
	"github.com/MrWong99/tabrec/pkg/capture"
	"github.com/MrWong99/tabrec/pkg/codec"
)

// Info describes the running session.
type Info struct {
	// SessionID uniquely identifies the recording.
	SessionID string `json:"session_id"`

	// Filename is the sanitized name the file will be saved under.
	Filename string `json:"filename"`

	// BitrateKbps is the encoder's target bitrate.
	BitrateKbps int `json:"bitrate_kbps"`

	// SampleRate and Channels are the capture stream's native format.
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`

	// Monitor reports whether the raw stream is tapped to the monitor.
	Monitor bool `json:"monitor"`

	// StartedAt is when the session entered Recording.
	StartedAt time.Time `json:"started_at"`
}

// session is the single unit of work owned by the host. Its handle, encoder
// and chunk list are never shared.
type session struct {
	info   Info
	format audio.Format
	handle capture.Handle
	enc    codec.Encoder
	pipe   *pipeline
}
