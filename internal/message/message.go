// Package message defines the control messages exchanged between the
// coordinator, the capture host and the control surface, and the actor inbox
// they travel through.
//
// Every delivery is fire-and-acknowledge: the sender waits for an [Ack]
// carrying ok plus an optional error string.
package message

import (
	"context"
	"errors"
)

// Kind identifies a control message.
type Kind string

const (
	// KindStart asks the capture host to begin a recording.
	KindStart Kind = "START"

	// KindStop asks the capture host to finalize the active recording.
	KindStop Kind = "STOP"

	// KindSaved reports a recording that was handed to the download sink.
	KindSaved Kind = "SAVED"

	// KindError reports a recording that ended in failure.
	KindError Kind = "ERROR"
)

// Message is one control message. Only the fields relevant to Kind are set.
type Message struct {
	Kind Kind `json:"kind"`

	// SessionID identifies the recording a SAVED or ERROR refers to.
	SessionID string `json:"session_id,omitempty"`

	// START fields.
	TabSelector string `json:"tab,omitempty"`
	BitrateKbps int    `json:"bitrate_kbps,omitempty"`
	Monitor     *bool  `json:"monitor,omitempty"`

	// Filename is set on START (requested) and SAVED (actual).
	Filename string `json:"filename,omitempty"`

	// DownloadID is set on SAVED.
	DownloadID string `json:"download_id,omitempty"`

	// Text is the error message of an ERROR.
	Text string `json:"message,omitempty"`
}

// Ack acknowledges a delivery.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	// State is the receiver's state after handling the message, when it has
	// one worth reporting (e.g., the current state on a rejected START).
	State string `json:"state,omitempty"`
}

// OK returns a successful Ack.
func OK() Ack { return Ack{OK: true} }

// Fail returns a failed Ack carrying err.
func Fail(err error) Ack {
	if err == nil {
		return Ack{OK: false}
	}
	return Ack{OK: false, Error: err.Error()}
}

// Err converts a failed Ack back into an error; nil when OK.
func (a Ack) Err() error {
	if a.OK {
		return nil
	}
	if a.Error == "" {
		return errors.New("message: delivery rejected")
	}
	return errors.New(a.Error)
}

// Endpoint receives messages.
type Endpoint interface {
	Deliver(ctx context.Context, m Message) Ack
}

// EndpointFunc adapts a function to [Endpoint].
type EndpointFunc func(ctx context.Context, m Message) Ack

// Deliver implements [Endpoint].
func (f EndpointFunc) Deliver(ctx context.Context, m Message) Ack { return f(ctx, m) }
