// Package recorder owns the recording session: the lifecycle state machine,
// the capture pipeline and the capture host actor that drives both.
//
// The [Host] is the only context that touches a session. START and STOP
// arrive as messages, captured chunks and the stream-ended signal arrive on
// the capture handle, and all of them are handled on one goroutine. The
// [Machine] is therefore the only guard needed to make a user stop and a
// stream-ended stop mutually exclusive.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/tabrec/internal/message"
	"github.com/MrWong99/tabrec/internal/observe"
	"github.com/MrWong99/tabrec/pkg/audio"
	"github.com/MrWong99/tabrec/pkg/capture"
	"github.com/MrWong99/tabrec/pkg/codec"
	"github.com/MrWong99/tabrec/pkg/download"
)

// shutdownTimeout bounds the finalize run when the host is stopped while
// recording.
const shutdownTimeout = 30 * time.Second

// EncoderFactory creates one encoder per session.
type EncoderFactory func(cfg codec.Config) (codec.Encoder, error)

// Defaults are the session parameters used when a START leaves them unset.
type Defaults struct {
	// Channels is the encoded channel count (1 or 2).
	Channels int

	// FrameSize is the processing window in samples per channel.
	FrameSize int

	// BitrateKbps is the default target bitrate.
	BitrateKbps int

	// Filename is the default output filename.
	Filename string

	// Monitor enables the monitor tap for every session.
	Monitor bool
}

// HostConfig holds all dependencies for a [Host].
type HostConfig struct {
	Source     capture.Source
	NewEncoder EncoderFactory

	// Codec names the encoder for metrics (e.g., "mp3").
	Codec string

	Sink download.Sink

	// Notify receives SAVED and ERROR messages. Required.
	Notify message.Endpoint

	// Monitor is optional.
	Monitor Monitor

	Defaults Defaults

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Host is the capture host actor. Create it with [NewHost], run it with
// [Host.Run] and talk to it through [Host.Deliver].
type Host struct {
	source     capture.Source
	newEncoder EncoderFactory
	codec      string
	sink       download.Sink
	notify     message.Endpoint
	monitor    Monitor
	metrics    *observe.Metrics

	inbox   *message.Mailbox
	machine Machine

	// sess is owned by the Run goroutine.
	sess *session

	mu       sync.Mutex
	defaults Defaults
	info     *Info
}

var _ message.Endpoint = (*Host)(nil)

// NewHost creates a Host with the given dependencies.
func NewHost(cfg HostConfig) *Host {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Host{
		source:     cfg.Source,
		newEncoder: cfg.NewEncoder,
		codec:      cfg.Codec,
		sink:       cfg.Sink,
		notify:     cfg.Notify,
		monitor:    cfg.Monitor,
		metrics:    m,
		inbox:      message.NewMailbox(8),
		defaults:   normalizeDefaults(cfg.Defaults),
	}
}

func normalizeDefaults(d Defaults) Defaults {
	if d.Channels == 0 {
		d.Channels = 2
	}
	if d.FrameSize <= 0 {
		d.FrameSize = audio.DefaultFrameSize
	}
	if d.BitrateKbps <= 0 {
		d.BitrateKbps = 128
	}
	if d.Filename == "" {
		d.Filename = download.DefaultFilename
	}
	return d
}

// SetDefaults replaces the session defaults. The running session keeps the
// values it started with.
func (h *Host) SetDefaults(d Defaults) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.defaults = normalizeDefaults(d)
}

// State returns the lifecycle state.
func (h *Host) State() State { return h.machine.State() }

// Info returns the running session, if any.
func (h *Host) Info() (Info, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.info == nil {
		return Info{}, false
	}
	return *h.info, true
}

// Deliver implements [message.Endpoint]. It blocks until the host has handled
// msg; a STOP returns after the file was saved or the failure reported.
func (h *Host) Deliver(ctx context.Context, msg message.Message) message.Ack {
	return h.inbox.Deliver(ctx, msg)
}

// Run is the host loop. It returns when ctx is cancelled, after finalizing a
// running session.
func (h *Host) Run(ctx context.Context) error {
	defer h.inbox.Close()
	for {
		var (
			chunks <-chan audio.Chunk
			ended  <-chan struct{}
		)
		if h.sess != nil {
			chunks = h.sess.handle.Chunks()
			ended = h.sess.handle.Ended()
		}
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return nil
		case env := <-h.inbox.C():
			env.Reply(h.handle(ctx, env.Msg))
		case c := <-chunks:
			h.onChunk(ctx, c)
		case <-ended:
			h.onEnded(ctx)
		}
	}
}

func (h *Host) handle(ctx context.Context, msg message.Message) message.Ack {
	switch msg.Kind {
	case message.KindStart:
		return h.start(ctx, msg)
	case message.KindStop:
		if h.machine.State() == StateRecording {
			h.drain(ctx)
		}
		if _, err := h.machine.Stop(); err != nil {
			return message.Ack{OK: true, State: h.machine.State().String()}
		}
		h.finalize(ctx)
		return message.Ack{OK: true, State: h.machine.State().String()}
	default:
		return message.Fail(fmt.Errorf("recorder: unsupported message %q", msg.Kind))
	}
}

// start sets up a session. The state is checked before anything is acquired
// so a duplicate START never creates a second capture or encoder.
func (h *Host) start(ctx context.Context, msg message.Message) message.Ack {
	if st := h.machine.State(); st != StateIdle {
		return message.Ack{OK: false, Error: ErrDuplicateStart.Error(), State: st.String()}
	}

	h.mu.Lock()
	d := h.defaults
	h.mu.Unlock()

	bitrate := msg.BitrateKbps
	if bitrate <= 0 {
		bitrate = d.BitrateKbps
	}
	monitor := d.Monitor
	if msg.Monitor != nil {
		monitor = *msg.Monitor
	}

	handle, err := h.source.Acquire(ctx, capture.Request{TabSelector: msg.TabSelector})
	if err != nil {
		slog.Warn("recorder: capture unavailable", "tab", msg.TabSelector, "err", err)
		return message.Ack{OK: false, Error: fmt.Errorf("recorder: acquire: %w", err).Error(), State: StateIdle.String()}
	}
	format := handle.Format()
	enc, err := h.newEncoder(codec.Config{
		Channels:    d.Channels,
		SampleRate:  format.SampleRate,
		BitrateKbps: bitrate,
	})
	if err != nil {
		if rerr := handle.Release(); rerr != nil {
			slog.Warn("recorder: release after encoder failure", "err", rerr)
		}
		slog.Warn("recorder: encoder rejected configuration", "format", format.String(), "bitrate_kbps", bitrate, "err", err)
		return message.Ack{OK: false, Error: fmt.Errorf("recorder: new encoder: %w", err).Error(), State: StateIdle.String()}
	}

	filename := msg.Filename
	if filename == "" {
		filename = d.Filename
	}
	info := Info{
		SessionID:   uuid.NewString(),
		Filename:    download.SanitizeName(filename, enc.Extension()),
		BitrateKbps: bitrate,
		SampleRate:  format.SampleRate,
		Channels:    format.Channels,
		Monitor:     monitor && h.monitor != nil,
		StartedAt:   time.Now().UTC(),
	}
	var tap Tap
	if info.Monitor {
		tap = h.monitor.Open(info.SessionID, format)
	}

	if _, err := h.machine.Start(); err != nil {
		if tap != nil {
			tap.Close()
		}
		_ = handle.Release()
		_ = enc.Close()
		return message.Ack{OK: false, Error: err.Error(), State: h.machine.State().String()}
	}
	h.sess = &session{
		info:   info,
		format: format,
		handle: handle,
		enc:    enc,
		pipe: newPipeline(pipelineConfig{
			handle:    handle,
			enc:       enc,
			codec:     h.codec,
			channels:  d.Channels,
			frameSize: d.FrameSize,
			tap:       tap,
			recording: func() bool { return h.machine.State() == StateRecording },
			metrics:   h.metrics,
		}),
	}
	h.mu.Lock()
	h.info = &info
	h.mu.Unlock()

	h.metrics.SessionsStarted.Add(ctx, 1)
	h.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("recording started",
		"session_id", info.SessionID,
		"tab", msg.TabSelector,
		"format", format.String(),
		"bitrate_kbps", bitrate,
		"filename", info.Filename,
		"monitor", info.Monitor,
	)
	return message.Ack{OK: true, State: StateRecording.String()}
}

func (h *Host) onChunk(ctx context.Context, c audio.Chunk) {
	s := h.sess
	if s == nil {
		return
	}
	if err := s.pipe.push(ctx, c); err != nil {
		h.fail(ctx, err)
	}
}

// drain releases the capture and feeds the chunks still queued on the handle
// through the pipeline, so audio captured before a stop is encoded. Releasing
// first ends the stream and the queue can no longer grow. It must run while
// the machine is still Recording.
func (h *Host) drain(ctx context.Context) {
	s := h.sess
	if s == nil {
		return
	}
	// finalize reports a release error.
	_ = s.pipe.release()
	for h.sess == s {
		select {
		case c := <-s.handle.Chunks():
			h.onChunk(ctx, c)
		default:
			return
		}
	}
}

// onEnded handles the capture stream stopping outside user control. Chunks
// still queued on the handle are processed first.
func (h *Host) onEnded(ctx context.Context) {
	s := h.sess
	if s == nil {
		return
	}
	h.drain(ctx)
	if h.sess == nil {
		return
	}
	if _, err := h.machine.Stop(); err != nil {
		return
	}
	observe.Logger(ctx).Info("capture stream ended, finalizing", "session_id", s.info.SessionID)
	h.finalize(ctx)
}

// finalize runs the stop path once the machine is Finalizing: release the
// capture, drain and flush the encoder, join the chunks, hand the file to the
// download sink and report the outcome.
func (h *Host) finalize(ctx context.Context) {
	s := h.sess
	start := time.Now()
	ctx, span, log := observe.StartSessionSpan(ctx, "recorder.finalize", s.info.SessionID, h.codec)
	defer span.End()
	span.SetAttributes(observe.AttrFilename.String(s.info.Filename))

	if err := s.pipe.release(); err != nil {
		log.Warn("recorder: release failed", "err", err)
	}

	data, err := s.pipe.finish(ctx)
	var id string
	if err == nil {
		id, err = h.sink.Save(ctx, download.File{
			Name:     s.info.Filename,
			MIMEType: s.enc.MIMEType(),
			Data:     data,
		})
	}
	if _, ferr := h.machine.Finish(err); ferr != nil {
		log.Error("recorder: finish", "err", ferr)
	}
	h.end(ctx, s)

	status := observe.StatusSaved
	msg := message.Message{
		Kind:       message.KindSaved,
		SessionID:  s.info.SessionID,
		Filename:   h.savedName(id, s.info.Filename),
		DownloadID: id,
	}
	if err != nil {
		status = observe.StatusError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		msg = message.Message{Kind: message.KindError, SessionID: s.info.SessionID, Text: err.Error()}
		log.Error("recording failed", "err", err)
	} else {
		span.SetAttributes(attribute.Int("bytes", len(data)))
		log.Info("recording saved",
			"filename", msg.Filename,
			"download_id", id,
			"bytes", len(data),
			"frames", s.pipe.sink.Frames(),
		)
	}
	h.metrics.RecordSessionFinished(ctx, status, time.Since(start))
	h.report(ctx, msg)
}

// savedName returns the name the sink stored the file under. Sinks that
// uniquify names ("t (1).mp3") report it through [download.Locator]; for the
// others the suggested name is the stored name.
func (h *Host) savedName(id, suggested string) string {
	if l, ok := h.sink.(download.Locator); ok {
		if p, ok := l.Locate(id); ok {
			return filepath.Base(p)
		}
	}
	return suggested
}

// fail aborts a running session after a capture or encode failure.
func (h *Host) fail(ctx context.Context, cause error) {
	s := h.sess
	ctx, span, log := observe.StartSessionSpan(ctx, "recorder.abort", s.info.SessionID, h.codec)
	defer span.End()
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	if _, err := h.machine.Fail(); err != nil {
		log.Error("recorder: fail", "err", err)
	}
	if err := s.pipe.release(); err != nil {
		log.Warn("recorder: release failed", "err", err)
	}
	h.end(ctx, s)
	log.Error("recording aborted", "err", cause)
	h.metrics.RecordSessionFinished(ctx, observe.StatusError, 0)
	h.report(ctx, message.Message{Kind: message.KindError, SessionID: s.info.SessionID, Text: cause.Error()})
}

// end drops the session and its encoder. The machine is Idle or Error here.
func (h *Host) end(ctx context.Context, s *session) {
	if err := s.enc.Close(); err != nil {
		slog.Warn("recorder: close encoder", "session_id", s.info.SessionID, "err", err)
	}
	if n := s.pipe.dropped(); n > 0 {
		h.metrics.DroppedChunks.Add(ctx, int64(n))
		slog.Warn("capture chunks dropped", "session_id", s.info.SessionID, "count", n)
	}
	h.metrics.ActiveSessions.Add(ctx, -1)
	h.sess = nil
	h.mu.Lock()
	h.info = nil
	h.mu.Unlock()
}

// report sends the terminal notification and then makes the machine ready
// for the next session.
func (h *Host) report(ctx context.Context, msg message.Message) {
	if ack := h.notify.Deliver(ctx, msg); !ack.OK {
		slog.Warn("recorder: notification not acknowledged", "kind", msg.Kind, "session_id", msg.SessionID, "err", ack.Error)
	}
	if _, err := h.machine.Reset(); err != nil {
		slog.Error("recorder: reset", "err", err)
	}
}

// shutdown finalizes a running session when the host stops so the audio
// recorded so far is not lost.
func (h *Host) shutdown(ctx context.Context) {
	if h.sess == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if h.machine.State() == StateRecording {
		h.drain(ctx)
	}
	if _, err := h.machine.Stop(); err != nil {
		return
	}
	slog.Info("host stopping, finalizing running recording", "session_id", h.sess.info.SessionID)
	h.finalize(ctx)
}
