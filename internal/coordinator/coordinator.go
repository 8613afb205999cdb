// Package coordinator relays control messages between the control surface
// and the capture host and keeps the durable recording flag.
//
// The [Coordinator] is an actor. It honors at most one START while a session
// is active, forwards STOP to the host that owns the pipeline, persists
// {recording, filename} through a [statestore.Store] and publishes every
// state change and terminal result to subscribed control surfaces. It never
// blocks its own loop on the host: forwarded requests run in goroutines and
// their outcome is posted back to the loop.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/tabrec/internal/message"
	"github.com/MrWong99/tabrec/pkg/statestore"
)

// ErrBusy is returned by [Coordinator.Start] while a session is active.
var ErrBusy = errors.New("coordinator: a recording is already active")

// ErrStartRejected is returned by [Coordinator.Start] when the capture host
// refused to start (capture unavailable, unsupported configuration).
var ErrStartRejected = errors.New("coordinator: start rejected")

// Phase is the coordinator's view of the session.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseStarting  Phase = "starting"
	PhaseRecording Phase = "recording"
	PhaseStopping  Phase = "stopping"
)

// StartRequest is what the control surface sends to begin a recording.
type StartRequest struct {
	TabSelector string `json:"tab,omitempty"`
	BitrateKbps int    `json:"bitrate_kbps,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Monitor     *bool  `json:"monitor,omitempty"`
}

// Config holds the dependencies of a [Coordinator].
type Config struct {
	// Host receives START and STOP. Required.
	Host message.Endpoint

	// Store keeps the durable flag. Required.
	Store statestore.Store
}

type result struct {
	env message.Envelope
	ack message.Ack
	gen uint64
}

// Coordinator is the session relay. Create it with [New] and run it with
// [Coordinator.Run].
type Coordinator struct {
	host    message.Endpoint
	store   statestore.Store
	inbox   *message.Mailbox
	results chan result
	done    chan struct{}

	// Owned by the Run goroutine. gen counts START requests so a late host
	// answer for an older session never changes the current one.
	gen            uint64
	phase          Phase
	current        message.Message
	stopAfterStart bool
	endedEarly     bool

	mu      sync.RWMutex
	live    Phase
	subs    map[uint64]chan Event
	nextSub uint64
}

var _ message.Endpoint = (*Coordinator)(nil)

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		host:    cfg.Host,
		store:   cfg.Store,
		inbox:   message.NewMailbox(16),
		results: make(chan result, 4),
		done:    make(chan struct{}),
		phase:   PhaseIdle,
		live:    PhaseIdle,
		subs:    make(map[uint64]chan Event),
	}
}

// Start asks the capture host to begin a recording and waits for its
// acknowledgement.
func (c *Coordinator) Start(ctx context.Context, req StartRequest) error {
	ack := c.inbox.Deliver(ctx, message.Message{
		Kind:        message.KindStart,
		TabSelector: req.TabSelector,
		BitrateKbps: req.BitrateKbps,
		Filename:    req.Filename,
		Monitor:     req.Monitor,
	})
	switch {
	case ack.OK:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("coordinator: start: %w", ctx.Err())
	case ack.Error == ErrBusy.Error():
		return fmt.Errorf("%w (%s)", ErrBusy, ack.State)
	default:
		return fmt.Errorf("%w: %s", ErrStartRejected, ack.Error)
	}
}

// Stop asks the host to finalize the running recording. It returns after the
// host finished the stop path; the outcome is published as an event. Stop
// without an active session is a no-op.
func (c *Coordinator) Stop(ctx context.Context) error {
	if err := c.inbox.Deliver(ctx, message.Message{Kind: message.KindStop}).Err(); err != nil {
		return fmt.Errorf("coordinator: stop: %w", err)
	}
	return nil
}

// Deliver implements [message.Endpoint]. The capture host reports SAVED and
// ERROR through it.
func (c *Coordinator) Deliver(ctx context.Context, msg message.Message) message.Ack {
	return c.inbox.Deliver(ctx, msg)
}

// Status returns the persisted state without asking the pipeline.
func (c *Coordinator) Status(ctx context.Context) (statestore.State, error) {
	s, err := c.store.Load(ctx)
	if err != nil {
		return statestore.State{}, fmt.Errorf("coordinator: load state: %w", err)
	}
	return s, nil
}

// Phase returns the live phase.
func (c *Coordinator) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.live
}

// Run is the coordinator loop. It clears a stale recording flag left by a
// previous process first, since no host session survives a restart.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.inbox.Close()

	c.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-c.inbox.C():
			c.handle(ctx, env)
		case r := <-c.results:
			c.settle(ctx, r)
		}
	}
}

func (c *Coordinator) reconcile(ctx context.Context) {
	s, err := c.store.Load(ctx)
	if err != nil {
		slog.Warn("coordinator: load state", "err", err)
		return
	}
	if !s.Recording {
		return
	}
	slog.Warn("clearing stale recording flag", "filename", s.Filename, "updated_at", s.UpdatedAt)
	c.persist(ctx, false, s.Filename)
}

func (c *Coordinator) handle(ctx context.Context, env message.Envelope) {
	msg := env.Msg
	switch msg.Kind {
	case message.KindStart:
		if c.phase != PhaseIdle {
			slog.Info("start ignored, recording active", "phase", c.phase)
			env.Reply(message.Ack{OK: false, Error: ErrBusy.Error(), State: string(c.phase)})
			return
		}
		c.gen++
		c.current = msg
		c.stopAfterStart = false
		c.endedEarly = false
		c.setPhase(PhaseStarting)
		c.forward(ctx, env)

	case message.KindStop:
		switch c.phase {
		case PhaseIdle, PhaseStopping:
			env.Reply(message.Ack{OK: true, State: string(c.phase)})
		case PhaseStarting:
			c.stopAfterStart = true
			env.Reply(message.Ack{OK: true, State: string(c.phase)})
		case PhaseRecording:
			c.beginStop(ctx, env)
		}

	case message.KindSaved, message.KindError:
		c.terminal(ctx, msg)
		env.Reply(message.OK())

	default:
		env.Reply(message.Fail(fmt.Errorf("coordinator: unsupported message %q", msg.Kind)))
	}
}

// forward hands env to the host without blocking the loop.
func (c *Coordinator) forward(ctx context.Context, env message.Envelope) {
	gen := c.gen
	go func() {
		ack := c.host.Deliver(ctx, env.Msg)
		select {
		case c.results <- result{env: env, ack: ack, gen: gen}:
		case <-c.done:
			env.Reply(ack)
		}
	}()
}

func (c *Coordinator) beginStop(ctx context.Context, env message.Envelope) {
	c.setPhase(PhaseStopping)
	// The flag stays set until the host reports SAVED or ERROR.
	c.persist(ctx, true, c.current.Filename)
	c.publish(Event{Type: EventState, Phase: PhaseStopping, Filename: c.current.Filename, Text: "stopping and saving…"})
	c.forward(ctx, env)
}

// settle applies the host's answer to a forwarded request.
func (c *Coordinator) settle(ctx context.Context, r result) {
	defer r.env.Reply(r.ack)
	if r.gen != c.gen {
		return
	}

	switch r.env.Msg.Kind {
	case message.KindStart:
		if !r.ack.OK {
			c.setPhase(PhaseIdle)
			slog.Warn("start rejected by capture host", "err", r.ack.Error)
			c.publish(Event{Type: EventError, Phase: PhaseIdle, Text: "error: " + r.ack.Error})
			return
		}
		if c.endedEarly {
			// The session already reported its terminal result.
			return
		}
		c.setPhase(PhaseRecording)
		c.persist(ctx, true, c.current.Filename)
		c.publish(Event{
			Type:        EventState,
			Phase:       PhaseRecording,
			Filename:    c.current.Filename,
			BitrateKbps: c.current.BitrateKbps,
			Text:        recordingText(c.current.BitrateKbps),
		})
		if c.stopAfterStart {
			c.stopAfterStart = false
			c.beginStop(ctx, message.Envelope{Msg: message.Message{Kind: message.KindStop}})
		}

	case message.KindStop:
		if !r.ack.OK {
			slog.Warn("stop not acknowledged by capture host", "err", r.ack.Error)
			return
		}
		if c.phase == PhaseStopping {
			// The host had nothing to finalize.
			c.setPhase(PhaseIdle)
			c.persist(ctx, false, c.current.Filename)
			c.publish(Event{Type: EventState, Phase: PhaseIdle, Text: "idle"})
		}
	}
}

// terminal handles SAVED and ERROR from the host.
func (c *Coordinator) terminal(ctx context.Context, msg message.Message) {
	if c.phase == PhaseStarting {
		c.endedEarly = true
	}
	c.stopAfterStart = false
	c.setPhase(PhaseIdle)

	filename := msg.Filename
	if filename == "" {
		filename = c.current.Filename
	}
	c.persist(ctx, false, filename)

	ev := Event{Type: EventSaved, Phase: PhaseIdle, SessionID: msg.SessionID, Filename: filename, DownloadID: msg.DownloadID}
	if msg.Kind == message.KindError {
		ev.Type = EventError
		ev.Text = "error: " + msg.Text
		slog.Warn("recording failed", "session_id", msg.SessionID, "err", msg.Text)
	} else {
		ev.Text = "saved: " + filename
		slog.Info("recording saved", "session_id", msg.SessionID, "filename", filename, "download_id", msg.DownloadID)
	}
	c.publish(ev)
}

func (c *Coordinator) persist(ctx context.Context, recording bool, filename string) {
	s := statestore.State{Recording: recording, Filename: filename, UpdatedAt: time.Now().UTC()}
	if err := c.store.Save(ctx, s); err != nil {
		slog.Error("coordinator: persist state", "recording", recording, "err", err)
	}
}

func (c *Coordinator) setPhase(p Phase) {
	c.phase = p
	c.mu.Lock()
	c.live = p
	c.mu.Unlock()
}

func recordingText(kbps int) string {
	if kbps <= 0 {
		return "recording…"
	}
	return fmt.Sprintf("recording… (%d kbps)", kbps)
}
