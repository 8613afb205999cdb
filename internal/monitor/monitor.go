// Package monitor lets a listener hear the tab while it is being recorded.
//
// The [Broadcaster] is the recorder's monitor sink. Listeners connect with a
// WebSocket to GET /monitor. While a monitored session runs they receive a
// text header
//
//	{"type":"format","session_id":"…","sample_rate":48000,"channels":2}
//
// followed by binary messages of raw interleaved little-endian PCM16 taken
// from the captured stream before any processing, and {"type":"end"} when
// the session is released. Slow listeners lose audio instead of stalling the
// pipeline.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/tabrec/internal/observe"
	"github.com/MrWong99/tabrec/internal/recorder"
	"github.com/MrWong99/tabrec/pkg/audio"
)

const (
	defaultQueue = 32
	writeTimeout = 5 * time.Second
)

// Header is the text message announcing a session's format.
type Header struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// Option is a functional option for [New].
type Option func(*Broadcaster)

// WithQueue sets the per-listener message queue depth.
func WithQueue(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.queue = n
		}
	}
}

// WithAcceptOptions overrides the WebSocket accept options.
func WithAcceptOptions(o *websocket.AcceptOptions) Option {
	return func(b *Broadcaster) { b.acceptOpts = o }
}

// WithMetrics records listener counts on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Broadcaster) { b.metrics = m }
}

// Broadcaster fans the raw stream out to connected listeners.
type Broadcaster struct {
	queue      int
	acceptOpts *websocket.AcceptOptions
	metrics    *observe.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
	header  *Header
}

var (
	_ recorder.Monitor = (*Broadcaster)(nil)
	_ http.Handler     = (*Broadcaster)(nil)
)

type frame struct {
	typ  websocket.MessageType
	data []byte
}

type client struct {
	out     chan frame
	dropped int
}

// New creates a Broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		queue:   defaultQueue,
		clients: make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Clients returns the number of connected listeners.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// ServeHTTP accepts a listener.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, b.acceptOpts)
	if err != nil {
		slog.Warn("monitor: accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// Listeners never send anything; CloseRead handles pings and closes.
	ctx := conn.CloseRead(r.Context())

	c := &client{out: make(chan frame, b.queue)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	if b.header != nil {
		c.out <- textFrame(*b.header)
	}
	b.mu.Unlock()
	b.trackClients(ctx, 1)
	slog.Debug("monitor listener connected", "remote", r.RemoteAddr)

	defer func() {
		b.mu.Lock()
		delete(b.clients, c)
		b.mu.Unlock()
		b.trackClients(context.WithoutCancel(ctx), -1)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, f.typ, f.data)
			cancel()
			if err != nil {
				slog.Debug("monitor: write failed", "err", err)
				return
			}
		}
	}
}

func (b *Broadcaster) trackClients(ctx context.Context, delta int64) {
	if b.metrics != nil {
		b.metrics.MonitorClients.Add(ctx, delta)
	}
}

// Open implements [recorder.Monitor].
func (b *Broadcaster) Open(sessionID string, f audio.Format) recorder.Tap {
	h := Header{Type: "format", SessionID: sessionID, SampleRate: f.SampleRate, Channels: min(max(f.Channels, 1), 2)}
	b.mu.Lock()
	b.header = &h
	b.mu.Unlock()
	b.broadcast(textFrame(h))
	return &tap{b: b, channels: h.Channels}
}

func (b *Broadcaster) broadcast(f frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.out <- f:
		default:
			c.dropped++
			if c.dropped == 1 || c.dropped%100 == 0 {
				slog.Debug("monitor: listener too slow, dropping audio", "dropped", c.dropped)
			}
		}
	}
}

func textFrame(h Header) frame {
	data, _ := json.Marshal(h)
	return frame{typ: websocket.MessageText, data: data}
}

type tap struct {
	b        *Broadcaster
	channels int
	once     sync.Once
}

// Write implements [recorder.Tap].
func (t *tap) Write(c audio.Chunk) {
	if c.Len() == 0 {
		return
	}
	left, right := audio.StereoPair(c.Samples)
	l := audio.FloatToPCM16(nil, left)
	var r []int16
	if t.channels == 2 {
		r = audio.FloatToPCM16(nil, right)
	}
	t.b.broadcast(frame{typ: websocket.MessageBinary, data: audio.Int16sToBytes(audio.Interleave16(l, r))})
}

// Close implements [recorder.Tap].
func (t *tap) Close() {
	t.once.Do(func() {
		t.b.mu.Lock()
		t.b.header = nil
		t.b.mu.Unlock()
		t.b.broadcast(textFrame(Header{Type: "end"}))
	})
}
