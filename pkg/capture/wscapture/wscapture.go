// Package wscapture implements [capture.Source] for the browser extension.
//
// The extension opens one WebSocket per tab at GET /capture?tab=ID and
// announces itself with a hello message. When the recorder acquires the tab
// the hub sends {"type":"start"}; the extension asks the browser for the
// capture grant and answers with granted or denied, then streams binary
// messages of little-endian float32 planar PCM (all channel-0 samples, then
// all channel-1 samples). {"type":"stop"} ends the capture. Closing the
// socket or sending {"type":"ended"} signals that the tab's stream ended.
//
// Text messages (client → hub):
//
//	{"type":"hello","tab":"42","title":"…","active":true,"sample_rate":48000,"channels":2}
//	{"type":"focus","active":false}
//	{"type":"granted"}
//	{"type":"denied","reason":"permission dismissed"}
//	{"type":"ended"}
package wscapture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/tabrec/pkg/audio"
	"github.com/MrWong99/tabrec/pkg/capture"
)

const (
	defaultGrantTimeout = 10 * time.Second
	helloTimeout        = 5 * time.Second
	controlTimeout      = 2 * time.Second
	readLimit           = 4 << 20
)

// Message types exchanged with the extension.
const (
	TypeHello   = "hello"
	TypeFocus   = "focus"
	TypeGranted = "granted"
	TypeDenied  = "denied"
	TypeEnded   = "ended"
	TypeStart   = "start"
	TypeStop    = "stop"
)

// Message is a text control message.
type Message struct {
	Type       string `json:"type"`
	Tab        string `json:"tab,omitempty"`
	Title      string `json:"title,omitempty"`
	Active     *bool  `json:"active,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// TabInfo describes a connected tab.
type TabInfo struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Active    bool         `json:"active"`
	Format    audio.Format `json:"format"`
	Capturing bool         `json:"capturing"`
}

// Option is a functional option for [NewHub].
type Option func(*Hub)

// WithGrantTimeout bounds how long Acquire waits for the extension to answer
// a start request.
func WithGrantTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.grantTimeout = d
		}
	}
}

// WithBuffer sets the per-stream chunk queue depth.
func WithBuffer(n int) Option {
	return func(h *Hub) { h.buffer = n }
}

// WithAcceptOptions overrides the WebSocket accept options (e.g., allowed
// origins for the extension).
func WithAcceptOptions(o *websocket.AcceptOptions) Option {
	return func(h *Hub) { h.acceptOpts = o }
}

// Hub tracks connected tabs and hands out capture streams. It is both the
// HTTP handler for the extension and the [capture.Source] for the recorder.
type Hub struct {
	grantTimeout time.Duration
	buffer       int
	acceptOpts   *websocket.AcceptOptions

	mu   sync.Mutex
	tabs map[string]*tab
}

var (
	_ capture.Source  = (*Hub)(nil)
	_ capture.Checker = (*Hub)(nil)
	_ http.Handler    = (*Hub)(nil)
)

// NewHub creates an empty Hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		grantTimeout: defaultGrantTimeout,
		buffer:       capture.DefaultStreamBuffer,
		tabs:         make(map[string]*tab),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

type grantResult struct {
	ok     bool
	reason string
}

type tab struct {
	id     string
	title  string
	active bool
	format audio.Format
	conn   *websocket.Conn
	closed chan struct{}

	// Guarded by Hub.mu.
	pending chan grantResult
	stream  *capture.Stream
	started time.Time
}

func (t *tab) send(ctx context.Context, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()
	return t.conn.Write(ctx, websocket.MessageText, data)
}

// Tabs returns the connected tabs sorted by ID.
func (h *Hub) Tabs() []TabInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]TabInfo, 0, len(h.tabs))
	for _, t := range h.tabs {
		out = append(out, TabInfo{
			ID:        t.id,
			Title:     t.title,
			Active:    t.active,
			Format:    t.format,
			Capturing: t.stream != nil,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Check implements [capture.Checker]. It fails while no tab is connected.
func (h *Hub) Check(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.tabs) == 0 {
		return errors.New("wscapture: no tab connected")
	}
	return nil
}

// Acquire implements [capture.Source]. An empty selector picks the active
// tab. The tab must be active and must grant the capture within the grant
// timeout.
func (h *Hub) Acquire(ctx context.Context, req capture.Request) (capture.Handle, error) {
	h.mu.Lock()
	t, err := h.selectLocked(req.TabSelector)
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}
	if t.stream != nil || t.pending != nil {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: tab %s is already being captured", capture.ErrCaptureUnavailable, t.id)
	}
	pending := make(chan grantResult, 1)
	t.pending = pending
	h.mu.Unlock()

	clearPending := func() {
		h.mu.Lock()
		if t.pending == pending {
			t.pending = nil
		}
		h.mu.Unlock()
		// A grant that raced with the timeout must be revoked.
		select {
		case res := <-pending:
			if res.ok {
				_ = t.send(context.Background(), Message{Type: TypeStop})
			}
		default:
		}
	}

	if err := t.send(ctx, Message{Type: TypeStart}); err != nil {
		clearPending()
		return nil, fmt.Errorf("%w: tab %s: send start: %w", capture.ErrCaptureUnavailable, t.id, err)
	}

	timer := time.NewTimer(h.grantTimeout)
	defer timer.Stop()

	select {
	case res := <-pending:
		if !res.ok {
			return nil, fmt.Errorf("%w: tab %s denied capture: %s", capture.ErrCaptureUnavailable, t.id, res.reason)
		}
	case <-t.closed:
		clearPending()
		return nil, fmt.Errorf("%w: tab %s disconnected", capture.ErrCaptureUnavailable, t.id)
	case <-timer.C:
		clearPending()
		return nil, fmt.Errorf("%w: tab %s did not answer within %s", capture.ErrCaptureUnavailable, t.id, h.grantTimeout)
	case <-ctx.Done():
		clearPending()
		return nil, fmt.Errorf("%w: %w", capture.ErrCaptureUnavailable, ctx.Err())
	}

	var s *capture.Stream
	s = capture.NewStream(t.format, h.buffer, func() error {
		h.mu.Lock()
		owned := t.stream == s
		if owned {
			t.stream = nil
		}
		h.mu.Unlock()
		if !owned {
			return nil
		}
		select {
		case <-t.closed:
			return nil
		default:
		}
		if err := t.send(context.Background(), Message{Type: TypeStop}); err != nil {
			return fmt.Errorf("wscapture: tab %s: send stop: %w", t.id, err)
		}
		return nil
	})

	h.mu.Lock()
	select {
	case <-t.closed:
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: tab %s disconnected", capture.ErrCaptureUnavailable, t.id)
	default:
	}
	t.stream = s
	t.started = time.Now()
	h.mu.Unlock()

	slog.Info("tab capture granted", "tab", t.id, "title", t.title, "format", t.format.String())
	return s, nil
}

func (h *Hub) selectLocked(selector string) (*tab, error) {
	if selector == "" {
		var active []*tab
		for _, t := range h.tabs {
			if t.active {
				active = append(active, t)
			}
		}
		switch len(active) {
		case 0:
			if len(h.tabs) == 0 {
				return nil, fmt.Errorf("%w: no tab connected", capture.ErrCaptureUnavailable)
			}
			return nil, fmt.Errorf("%w: no active tab", capture.ErrCaptureUnavailable)
		case 1:
			return active[0], nil
		default:
			sort.Slice(active, func(i, j int) bool { return active[i].id < active[j].id })
			return active[0], nil
		}
	}
	t, ok := h.tabs[selector]
	if !ok {
		return nil, fmt.Errorf("%w: tab %s is not connected", capture.ErrCaptureUnavailable, selector)
	}
	if !t.active {
		return nil, fmt.Errorf("%w: tab %s is not the active tab", capture.ErrCaptureUnavailable, selector)
	}
	return t, nil
}

// ServeHTTP accepts an extension connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.acceptOpts)
	if err != nil {
		slog.Warn("wscapture: accept failed", "err", err)
		return
	}
	conn.SetReadLimit(readLimit)
	ctx := r.Context()

	t, err := h.handshake(ctx, conn, r.URL.Query().Get("tab"))
	if err != nil {
		slog.Warn("wscapture: handshake failed", "err", err)
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	h.register(t)
	defer h.unregister(t)

	slog.Info("tab connected", "tab", t.id, "title", t.title, "active", t.active, "format", t.format.String())
	err = h.readLoop(ctx, t)
	status := websocket.CloseStatus(err)
	if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
		slog.Debug("tab connection ended", "tab", t.id, "err", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) handshake(ctx context.Context, conn *websocket.Conn, queryTab string) (*tab, error) {
	hctx, cancel := context.WithTimeout(ctx, helloTimeout)
	defer cancel()
	typ, data, err := conn.Read(hctx)
	if err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if typ != websocket.MessageText {
		return nil, errors.New("expected hello text message")
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode hello: %w", err)
	}
	if m.Type != TypeHello {
		return nil, fmt.Errorf("expected hello, got %q", m.Type)
	}
	id := m.Tab
	if id == "" {
		id = queryTab
	}
	if id == "" {
		return nil, errors.New("hello without tab id")
	}
	if m.SampleRate <= 0 || m.Channels <= 0 {
		return nil, fmt.Errorf("invalid stream format %dHz/%dch", m.SampleRate, m.Channels)
	}
	return &tab{
		id:     id,
		title:  m.Title,
		active: m.Active != nil && *m.Active,
		format: audio.Format{SampleRate: m.SampleRate, Channels: m.Channels},
		conn:   conn,
		closed: make(chan struct{}),
	}, nil
}

func (h *Hub) register(t *tab) {
	h.mu.Lock()
	old := h.tabs[t.id]
	h.tabs[t.id] = t
	h.mu.Unlock()
	if old != nil {
		old.conn.Close(websocket.StatusPolicyViolation, "replaced by a newer connection")
	}
}

func (h *Hub) unregister(t *tab) {
	h.mu.Lock()
	if h.tabs[t.id] == t {
		delete(h.tabs, t.id)
	}
	s := t.stream
	t.stream = nil
	pending := t.pending
	t.pending = nil
	close(t.closed)
	h.mu.Unlock()

	if pending != nil {
		pending <- grantResult{reason: "disconnected"}
	}
	if s != nil {
		slog.Info("tab stream ended", "tab", t.id, "reason", "disconnected")
		s.End()
	}
}

func (h *Hub) readLoop(ctx context.Context, t *tab) error {
	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ == websocket.MessageBinary {
			h.handleAudio(t, data)
			continue
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			slog.Warn("wscapture: bad control message", "tab", t.id, "err", err)
			continue
		}
		h.handleControl(t, m)
	}
}

func (h *Hub) handleControl(t *tab, m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch m.Type {
	case TypeFocus:
		if m.Active != nil {
			t.active = *m.Active
		}
	case TypeGranted, TypeDenied:
		if t.pending == nil {
			return
		}
		t.pending <- grantResult{ok: m.Type == TypeGranted, reason: m.Reason}
		t.pending = nil
	case TypeEnded:
		if t.stream != nil {
			slog.Info("tab stream ended", "tab", t.id, "reason", "track ended")
			t.stream.End()
			t.stream = nil
		}
	default:
		slog.Debug("wscapture: ignoring control message", "tab", t.id, "type", m.Type)
	}
}

func (h *Hub) handleAudio(t *tab, data []byte) {
	h.mu.Lock()
	s := t.stream
	started := t.started
	h.mu.Unlock()
	if s == nil {
		return
	}
	samples, err := audio.DecodePlanarFloat32(data, t.format.Channels)
	if err != nil {
		slog.Warn("wscapture: dropping malformed audio message", "tab", t.id, "err", err)
		return
	}
	s.Push(audio.Chunk{Samples: samples, Timestamp: time.Since(started)})
}
