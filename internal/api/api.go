// Package api is the HTTP control surface of tabrec.
//
// Routes:
//
//	POST /api/v1/recording/start   start a recording ({"tab","bitrate_kbps","filename","monitor"})
//	POST /api/v1/recording/stop    stop and save the running recording
//	GET  /api/v1/recording         persisted state plus the live phase
//	GET  /api/v1/events            WebSocket stream of STATE, SAVED and ERROR events
//	GET  /api/v1/tabs              tabs connected through the capture hub
//	GET  /api/v1/downloads/{id}    a saved recording, when the sink serves files
//
// Errors are returned as {"error": "..."} with a status code derived from the
// coordinator's sentinel errors.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/tabrec/internal/coordinator"
	"github.com/MrWong99/tabrec/internal/observe"
	"github.com/MrWong99/tabrec/internal/recorder"
	"github.com/MrWong99/tabrec/pkg/capture/wscapture"
	"github.com/MrWong99/tabrec/pkg/download"
	"github.com/MrWong99/tabrec/pkg/statestore"
)

// maxBodyBytes caps request bodies; start requests are tiny.
const maxBodyBytes = 1 << 16

const eventWriteTimeout = 5 * time.Second

// Controller is the coordinator surface the API needs.
// [*coordinator.Coordinator] implements it.
type Controller interface {
	Start(ctx context.Context, req coordinator.StartRequest) error
	Stop(ctx context.Context) error
	Status(ctx context.Context) (statestore.State, error)
	Phase() coordinator.Phase
	Subscribe(buffer int) (<-chan coordinator.Event, func())
}

// SessionInfo reports the running session. [*recorder.Host] implements it.
type SessionInfo interface {
	Info() (recorder.Info, bool)
}

// TabLister lists connected tabs. [*wscapture.Hub] implements it.
type TabLister interface {
	Tabs() []wscapture.TabInfo
}

// Status is the body of GET /api/v1/recording and of successful start and
// stop responses.
type Status struct {
	statestore.State
	Phase   coordinator.Phase `json:"phase"`
	Session *recorder.Info    `json:"session,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Option is a functional option for [New].
type Option func(*Server)

// WithSessionInfo adds the running session to status responses.
func WithSessionInfo(si SessionInfo) Option {
	return func(s *Server) { s.info = si }
}

// WithTabs enables GET /api/v1/tabs.
func WithTabs(tl TabLister) Option {
	return func(s *Server) { s.tabs = tl }
}

// WithDownloads enables GET /api/v1/downloads/{id}.
func WithDownloads(l download.Locator) Option {
	return func(s *Server) { s.files = l }
}

// WithAcceptOptions overrides the WebSocket accept options of the events
// stream (e.g., allowed origins for a browser extension).
func WithAcceptOptions(o *websocket.AcceptOptions) Option {
	return func(s *Server) { s.acceptOpts = o }
}

// Server serves the control API.
type Server struct {
	ctl        Controller
	info       SessionInfo
	tabs       TabLister
	files      download.Locator
	acceptOpts *websocket.AcceptOptions
}

// New creates a Server around ctl.
func New(ctl Controller, opts ...Option) *Server {
	s := &Server{ctl: ctl}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/recording/start", s.handleStart)
	mux.HandleFunc("POST /api/v1/recording/stop", s.handleStop)
	mux.HandleFunc("GET /api/v1/recording", s.handleStatus)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/tabs", s.handleTabs)
	mux.HandleFunc("GET /api/v1/downloads/{id}", s.handleDownload)
}

// Handler returns the routes on their own mux. The application mounts them
// with [Server.Register] behind its shared middleware instead.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req coordinator.StartRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.BitrateKbps < 0 {
		writeError(w, http.StatusBadRequest, errors.New("bitrate_kbps must not be negative"))
		return
	}

	if err := s.ctl.Start(r.Context(), req); err != nil {
		observe.Logger(r.Context()).Info("start rejected", "tab", req.TabSelector, "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	s.writeStatus(w, r)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Stop(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.writeStatus(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, r)
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctl.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	body := Status{State: st, Phase: s.ctl.Phase()}
	if s.info != nil {
		if info, ok := s.info.Info(); ok {
			body.Session = &info
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, s.acceptOpts)
	if err != nil {
		observe.Logger(r.Context()).Warn("api: events accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	events, unsubscribe := s.ctl.Subscribe(coordinator.DefaultEventBuffer)
	defer unsubscribe()

	// Late joiners see where things stand before the first transition.
	hello := coordinator.Event{Type: coordinator.EventState, Phase: s.ctl.Phase(), Time: time.Now().UTC()}
	if err := writeEvent(ctx, conn, hello); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "")
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				observe.Logger(r.Context()).Debug("api: events write failed", "err", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev coordinator.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}

func (s *Server) handleTabs(w http.ResponseWriter, _ *http.Request) {
	tabs := []wscapture.TabInfo{}
	if s.tabs != nil {
		tabs = append(tabs, s.tabs.Tabs()...)
	}
	writeJSON(w, http.StatusOK, tabs)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		writeError(w, http.StatusNotFound, errors.New("downloads are not served by this sink"))
		return
	}
	path, ok := s.files.Locate(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown download id"))
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// statusFor maps coordinator errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, coordinator.ErrStartRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("api: encode response failed", "err", err)
	}
}
