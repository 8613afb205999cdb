// Package app wires all tabrec subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects the
// capture host, the coordinator and the HTTP surface, Run serves until the
// context is cancelled, and Shutdown releases the backends in order.
//
// Backends (capture source, encoder factory, download sink, state store)
// come from cmd/tabrec via the config registry. Tests pass mocks instead.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tabrec/internal/api"
	"github.com/MrWong99/tabrec/internal/config"
	"github.com/MrWong99/tabrec/internal/coordinator"
	"github.com/MrWong99/tabrec/internal/health"
	"github.com/MrWong99/tabrec/internal/message"
	"github.com/MrWong99/tabrec/internal/monitor"
	"github.com/MrWong99/tabrec/internal/observe"
	"github.com/MrWong99/tabrec/internal/recorder"
	"github.com/MrWong99/tabrec/pkg/capture"
	"github.com/MrWong99/tabrec/pkg/download"
	"github.com/MrWong99/tabrec/pkg/statestore"
)

// shutdownGrace bounds how long in-flight HTTP requests may take once the
// server is asked to stop.
const shutdownGrace = 10 * time.Second

// Backends holds one value per backend slot. Populated by cmd/tabrec via the
// config registry.
type Backends struct {
	Source     capture.Source
	NewEncoder recorder.EncoderFactory
	Sink       download.Sink
	Store      statestore.Store
}

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	backends *Backends

	metrics  *observe.Metrics
	levelVar *slog.LevelVar

	host    *recorder.Host
	coord   *coordinator.Coordinator
	monitor *monitor.Broadcaster
	handler http.Handler

	mu   sync.Mutex
	addr net.Addr

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.ApplyConfig] change the log level at runtime.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
func New(cfg *config.Config, backends *Backends, opts ...Option) (*App, error) {
	if backends == nil || backends.Source == nil || backends.NewEncoder == nil ||
		backends.Sink == nil || backends.Store == nil {
		return nil, errors.New("app: source, encoder, sink and store are required")
	}
	a := &App{cfg: cfg, backends: backends}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	accept := acceptOptions(cfg.Server.AllowedOrigins)
	a.monitor = monitor.New(monitor.WithAcceptOptions(accept), monitor.WithMetrics(a.metrics))

	// The host reports SAVED and ERROR to the coordinator, which in turn
	// forwards START and STOP to the host.
	var coord *coordinator.Coordinator
	notify := message.EndpointFunc(func(ctx context.Context, m message.Message) message.Ack {
		return coord.Deliver(ctx, m)
	})
	a.host = recorder.NewHost(recorder.HostConfig{
		Source:     backends.Source,
		NewEncoder: backends.NewEncoder,
		Codec:      cfg.Recording.Codec,
		Sink:       backends.Sink,
		Notify:     notify,
		Monitor:    a.monitor,
		Defaults:   defaultsFrom(cfg.Recording),
		Metrics:    a.metrics,
	})
	coord = coordinator.New(coordinator.Config{Host: a.host, Store: backends.Store})
	a.coord = coord

	a.handler = a.buildHandler(accept)
	a.closers = append(a.closers, backends.Store.Close)
	return a, nil
}

func (a *App) buildHandler(accept *websocket.AcceptOptions) http.Handler {
	mux := http.NewServeMux()

	apiOpts := []api.Option{
		api.WithSessionInfo(a.host),
		api.WithAcceptOptions(accept),
	}
	if tl, ok := a.backends.Source.(api.TabLister); ok {
		apiOpts = append(apiOpts, api.WithTabs(tl))
	}
	if l, ok := a.backends.Sink.(download.Locator); ok {
		apiOpts = append(apiOpts, api.WithDownloads(l))
	}
	api.New(a.coord, apiOpts...).Register(mux)

	// The websocket capture hub is the browser extension's endpoint.
	if h, ok := a.backends.Source.(http.Handler); ok {
		mux.Handle("GET /capture", h)
	}
	mux.Handle("GET /monitor", a.monitor)
	mux.Handle("GET /metrics", promhttp.Handler())

	var checkers []health.Checker
	if c, ok := health.ForStore(a.backends.Store); ok {
		checkers = append(checkers, c)
	}
	if c, ok := health.ForCapture(a.backends.Source); ok {
		checkers = append(checkers, c)
	}
	health.New(checkers...).Register(mux)

	return observe.Middleware(a.metrics)(mux)
}

func acceptOptions(origins []string) *websocket.AcceptOptions {
	if len(origins) == 0 {
		return nil
	}
	return &websocket.AcceptOptions{OriginPatterns: origins}
}

func defaultsFrom(rec config.RecordingConfig) recorder.Defaults {
	return recorder.Defaults{
		Channels:    rec.Channels,
		FrameSize:   rec.FrameSize,
		BitrateKbps: rec.DefaultBitrateKbps,
		Filename:    rec.DefaultFilename,
		Monitor:     rec.Monitor,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler { return a.handler }

// Coordinator returns the session coordinator.
func (a *App) Coordinator() *coordinator.Coordinator { return a.coord }

// Host returns the capture host.
func (a *App) Host() *recorder.Host { return a.host }

// Addr returns the listening address once [App.Run] has bound it.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and runs the host and coordinator loops until ctx is
// cancelled. A recording that is still running is finalized before Run
// returns, and its outcome still reaches the coordinator.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The coordinator outlives the host so the final SAVED or ERROR of a
	// session finalized during shutdown is still persisted.
	coordCtx, stopCoord := context.WithCancel(context.WithoutCancel(ctx))
	defer stopCoord()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.coord.Run(coordCtx)
	})
	g.Go(func() error {
		defer stopCoord()
		return a.host.Run(gctx)
	})
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("app running",
		"addr", ln.Addr().String(),
		"codec", a.cfg.Recording.Codec,
		"capture", a.cfg.Capture.Backend,
		"download", a.cfg.Download.Backend,
		"state", a.cfg.State.Backend,
	)
	return g.Wait()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the settings of new that can change at runtime. It is
// the onChange callback of a [config.Watcher].
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.RecordingChanged {
		a.host.SetDefaults(defaultsFrom(d.NewRecording))
		slog.Info("recording defaults changed; applied to the next session",
			"bitrate_kbps", d.NewRecording.DefaultBitrateKbps,
			"filename", d.NewRecording.DefaultFilename,
			"channels", d.NewRecording.Channels,
			"monitor", d.NewRecording.Monitor,
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "settings", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases backend resources. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			var errs []error
			for _, c := range a.closers {
				if err := c(); err != nil {
					errs = append(errs, err)
				}
			}
			done <- errors.Join(errs...)
		}()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = fmt.Errorf("app: shutdown: %w", ctx.Err())
		}
	})
	return err
}
