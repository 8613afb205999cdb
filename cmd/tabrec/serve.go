package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tabrec/internal/app"
	"github.com/MrWong99/tabrec/internal/config"
	"github.com/MrWong99/tabrec/internal/observe"
)

const defaultConfigPath = "tabrec.yaml"

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recording server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath, cmd.Flags().Changed("config"), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "path to the YAML configuration file")
	return cmd
}

func serve(parent context.Context, configPath string, explicit bool, out io.Writer) error {
	// ── Load configuration ────────────────────────────────────────────────────
	cfg, fromFile, err := loadConfig(configPath, explicit)
	if err != nil {
		return err
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(&level))

	slog.Info("tabrec starting",
		"config", configPath,
		"from_file", fromFile,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion:  version,
		Codec:           cfg.Recording.Codec,
		CaptureBackend:  cfg.Capture.Backend,
		DownloadBackend: cfg.Download.Backend,
		StateBackend:    cfg.State.Backend,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Backends ──────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg, cfg.Server.AllowedOrigins)

	backends, err := buildBackends(ctx, cfg, reg)
	if err != nil {
		return fmt.Errorf("build backends: %w", err)
	}

	printStartupSummary(out, cfg)

	application, err := app.New(cfg, backends, app.WithLevelVar(&level))
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if fromFile {
		w, err := config.NewWatcher(configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

// loadConfig reads path. A missing file at the default path falls back to
// the built-in defaults; a missing file the user named is an error.
func loadConfig(path string, explicit bool) (cfg *config.Config, fromFile bool, err error) {
	cfg, err = config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, os.ErrNotExist) && !explicit:
		return config.Default(), false, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, false, fmt.Errorf("config file %q not found", path)
	default:
		return nil, false, err
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         tabrec — startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Listen addr", cfg.Server.ListenAddr)
	printRow(w, "Codec", fmt.Sprintf("%s / %d kbps", cfg.Recording.Codec, cfg.Recording.DefaultBitrateKbps))
	printRow(w, "Channels", fmt.Sprintf("%d", cfg.Recording.Channels))
	printRow(w, "Capture", cfg.Capture.Backend)
	printRow(w, "Download", cfg.Download.Backend)
	printRow(w, "State", cfg.State.Backend)
	monitor := "(off)"
	if cfg.Recording.Monitor {
		monitor = "always"
	}
	printRow(w, "Monitor", monitor)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printRow(w io.Writer, label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
