package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tabrec/internal/api"
	"github.com/MrWong99/tabrec/internal/coordinator"
)

func newStartCmd() *cobra.Command {
	var (
		req     coordinator.StartRequest
		monitor bool
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start recording a tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("monitor") {
				req.Monitor = &monitor
			}
			st, err := clientFromFlags().start(cmd.Context(), req)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&req.BitrateKbps, "bitrate", 0, "target bitrate in kbps (server default when 0)")
	f.StringVar(&req.Filename, "filename", "", "output filename (server default when empty)")
	f.StringVar(&req.TabSelector, "tab", "", "tab ID to record (active tab when empty)")
	f.BoolVar(&monitor, "monitor", false, "stream the tab to /monitor listeners while recording")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running recording and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := clientFromFlags().stop(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a recording is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := clientFromFlags().status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print recording events as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			out := cmd.OutOrStdout()
			return clientFromFlags().watch(ctx, func(ev coordinator.Event) {
				printEvent(out, ev)
			})
		},
	}
}

func printStatus(w io.Writer, st api.Status) {
	switch {
	case st.Session != nil:
		fmt.Fprintf(w, "%s: %s (%d kbps, %d Hz, session %s)\n",
			st.Phase, st.Session.Filename, st.Session.BitrateKbps, st.Session.SampleRate, st.Session.SessionID)
	case st.Recording:
		fmt.Fprintf(w, "%s: %s\n", st.Phase, st.Filename)
	default:
		fmt.Fprintf(w, "%s\n", st.Phase)
	}
}

func printEvent(w io.Writer, ev coordinator.Event) {
	ts := ev.Time.Local().Format("15:04:05")
	switch {
	case ev.Text != "":
		fmt.Fprintf(w, "%s %-6s %s\n", ts, ev.Type, ev.Text)
	default:
		fmt.Fprintf(w, "%s %-6s %s\n", ts, ev.Type, ev.Phase)
	}
	if ev.Type == coordinator.EventSaved && ev.DownloadID != "" {
		fmt.Fprintf(w, "         download: %s\n", ev.DownloadID)
	}
}
