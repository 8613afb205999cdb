// Command tabrec records browser tab audio to MP3 or Ogg Opus files.
//
// "tabrec serve" runs the recording server; the other commands are a thin
// client for a running server:
//
//	tabrec serve --config tabrec.yaml
//	tabrec start --bitrate 128 --filename show.mp3 [--tab ID]
//	tabrec stop
//	tabrec status
//	tabrec watch
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "0.1.0"

const (
	defaultAddr    = "localhost:8080"
	defaultTimeout = 2 * time.Minute
)

var rootCmd = &cobra.Command{
	Use:           "tabrec",
	Short:         "Browser tab audio recorder",
	Long:          `tabrec captures the audio of a browser tab and saves it as MP3 or Ogg Opus.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tabrec v%s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("addr", defaultAddr, "address of the tabrec server (env TABREC_ADDR)")
	pf.Duration("timeout", defaultTimeout, "request timeout for client commands (env TABREC_TIMEOUT)")

	viper.SetEnvPrefix("tabrec")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("addr", pf.Lookup("addr"))
	_ = viper.BindPFlag("timeout", pf.Lookup("timeout"))

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tabrec: %v\n", err)
		os.Exit(1)
	}
}

// clientFromFlags builds a client from the bound --addr and --timeout.
func clientFromFlags() *client {
	timeout := viper.GetDuration("timeout")
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return newClient(viper.GetString("addr"), timeout)
}
