// Lumenote is a notebook assistant for Telegram: users upload documents or
// discover sources, and ask for answers, audio digests and concept maps
// generated from them.
//
// The same binary runs both process roles:
//
//	# Interactive process: polls chat updates, enqueues jobs
//	lumenote bot --config config.yaml
//
//	# Worker pool: executes jobs, serves /healthz and /metrics
//	lumenote worker --config config.yaml
//
// Configuration comes from the YAML file plus environment overrides
// (TELEGRAM_TOKEN, GEMINI_API_KEY, NATS_URL, ...). See internal/config.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "lumenote",
	Short:   "Telegram notebook assistant",
	Version: version + " (" + gitCommit + ")",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(workerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
