// Package main provides the CLI entry point for the realtime delivery
// client of the chess platform.
//
// The client keeps a persistent connection to the platform's realtime
// endpoint, falls back to interval polling when push is unavailable,
// and maintains the local notification and presence state a UI layer
// reads.
//
// # Basic Usage
//
// Watch a session's realtime stream:
//
//	realtime watch --config realtime.yaml
//
// Check connectivity and current state once:
//
//	realtime status --config realtime.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "realtime",
		Short: "Realtime delivery client for the chess platform",
		Long: `Keeps a persistent realtime connection with automatic reconnect,
falls back to interval polling, and maintains local notification and
presence state.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildWatchCmd(),
		buildStatusCmd(),
	)
	return rootCmd
}
