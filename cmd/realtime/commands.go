package main

import (
	"github.com/spf13/cobra"
)

// buildWatchCmd creates the "watch" command that runs a session and
// streams its realtime activity to the log.
func buildWatchCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		peerID     string
		presence   []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run a realtime session and stream its activity",
		Long: `Connect with the configured session token, register for push
events, start fallback polling and log notifications, messages and
presence changes as they arrive. Runs until interrupted.`,
		Example: `  # Watch with default config
  realtime watch

  # Open the chat with one peer and follow their presence
  realtime watch --peer 42 --presence 42,57`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), configPath, debug, peerID, presence)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVar(&peerID, "peer", "", "Open the direct-message chat with this user id")
	cmd.Flags().StringSliceVar(&presence, "presence", nil, "User ids to poll last-seen status for")

	return cmd
}

// buildStatusCmd creates the "status" command that performs one
// snapshot read against the platform API.
func buildStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Fetch rooms and notifications once and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")

	return cmd
}
