package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hspbot/hspbot/cmd/hspbot/commands"
	"github.com/hspbot/hspbot/logger"
)

var rootCmd = &cobra.Command{
	Use:   "hspbot",
	Short: "hspbot - booking race bot for university sports courses",
	Long: `hspbot automates winning the registration race for limited-capacity
course slots: it derives the instant registration opens, arms a timer, and
hammers the registration endpoint inside a narrow window while keeping the
auth token fresh.

Available commands:
  serve    - Start the HTTP API and websocket event feed
  schedule - Manage scheduled booking jobs (add, ls, cancel)
  register - Attempt a registration right now
  courses  - Search upcoming courses
  token    - Import and inspect the auth credential
  version  - Show version information

Examples:
  hspbot token import auth-data.json     # Import a browser token export
  hspbot courses --level 2               # Find level 2 courses
  hspbot schedule add 36432 2024-06-10T19:00:00Z
  hspbot serve                           # Run the bot with recovery`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON instead of console output")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.RegisterCmd)
	rootCmd.AddCommand(commands.CoursesCmd)
	rootCmd.AddCommand(commands.TokenCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
