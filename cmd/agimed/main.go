// Command agimed runs the agent execution engine's HTTP/SSE server: the
// single stable external contract for submitting tasks, driving chat
// sessions, and running missions (spec §6).
package main

import (
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
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached,
// separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "agimed",
		Short:        "agimed - Agent Execution Engine server",
		Long:         `agimed serves the agent execution engine's HTTP/SSE API for task, chat, and mission execution.`,
		Version:      version + " (commit: " + commit + ", built: " + date + ")",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildDoctorCmd())
	return rootCmd
}
