package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shepherd",
	Short: "Shepherd - Fleet lifecycle monitor for syncing worker nodes",
	Long: `Shepherd supervises a fleet of worker nodes through their sync
lifecycle: it polls each node until it finishes syncing, watches it for
sustained progress, and records how every run ended.

Runs are numbered across process restarts, logged to an append-only
history, and reported to webhooks.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Shepherd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(runsCmd)
}
