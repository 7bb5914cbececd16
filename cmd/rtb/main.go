package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rtb",
		Short: "rtb runs the race timing & scoring backend",
		Long:  "rtb ingests RMonitor/Multiloop timing feeds, scores sessions, and pushes live updates to the web UI.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newProcessorCmd())
	cmd.AddCommand(newOrchestratorCmd())
	cmd.AddCommand(newArchiveCmd())
	cmd.AddCommand(newControlLogCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rtb %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
