package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for taskrunner
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskrunner",
		Short: "Run scripts with retries and failure logging",
		Long: `Taskrunner runs a configured list of scripts one at a time, retrying
failed scripts a fixed number of times.

Failure tracebacks are written to a log file named after the run's start
time, and a summary report is printed when the run finishes. The exit
status is non-zero when any task failed.`,
		Version: Version,
		// Silence usage and errors; main prints the returned error once
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewScheduleCommand())

	return cmd
}
