package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/taskrunner/internal/history"
	"github.com/harrison/taskrunner/internal/report"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command and its show subcommand
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List past runs recorded in the history database, newest first.

Use "taskrunner history show <run-id>" for the task results of one run.
A unique prefix of the run ID is enough. "taskrunner history task <name>"
lists the recent outcomes of one task across runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), store.Path(), runs)
			return nil
		},
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .taskrunner/config.yaml)")
	cmd.PersistentFlags().String("db", "", "Path to the history database (overrides config)")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 = all)")

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryTaskCommand())
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the task results of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRun(cmd.OutOrStdout(), run)
			return nil
		},
	}
}

func newHistoryTaskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task <name>",
		Short: "Show recent outcomes of one task across runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.TaskHistory(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			printTaskHistory(cmd.OutOrStdout(), args[0], records)
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of results to list")
	return cmd
}

// openHistory opens the database named by --db or the config file.
func openHistory(cmd *cobra.Command) (*history.Store, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		dbPath = cfg.History.DBPath
	}

	store, err := history.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", dbPath, err)
	}
	return store, nil
}

func printRuns(w io.Writer, dbPath string, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintf(w, "No runs recorded in %s yet.\n", dbPath)
		return
	}

	fmt.Fprintf(w, "%-36s  %-19s  %9s  %s\n", "RUN", "STARTED", "ELAPSED", "RESULT")
	for _, r := range runs {
		result := fmt.Sprintf("%d/%d succeeded", r.Succeeded, r.Total)
		if r.Failed > 0 {
			result += fmt.Sprintf(", %s", color.RedString("%d failed", r.Failed))
		}
		fmt.Fprintf(w, "%-36s  %-19s  %9s  %s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), report.Elapsed(r.Duration()), result)
	}
}

func printRun(w io.Writer, run *history.Run) {
	fmt.Fprintf(w, "Run:      %s\n", run.ID)
	fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Elapsed:  %s\n", report.Elapsed(run.Duration()))
	fmt.Fprintf(w, "Result:   Succeeded: %d  Failed: %d  Total: %d\n", run.Succeeded, run.Failed, run.Total)
	if run.FailureLog.Valid {
		fmt.Fprintf(w, "Log:      %s\n", run.FailureLog.String)
	}
	fmt.Fprintln(w)

	for _, t := range run.Tasks {
		status := color.GreenString("%s", t.Status)
		if t.Status != "SUCCESS" {
			status = color.RedString("%s", t.Status)
		}
		fmt.Fprintf(w, "  %s  %s  %s  %d attempt(s)\n", t.TaskName, status, report.Elapsed(t.Duration()), t.Attempts)
		if t.ErrorMessage.Valid {
			fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(t.ErrorMessage.String, "\n", "\n    "))
		}
	}
}

func printTaskHistory(w io.Writer, name string, records []history.TaskRecord) {
	if len(records) == 0 {
		fmt.Fprintf(w, "No recorded results for task %s.\n", name)
		return
	}

	fmt.Fprintf(w, "%-36s  %-19s  %-7s  %9s  %s\n", "RUN", "STARTED", "STATUS", "ELAPSED", "ATTEMPTS")
	for _, r := range records {
		started := "-"
		if r.StartedAt.Valid {
			started = r.StartedAt.Time.Local().Format("2006-01-02 15:04:05")
		}
		status := color.GreenString("%-7s", r.Status)
		if r.Status != "SUCCESS" {
			status = color.RedString("%-7s", r.Status)
		}
		fmt.Fprintf(w, "%-36s  %-19s  %s  %9s  %d\n", r.RunID, started, status, report.Elapsed(r.Duration()), r.Attempts)
	}
}
