package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harrison/taskrunner/internal/logger"
	"github.com/harrison/taskrunner/internal/report"
	"github.com/harrison/taskrunner/internal/schedule"
	"github.com/spf13/cobra"
)

// NewScheduleCommand creates the schedule command
func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule <cron-expr> [all|<task>...]",
		Short: "Run tasks repeatedly on a cron schedule",
		Long: `Run the selected tasks every time the cron expression fires, until
interrupted with Ctrl-C or SIGTERM.

The expression uses the standard 5 fields (minute hour day-of-month month
day-of-week) or a descriptor such as @hourly, @daily or "@every 15m".
Only one run happens at a time; a trigger that fires while a run is still
going is skipped. The task list is re-read before every run.

Examples:
  taskrunner schedule "*/15 * * * *"          # Every 15 minutes
  taskrunner schedule @hourly backup          # One task, hourly
  taskrunner schedule "0 2 * * 1-5" all       # 02:00 on weekdays`,
		Args: cobra.MinimumNArgs(1),
		RunE: scheduleCommand,
	}

	addRunFlags(cmd)
	return cmd
}

func scheduleCommand(cmd *cobra.Command, args []string) error {
	expr, selection := args[0], args[1:]
	if _, err := schedule.Parse(expr); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	reportPath, _ := cmd.Flags().GetString("report")
	if reportPath != "" {
		if err := report.ValidatePath(reportPath); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := runOptions{
		cfg:        cfg,
		selection:  selection,
		reportPath: reportPath,
		out:        cmd.OutOrStdout(),
		errOut:     cmd.ErrOrStderr(),
	}

	job := func(ctx context.Context) error {
		runReport, err := executeRun(ctx, opts)
		if err != nil {
			return err
		}
		if runReport != nil && runReport.HasFailures() {
			return fmt.Errorf("%d %w", runReport.Failed(), ErrTasksFailed)
		}
		return nil
	}

	sched, err := schedule.New(expr, job, logger.NewConsoleLogger(cmd.ErrOrStderr(), cfg.LogLevel))
	if err != nil {
		return err
	}
	return sched.Run(ctx)
}
