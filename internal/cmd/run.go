package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harrison/taskrunner/internal/config"
	"github.com/harrison/taskrunner/internal/display"
	"github.com/harrison/taskrunner/internal/executor"
	"github.com/harrison/taskrunner/internal/filelock"
	"github.com/harrison/taskrunner/internal/history"
	"github.com/harrison/taskrunner/internal/logger"
	"github.com/harrison/taskrunner/internal/models"
	"github.com/harrison/taskrunner/internal/report"
	"github.com/harrison/taskrunner/internal/script"
	"github.com/spf13/cobra"
)

// ErrTasksFailed is returned by a run in which at least one task failed.
var ErrTasksFailed = errors.New("task(s) failed")

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [all|<task>...]",
		Short: "Run tasks from the task list",
		Long: `Run the selected tasks one at a time, in task list order.

With no arguments or "all", every enabled task runs. Otherwise only the
named tasks run (still in task list order). Each task is attempted up to
its max_attempts; a failing task never stops the run.

Failure tracebacks are written to <log-dir>/run-YYYYMMDD-HHMMSS.log, which
stays empty when every task succeeds. Session events are appended to
<log-dir>/runner.log.

Configuration is loaded from .taskrunner/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  taskrunner run                          # Run every enabled task
  taskrunner run build test               # Run two tasks
  taskrunner run --max-attempts 5 deploy  # Allow up to 5 attempts
  taskrunner run --retry-delay 10s all    # Wait 10s between attempts
  taskrunner run --report out/run.html    # Also write an HTML report
  taskrunner run --dry-run                # Show what would run`,
		RunE: runCommand,
	}

	addRunFlags(cmd)
	cmd.Flags().Bool("dry-run", false, "List the selected tasks without running them")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
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
		selection:  args,
		reportPath: reportPath,
		out:        cmd.OutOrStdout(),
		errOut:     cmd.ErrOrStderr(),
	}

	runReport, err := executeRun(ctx, opts)
	if err != nil {
		return err
	}
	if runReport != nil && runReport.HasFailures() {
		return fmt.Errorf("%d %w", runReport.Failed(), ErrTasksFailed)
	}
	return nil
}

// runOptions describes one run of the selected tasks.
type runOptions struct {
	cfg        *config.Config
	selection  []string
	reportPath string
	out        io.Writer
	errOut     io.Writer
}

// executeRun loads and selects tasks, runs them and records the outcome.
// It returns a nil report for dry runs. Task failures are reported in the
// returned RunReport, not as an error.
func executeRun(ctx context.Context, opts runOptions) (*models.RunReport, error) {
	cfg := opts.cfg

	taskFile, err := config.LoadTasks(cfg.TasksFile, config.TaskDefaults{
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	if len(taskFile.Warnings) > 0 {
		display.TaskFileWarning(taskFile.Path, taskFile.Warnings).Display(opts.errOut, false)
	}

	tasks, err := taskFile.Select(opts.selection)
	if err != nil {
		return nil, err
	}

	invoker := script.NewInvoker()

	if cfg.DryRun {
		printDryRun(opts.out, taskFile.Path, tasks, invoker)
		return nil, nil
	}

	consoleLog := logger.NewConsoleLogger(opts.out, cfg.LogLevel)

	lock, err := filelock.AcquireRunLock(cfg.LogDir)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()
	consoleLog.LogDebug("Holding run lock " + lock.Path())

	fileLog, err := logger.NewFileLogger(cfg.LogDir, cfg.LogLevel, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()

	if cfg.EchoOutput {
		invoker.Echo = opts.out
	}
	for _, t := range tasks {
		consoleLog.LogTrace(fmt.Sprintf("Task %s runs: %s", t.Name, commandLine(invoker, t)))
	}

	ex := executor.NewExecutor(invoker, &multiLogger{
		loggers: []executor.Logger{consoleLog, fileLog},
	})

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	runReport := ex.Run(ctx, tasks)

	report.PrintSummary(opts.out, runReport, consoleLog.ColorEnabled())
	failureLog := ""
	if fileLog.Failures() > 0 {
		failureLog = fileLog.RunFile()
		fmt.Fprintf(opts.out, "Failure details: %s\n", failureLog)
	}

	if opts.reportPath != "" {
		if err := report.WriteFile(opts.reportPath, runReport); err != nil {
			fmt.Fprintf(opts.errOut, "Warning: %v\n", err)
		} else {
			fmt.Fprintf(opts.out, "Report written to %s\n", opts.reportPath)
		}
	}

	if cfg.History.Enabled {
		if err := recordHistory(ctx, cfg.History.DBPath, runReport, failureLog); err != nil {
			fmt.Fprintf(opts.errOut, "Warning: failed to record run history: %v\n", err)
		}
	}

	return runReport, nil
}

// recordHistory stores the run in the history database. It uses a fresh
// context so an interrupted run is still recorded. failureLog is empty when
// no failure records were written.
func recordHistory(ctx context.Context, dbPath string, runReport *models.RunReport, failureLog string) error {
	store, err := history.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return store.RecordRun(writeCtx, runReport, failureLog)
}

func printDryRun(w io.Writer, tasksPath string, tasks []models.Task, invoker *script.Invoker) {
	fmt.Fprintf(w, "Dry-run: %d task(s) from %s would run:\n", len(tasks), tasksPath)
	for i, t := range tasks {
		fmt.Fprintf(w, "  %d. %s: %s\n", i+1, t.Name, commandLine(invoker, t))
		fmt.Fprintf(w, "     attempts: %d, retry delay: %s\n", t.MaxAttempts, t.RetryDelay)
	}
}

// commandLine renders the program and arguments used to run t.
func commandLine(invoker *script.Invoker, t models.Task) string {
	program, args := invoker.BuildCommandArgs(t)
	return strings.Join(append([]string{program}, args...), " ")
}
