// Package logger provides logging implementations for taskrunner execution.
//
// ConsoleLogger reports run progress to a terminal or writer. FileLogger
// keeps the per-run failure log and the append-only session journal.
// Both implement executor.Logger and are safe for concurrent use.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/taskrunner/internal/executor"
	"github.com/harrison/taskrunner/internal/models"
	"github.com/mattn/go-isatty"
)

// ConsoleLogger logs execution progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps for tracking execution flow.
// Color output is automatically enabled for terminal output (os.Stdout/os.Stderr).
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

var _ executor.Logger = (*ConsoleLogger)(nil)

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive); anything
// else defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
// Returns false when NO_COLOR is set.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ColorEnabled reports whether the logger writes ANSI colors.
func (cl *ConsoleLogger) ColorEnabled() bool {
	return cl.colorOutput
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return levelFilter(cl.logLevel).allows(messageLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

// logWithLevel writes "[HH:MM:SS] [LEVEL] message" if filtering allows it.
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil {
		return
	}

	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	coloredLevel := level
	if cl.colorOutput {
		coloredLevel = colorForLevel(level).Sprint(level)
	}

	fmt.Fprintf(cl.writer, "[%s] [%s] %s\n", timestamp(), coloredLevel, message)
}

func colorForLevel(level string) *color.Color {
	switch strings.ToUpper(level) {
	case "TRACE":
		return color.New(color.FgHiBlack)
	case "DEBUG":
		return color.New(color.FgCyan)
	case "WARN":
		return color.New(color.FgYellow)
	case "ERROR":
		return color.New(color.FgRed)
	default:
		return color.New(color.FgBlue)
	}
}

// paint applies c when color output is enabled.
func (cl *ConsoleLogger) paint(c *color.Color, s string) string {
	if !cl.colorOutput {
		return s
	}
	return c.Sprint(s)
}

// LogRunStart logs the start of a run at INFO level.
func (cl *ConsoleLogger) LogRunStart(runID string, tasks []models.Task) {
	label := "tasks"
	if len(tasks) == 1 {
		label = "task"
	}
	cl.LogInfo(fmt.Sprintf("Starting run %s with %d %s", shortID(runID), len(tasks), label))
}

// LogTaskStart logs an attempt starting. First attempts log at INFO,
// retries at DEBUG since LogRetry already announced them.
func (cl *ConsoleLogger) LogTaskStart(task models.Task, attempt int) {
	name := cl.paint(color.New(color.Bold), task.Name)
	if attempt == 1 {
		cl.LogInfo(fmt.Sprintf("START %s", name))
		return
	}
	cl.LogDebug(fmt.Sprintf("START %s (attempt %d/%d)", name, attempt, task.MaxAttempts))
}

// LogAttemptFailed logs a failed attempt at WARN level; the full trace
// follows at DEBUG level.
func (cl *ConsoleLogger) LogAttemptFailed(task models.Task, err *executor.TaskExecutionError) {
	cl.LogWarn(fmt.Sprintf("FAIL %s (attempt %d/%d): %v", task.Name, err.Attempt, task.MaxAttempts, err.Err))
	cl.LogDebug(strings.TrimRight(err.Trace(), "\n"))
}

// LogRetry logs an upcoming retry at INFO level.
// Format: "Retrying <name>... (1/2)" where the counter is retries, not attempts.
func (cl *ConsoleLogger) LogRetry(task models.Task, attempt int, delay time.Duration) {
	msg := fmt.Sprintf("Retrying %s... (%d/%d)", task.Name, attempt, task.MaxAttempts-1)
	if delay > 0 {
		msg = fmt.Sprintf("Retrying %s in %s... (%d/%d)", task.Name, delay, attempt, task.MaxAttempts-1)
	}
	cl.LogInfo(msg)
}

// LogTaskResult logs the final outcome of a task.
// Successes log at INFO, failures at ERROR.
func (cl *ConsoleLogger) LogTaskResult(result models.TaskResult) error {
	if result.Succeeded() {
		status := cl.paint(color.New(color.FgGreen), "SUCCESS")
		cl.LogInfo(fmt.Sprintf("%s %s in %.3fs", status, result.TaskName, result.Duration.Seconds()))
		return nil
	}

	status := cl.paint(color.New(color.FgRed), "FAILED")
	cl.LogError(fmt.Sprintf("%s %s after %d attempt(s) in %.3fs", status, result.TaskName, result.Attempts, result.Duration.Seconds()))
	return nil
}

// LogProgress logs run progress at INFO level.
// Format: "[HH:MM:SS] [INFO] Progress: [=====     ] 2/4 (50%)"
func (cl *ConsoleLogger) LogProgress(done, total int) {
	if total <= 1 {
		return
	}
	pb := NewProgressBar(total, 10, cl.colorOutput)
	pb.Update(done)
	cl.LogInfo("Progress: " + pb.Render())
}

// LogSummary logs a one-line completion message at INFO level.
// The full report is printed separately by the report package.
func (cl *ConsoleLogger) LogSummary(report *models.RunReport) {
	cl.LogInfo(fmt.Sprintf("Run %s finished in %s: %d succeeded, %d failed",
		shortID(report.RunID), formatDuration(report.Duration()), report.Succeeded(), report.Failed()))
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// shortID returns the first 8 characters of a run ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "0.4s", "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		minutes := (d % time.Hour) / time.Minute
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	case d >= time.Minute:
		minutes := d / time.Minute
		seconds := (d % time.Minute) / time.Second
		if seconds == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	case d >= 10*time.Second:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	default:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
}

// NoOpLogger is a Logger implementation that discards all log messages.
// Useful for testing or when logging is disabled.
type NoOpLogger struct{}

var _ executor.Logger = (*NoOpLogger)(nil)

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogRunStart(runID string, tasks []models.Task) {}
func (n *NoOpLogger) LogTaskStart(task models.Task, attempt int) {}
func (n *NoOpLogger) LogAttemptFailed(task models.Task, err *executor.TaskExecutionError) {}
func (n *NoOpLogger) LogRetry(task models.Task, attempt int, delay time.Duration) {}
func (n *NoOpLogger) LogTaskResult(result models.TaskResult) error { return nil }
func (n *NoOpLogger) LogProgress(done, total int) {}
func (n *NoOpLogger) LogSummary(report *models.RunReport) {}
