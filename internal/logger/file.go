package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/taskrunner/internal/executor"
	"github.com/harrison/taskrunner/internal/models"
)

const (
	// JournalFileName is the append-only session journal shared by all runs.
	JournalFileName = "runner.log"

	// LatestLinkName points at the failure log of the most recent run.
	LatestLinkName = "latest.log"

	journalTimeFormat = "2006-01-02 15:04:05"
)

// FileLogger logs run events to files in the log directory.
//
// Each run gets its own failure log, run-YYYYMMDD-HHMMSS.log, named after the
// run's start time. It holds only failure records and stays empty when every
// task succeeds. Session events (START, FAIL, Retrying, SUCCESS) go to the
// shared runner.log journal, filtered by log level. latest.log is a symlink to
// the newest failure log.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	journal  *os.File
	logLevel string
	failures int
	mu       sync.Mutex
}

var _ executor.Logger = (*FileLogger)(nil)

// NewFileLogger creates a FileLogger in logDir for a run that started at startedAt.
// It creates the log directory if needed, creates the run's failure log, opens
// the journal for appending and updates the latest.log symlink.
func NewFileLogger(logDir string, logLevel string, startedAt time.Time) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	runFile, file, err := createRunFile(logDir, startedAt)
	if err != nil {
		return nil, err
	}

	journal, err := os.OpenFile(filepath.Join(logDir, JournalFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	symlinkPath := filepath.Join(logDir, LatestLinkName)
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			journal.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		journal.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	return &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		journal:  journal,
		logLevel: normalizeLogLevel(logLevel),
	}, nil
}

// createRunFile creates run-YYYYMMDD-HHMMSS.log, adding a numeric suffix if a
// run in the same second already claimed the name.
func createRunFile(logDir string, startedAt time.Time) (string, *os.File, error) {
	stamp := startedAt.Format("20060102-150405")
	for i := 1; i < 100; i++ {
		name := fmt.Sprintf("run-%s.log", stamp)
		if i > 1 {
			name = fmt.Sprintf("run-%s-%d.log", stamp, i)
		}
		path := filepath.Join(logDir, name)

		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			return path, file, nil
		}
		if !os.IsExist(err) {
			return "", nil, fmt.Errorf("failed to create run log file: %w", err)
		}
	}
	return "", nil, fmt.Errorf("failed to create run log file: too many runs at %s", stamp)
}

// RunFile returns the path of this run's failure log.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

// Failures returns the number of failure records written.
func (fl *FileLogger) Failures() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.failures
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return levelFilter(fl.logLevel).allows(messageLevel)
}

// LogRunStart opens a session block in the journal.
func (fl *FileLogger) LogRunStart(runID string, tasks []models.Task) {
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		names = append(names, t.Name)
	}
	fl.writeJournal(fmt.Sprintf("\n=== Session %s (run %s) ===\n", journalTime(), runID))
	fl.writeJournal(fmt.Sprintf("Requested: %s\n", strings.Join(names, ", ")))
}

// LogTaskStart journals an attempt starting at INFO level.
func (fl *FileLogger) LogTaskStart(task models.Task, attempt int) {
	if !fl.shouldLog("info") {
		return
	}
	fl.writeJournal(fmt.Sprintf("[%s] START %s (attempt %d/%d)\n", journalTime(), task.Name, attempt, task.MaxAttempts))
}

// LogAttemptFailed journals a failed attempt with its traceback at WARN level.
func (fl *FileLogger) LogAttemptFailed(task models.Task, err *executor.TaskExecutionError) {
	if !fl.shouldLog("warn") {
		return
	}
	fl.writeJournal(fmt.Sprintf("[%s] FAIL %s (attempt %d/%d)\n%s\n", journalTime(), task.Name, err.Attempt, task.MaxAttempts, err.Trace()))
}

// LogRetry journals an upcoming retry at INFO level.
func (fl *FileLogger) LogRetry(task models.Task, attempt int, delay time.Duration) {
	if !fl.shouldLog("info") {
		return
	}
	fl.writeJournal(fmt.Sprintf("[%s] Retrying %s... (%d/%d)\n", journalTime(), task.Name, attempt, task.MaxAttempts-1))
}

// LogTaskResult journals the task outcome and, for failures, appends a
// failure record to the run's failure log.
// Record format:
//
//	[2006-01-02 15:04:05] FAILURE <task> (attempts: N, elapsed: 1.234s)
//	<traceback text>
//
// Records are separated by a blank line.
func (fl *FileLogger) LogTaskResult(result models.TaskResult) error {
	if result.Succeeded() {
		if fl.shouldLog("info") {
			fl.writeJournal(fmt.Sprintf("[%s] SUCCESS %s in %.3fs\n", journalTime(), result.TaskName, result.Duration.Seconds()))
		}
		return nil
	}

	if fl.shouldLog("error") {
		fl.writeJournal(fmt.Sprintf("[%s] FAILURE %s after %d attempt(s) in %.3fs\n", journalTime(), result.TaskName, result.Attempts, result.Duration.Seconds()))
	}

	trace := strings.TrimRight(result.Trace, "\n")
	if trace == "" && result.Error != nil {
		trace = result.Error.Error()
	}
	record := fmt.Sprintf("[%s] FAILURE %s (attempts: %d, elapsed: %.3fs)\n%s\n\n",
		result.StartedAt.Format(journalTimeFormat), result.TaskName, result.Attempts, result.Duration.Seconds(), trace)

	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog == nil {
		return fmt.Errorf("run log is closed")
	}
	if _, err := fl.runLog.WriteString(record); err != nil {
		return fmt.Errorf("failed to write failure record: %w", err)
	}
	if err := fl.runLog.Sync(); err != nil {
		return fmt.Errorf("failed to sync run log: %w", err)
	}
	fl.failures++
	return nil
}

// LogProgress is a no-op; progress is console-only.
func (fl *FileLogger) LogProgress(done, total int) {
}

// LogSummary closes the session block in the journal.
func (fl *FileLogger) LogSummary(report *models.RunReport) {
	fl.writeJournal(fmt.Sprintf("Succeeded: %d, Failed: %d, Total: %d, Duration: %.3fs\n",
		report.Succeeded(), report.Failed(), len(report.Results), report.Duration().Seconds()))
	fl.writeJournal(fmt.Sprintf("=== End Session (fail=%t) ===\n", report.HasFailures()))
}

// Close flushes and closes the log files.
// It should be called when the logger is no longer needed.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	var firstErr error
	for _, f := range []**os.File{&fl.runLog, &fl.journal} {
		if *f == nil {
			continue
		}
		if err := (*f).Sync(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to sync %s: %w", (*f).Name(), err)
		}
		if err := (*f).Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", (*f).Name(), err)
		}
		*f = nil
	}
	return firstErr
}

// writeJournal is a thread-safe helper to append to the journal.
func (fl *FileLogger) writeJournal(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.journal != nil {
		fl.journal.WriteString(message)
	}
}

func journalTime() string {
	return time.Now().Format(journalTimeFormat)
}
