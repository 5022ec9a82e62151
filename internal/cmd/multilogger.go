package cmd

import (
	"time"

	"github.com/harrison/taskrunner/internal/executor"
	"github.com/harrison/taskrunner/internal/models"
)

// multiLogger implements executor.Logger by delegating to multiple loggers
type multiLogger struct {
	loggers []executor.Logger
}

func (ml *multiLogger) LogRunStart(runID string, tasks []models.Task) {
	for _, l := range ml.loggers {
		l.LogRunStart(runID, tasks)
	}
}

func (ml *multiLogger) LogTaskStart(task models.Task, attempt int) {
	for _, l := range ml.loggers {
		l.LogTaskStart(task, attempt)
	}
}

func (ml *multiLogger) LogAttemptFailed(task models.Task, err *executor.TaskExecutionError) {
	for _, l := range ml.loggers {
		l.LogAttemptFailed(task, err)
	}
}

func (ml *multiLogger) LogRetry(task models.Task, attempt int, delay time.Duration) {
	for _, l := range ml.loggers {
		l.LogRetry(task, attempt, delay)
	}
}

// LogTaskResult forwards to all loggers and returns the last error seen
func (ml *multiLogger) LogTaskResult(result models.TaskResult) error {
	var lastErr error
	for _, l := range ml.loggers {
		if err := l.LogTaskResult(result); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (ml *multiLogger) LogProgress(done, total int) {
	for _, l := range ml.loggers {
		l.LogProgress(done, total)
	}
}

func (ml *multiLogger) LogSummary(report *models.RunReport) {
	for _, l := range ml.loggers {
		l.LogSummary(report)
	}
}
