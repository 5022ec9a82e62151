package executor

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/harrison/taskrunner/internal/models"
	"github.com/harrison/taskrunner/internal/retry"
)

// Logger defines the interface for logging run progress and results.
type Logger interface {
	LogRunStart(runID string, tasks []models.Task)
	LogTaskStart(task models.Task, attempt int)
	LogAttemptFailed(task models.Task, err *TaskExecutionError)
	LogRetry(task models.Task, attempt int, delay time.Duration)
	LogTaskResult(result models.TaskResult) error
	LogProgress(done, total int)
	LogSummary(report *models.RunReport)
}

// Runner executes a single attempt of a task.
type Runner interface {
	Run(ctx context.Context, task models.Task) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, task models.Task) error

// Run calls f(ctx, task).
func (f RunnerFunc) Run(ctx context.Context, task models.Task) error {
	return f(ctx, task)
}

// Executor runs tasks one at a time, in order, retrying each according to
// its attempt budget, and records exactly one result per task.
type Executor struct {
	runner Runner
	logger Logger
	clock  func() time.Time
	newID  func() string
}

// NewExecutor creates a new Executor instance.
// The logger parameter is optional and can be nil.
func NewExecutor(runner Runner, logger Logger) *Executor {
	if runner == nil {
		panic("runner cannot be nil")
	}

	return &Executor{
		runner: runner,
		logger: logger,
		clock:  time.Now,
		newID:  uuid.NewString,
	}
}

// Run executes every task in order and returns the finished report.
// A failing task never stops the run; its failure is recorded and the next
// task starts.
func (e *Executor) Run(ctx context.Context, tasks []models.Task) *models.RunReport {
	report := models.NewRunReport(e.newID(), e.clock())

	if e.logger != nil {
		e.logger.LogRunStart(report.RunID, tasks)
	}

	for i, task := range tasks {
		result := e.runTask(ctx, task)
		report.Add(result)

		if e.logger != nil {
			if err := e.logger.LogTaskResult(result); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to log result for task %s: %v\n", task.Name, err)
			}
			e.logger.LogProgress(i+1, len(tasks))
		}
	}

	report.Finish(e.clock())

	if e.logger != nil {
		e.logger.LogSummary(report)
	}

	return report
}

// runTask executes one task through the retry wrapper and builds its result.
func (e *Executor) runTask(ctx context.Context, task models.Task) models.TaskResult {
	var lastErr *TaskExecutionError
	attempt := 0

	op := func(ctx context.Context) error {
		attempt++
		if e.logger != nil {
			e.logger.LogTaskStart(task, attempt)
		}

		if err := e.safeRun(ctx, task); err != nil {
			lastErr = NewTaskExecutionError(task.Name, attempt, err)
			if e.logger != nil {
				e.logger.LogAttemptFailed(task, lastErr)
			}
			return lastErr
		}
		return nil
	}

	wrapped := retry.Wrap(op, task.MaxAttempts, task.RetryDelay,
		retry.WithOnRetry(func(failed int, _ error, delay time.Duration) {
			if e.logger != nil {
				e.logger.LogRetry(task, failed, delay)
			}
		}))

	start := e.clock()
	err := wrapped(ctx)
	duration := e.clock().Sub(start)

	result := models.TaskResult{
		TaskName:  task.Name,
		Status:    models.StatusSuccess,
		Duration:  duration,
		Attempts:  attempt,
		StartedAt: start,
	}

	if err != nil {
		result.Status = models.StatusFailure
		result.Error = err
		if lastErr != nil {
			result.Trace = lastErr.Trace()
		} else {
			result.Trace = err.Error()
		}
	}

	return result
}

// safeRun runs a single attempt, converting a panic into a *PanicError that
// carries the goroutine stack.
func (e *Executor) safeRun(ctx context.Context, task models.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return e.runner.Run(ctx, task)
}
