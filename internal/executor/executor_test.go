package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrison/taskrunner/internal/models"
	"github.com/harrison/taskrunner/internal/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLogger captures executor events for assertions
type recordingLogger struct {
	mu      sync.Mutex
	events  []string
	results []models.TaskResult
	summary *models.RunReport
}

func (l *recordingLogger) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) LogRunStart(runID string, tasks []models.Task) {
	l.add("run-start %d", len(tasks))
}

func (l *recordingLogger) LogTaskStart(task models.Task, attempt int) {
	l.add("start %s #%d", task.Name, attempt)
}

func (l *recordingLogger) LogAttemptFailed(task models.Task, err *TaskExecutionError) {
	l.add("fail %s #%d", task.Name, err.Attempt)
}

func (l *recordingLogger) LogRetry(task models.Task, attempt int, delay time.Duration) {
	l.add("retry %s after #%d", task.Name, attempt)
}

func (l *recordingLogger) LogTaskResult(result models.TaskResult) error {
	l.mu.Lock()
	l.results = append(l.results, result)
	l.mu.Unlock()
	l.add("result %s %s", result.TaskName, result.Status)
	return nil
}

func (l *recordingLogger) LogProgress(done, total int) {
	l.add("progress %d/%d", done, total)
}

func (l *recordingLogger) LogSummary(report *models.RunReport) {
	l.summary = report
	l.add("summary")
}

// scriptedRunner fails each task a configured number of times before succeeding.
// A negative count means the task always fails.
type scriptedRunner struct {
	failures map[string]int
	calls    map[string]int
}

func newScriptedRunner(failures map[string]int) *scriptedRunner {
	return &scriptedRunner{failures: failures, calls: make(map[string]int)}
}

func (r *scriptedRunner) Run(ctx context.Context, task models.Task) error {
	r.calls[task.Name]++
	n := r.failures[task.Name]
	if n < 0 || r.calls[task.Name] <= n {
		return fmt.Errorf("%s failed (call %d)", task.Name, r.calls[task.Name])
	}
	return nil
}

func task(name string, attempts int) models.Task {
	return models.Task{Name: name, Command: "true", MaxAttempts: attempts}
}

func TestExecutor_OneResultPerTaskInOrder(t *testing.T) {
	for m := 0; m <= 5; m++ {
		t.Run(fmt.Sprintf("M=%d", m), func(t *testing.T) {
			var tasks []models.Task
			failures := map[string]int{}
			for i := 0; i < m; i++ {
				name := fmt.Sprintf("task-%d", i)
				tasks = append(tasks, task(name, 2))
				if i%2 == 1 {
					failures[name] = -1
				}
			}

			exec := NewExecutor(newScriptedRunner(failures), nil)
			report := exec.Run(context.Background(), tasks)

			require.Len(t, report.Results, m)
			for i, res := range report.Results {
				assert.Equal(t, tasks[i].Name, res.TaskName)
			}
			assert.NotEmpty(t, report.RunID)
			assert.False(t, report.FinishedAt.IsZero())
		})
	}
}

func TestExecutor_RetryThenSuccessScenario(t *testing.T) {
	runner := newScriptedRunner(map[string]int{"A": 0, "B": 2})
	logger := &recordingLogger{}
	exec := NewExecutor(runner, logger)

	report := exec.Run(context.Background(), []models.Task{task("A", 3), task("B", 3)})

	require.Len(t, report.Results, 2)
	assert.Equal(t, models.StatusSuccess, report.Results[0].Status)
	assert.Equal(t, 1, report.Results[0].Attempts)
	assert.Equal(t, models.StatusSuccess, report.Results[1].Status)
	assert.Equal(t, 3, report.Results[1].Attempts)
	assert.Equal(t, 3, runner.calls["B"])
	assert.Nil(t, report.Results[1].Error)
	assert.Empty(t, report.Results[1].Trace)
	assert.False(t, report.HasFailures())

	assert.Equal(t, []string{
		"run-start 2",
		"start A #1",
		"result A SUCCESS",
		"progress 1/2",
		"start B #1",
		"fail B #1",
		"retry B after #1",
		"start B #2",
		"fail B #2",
		"retry B after #2",
		"start B #3",
		"result B SUCCESS",
		"progress 2/2",
		"summary",
	}, logger.events)
	assert.Same(t, report, logger.summary)
}

func TestExecutor_ExhaustedFailureScenario(t *testing.T) {
	runner := newScriptedRunner(map[string]int{"C": -1})
	exec := NewExecutor(runner, nil)

	report := exec.Run(context.Background(), []models.Task{task("C", 2)})

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, models.StatusFailure, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, runner.calls["C"])
	assert.True(t, report.HasFailures())
	assert.Equal(t, 1, report.Failed())

	var te *TaskExecutionError
	require.True(t, errors.As(res.Error, &te))
	assert.Equal(t, 2, te.Attempt)
	assert.Contains(t, res.Trace, "task C failed on attempt 2: C failed (call 2)")
	assert.Contains(t, res.Trace, "Stack:")
}

func TestExecutor_ContinuesAfterFailure(t *testing.T) {
	runner := newScriptedRunner(map[string]int{"first": -1})
	exec := NewExecutor(runner, nil)

	report := exec.Run(context.Background(), []models.Task{task("first", 1), task("second", 1)})

	require.Len(t, report.Results, 2)
	assert.Equal(t, models.StatusFailure, report.Results[0].Status)
	assert.Equal(t, models.StatusSuccess, report.Results[1].Status)
	assert.Equal(t, 1, runner.calls["second"])
}

func TestExecutor_Idempotent(t *testing.T) {
	tasks := []models.Task{task("x", 1), task("y", 2), task("z", 1)}
	failing := RunnerFunc(func(ctx context.Context, task models.Task) error {
		if task.Name == "y" {
			return errors.New("deterministic failure")
		}
		return nil
	})

	first := NewExecutor(failing, nil).Run(context.Background(), tasks)
	second := NewExecutor(failing, nil).Run(context.Background(), tasks)

	require.Len(t, second.Results, len(first.Results))
	for i := range first.Results {
		assert.Equal(t, first.Results[i].TaskName, second.Results[i].TaskName)
		assert.Equal(t, first.Results[i].Status, second.Results[i].Status)
		assert.Equal(t, first.Results[i].Attempts, second.Results[i].Attempts)
	}
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestExecutor_ElapsedIncludesRetryDelay(t *testing.T) {
	runner := newScriptedRunner(map[string]int{"slow": -1})
	exec := NewExecutor(runner, nil)

	tk := task("slow", 3)
	tk.RetryDelay = 20 * time.Millisecond
	report := exec.Run(context.Background(), []models.Task{tk})

	assert.GreaterOrEqual(t, report.Results[0].Duration, 40*time.Millisecond)
	assert.GreaterOrEqual(t, report.Duration(), report.Results[0].Duration)
}

func TestExecutor_RecoversPanic(t *testing.T) {
	calls := 0
	runner := RunnerFunc(func(ctx context.Context, task models.Task) error {
		calls++
		panic("kaboom")
	})
	exec := NewExecutor(runner, nil)

	report := exec.Run(context.Background(), []models.Task{task("p", 2), task("q", 1)})

	require.Len(t, report.Results, 2)
	assert.Equal(t, 3, calls)
	res := report.Results[0]
	assert.Equal(t, models.StatusFailure, res.Status)
	assert.Contains(t, res.Trace, "panic: kaboom")
	assert.Contains(t, res.Trace, "runtime/debug.Stack")
}

func TestExecutor_WithScriptInvoker(t *testing.T) {
	inv := script.NewInvoker()
	exec := NewExecutor(inv, nil)

	report := exec.Run(context.Background(), []models.Task{
		{Name: "ok", Command: "echo fine", MaxAttempts: 1},
		{Name: "bad", Command: "echo 'ValueError: server not reachable' >&2; exit 2", MaxAttempts: 2},
	})

	require.Len(t, report.Results, 2)
	assert.Equal(t, models.StatusSuccess, report.Results[0].Status)

	bad := report.Results[1]
	assert.Equal(t, models.StatusFailure, bad.Status)
	assert.Equal(t, 2, bad.Attempts)
	assert.Contains(t, bad.Trace, "Exit code: 2")
	assert.Contains(t, bad.Trace, "ValueError: server not reachable")
	assert.True(t, strings.HasPrefix(bad.Trace, "task bad failed on attempt 2"))

	var exitErr *script.ExitError
	assert.True(t, errors.As(bad.Error, &exitErr))
}

func TestNewExecutor_NilRunnerPanics(t *testing.T) {
	assert.Panics(t, func() { NewExecutor(nil, nil) })
}

func TestExecutor_CancelledRunFailsRemainingTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := map[string]int{}
	runner := RunnerFunc(func(ctx context.Context, task models.Task) error {
		calls[task.Name]++
		if err := ctx.Err(); err != nil {
			return err
		}
		if task.Name == "B" {
			cancel()
			return ctx.Err()
		}
		return nil
	})

	tasks := []models.Task{task("A", 3), task("B", 3), task("C", 3), task("D", 3)}
	report := NewExecutor(runner, &recordingLogger{}).Run(ctx, tasks)

	require.Len(t, report.Results, len(tasks))
	for i, res := range report.Results {
		assert.Equal(t, tasks[i].Name, res.TaskName)
		assert.Equal(t, 1, res.Attempts, "task %s", res.TaskName)
	}

	assert.Equal(t, models.StatusSuccess, report.Results[0].Status)
	for _, res := range report.Results[1:] {
		assert.Equal(t, models.StatusFailure, res.Status, "task %s", res.TaskName)
		assert.ErrorIs(t, res.Error, context.Canceled)
	}
	assert.Equal(t, map[string]int{"A": 1, "B": 1, "C": 1, "D": 1}, calls)
}
