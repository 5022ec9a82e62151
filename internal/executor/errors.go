package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/taskrunner/internal/script"
	pkgerrors "github.com/pkg/errors"
)

// stackTracer is implemented by errors created with github.com/pkg/errors.
type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// TaskExecutionError is the single error kind produced by a failing task
// attempt. It carries the underlying error together with the captured
// script output and a textual call stack from the point of failure.
type TaskExecutionError struct {
	TaskName  string    // Name of the task that failed
	Attempt   int       // 1-based attempt number that produced this error
	ExitCode  int       // Script exit code, or -1 when the script never exited normally
	Output    string    // Captured combined script output (tail)
	Stack     string    // Call stack text at the point of failure
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

// NewTaskExecutionError builds a TaskExecutionError from an attempt error.
// Exit code and output are extracted from script errors; the stack is taken
// from the error chain when present, otherwise captured here.
func NewTaskExecutionError(taskName string, attempt int, err error) *TaskExecutionError {
	te := &TaskExecutionError{
		TaskName:  taskName,
		Attempt:   attempt,
		ExitCode:  -1,
		Err:       err,
		Timestamp: time.Now(),
	}

	var exitErr *script.ExitError
	var startErr *script.StartError
	var panicErr *PanicError
	switch {
	case errors.As(err, &exitErr):
		te.ExitCode = exitErr.ExitCode
		te.Output = exitErr.Output
	case errors.As(err, &startErr):
		te.Output = startErr.Output
	}

	if errors.As(err, &panicErr) {
		te.Stack = panicErr.Stack
		return te
	}

	var st stackTracer
	if errors.As(err, &st) {
		te.Stack = strings.TrimPrefix(fmt.Sprintf("%+v", st.StackTrace()), "\n")
	} else {
		captured := pkgerrors.WithStack(err).(stackTracer)
		te.Stack = strings.TrimPrefix(fmt.Sprintf("%+v", captured.StackTrace()), "\n")
	}

	return te
}

// Error implements the error interface for TaskExecutionError.
func (e *TaskExecutionError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("task %s failed on attempt %d", e.TaskName, e.Attempt))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support.
func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}

// Trace renders the full traceback text recorded for a failed task.
func (e *TaskExecutionError) Trace() string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteString("\n")

	if e.ExitCode >= 0 {
		sb.WriteString(fmt.Sprintf("Exit code: %d\n", e.ExitCode))
	}

	if output := strings.TrimRight(e.Output, "\n"); output != "" {
		sb.WriteString("Output:\n")
		sb.WriteString(output)
		sb.WriteString("\n")
	}

	if stack := strings.TrimRight(e.Stack, "\n"); stack != "" {
		sb.WriteString("Stack:\n")
		sb.WriteString(stack)
		sb.WriteString("\n")
	}

	return sb.String()
}

// PanicError is produced when a task attempt panics.
type PanicError struct {
	Value interface{}
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
