// Package script runs configured tasks as external processes.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"syscall"
	"time"

	"github.com/harrison/taskrunner/internal/models"
	pkgerrors "github.com/pkg/errors"
)

// DefaultMaxOutput is the number of trailing output bytes kept per attempt.
const DefaultMaxOutput = 64 * 1024

// DefaultWaitDelay bounds how long Invoke waits for output pipes to close
// after the process group was killed.
const DefaultWaitDelay = 2 * time.Second

// Invoker manages execution of task scripts and inline commands
type Invoker struct {
	Shell     string    // Shell used for inline commands (default "sh")
	Echo      io.Writer // If non-nil, script output is copied here as it is produced
	MaxOutput int       // Trailing output bytes kept in results (default DefaultMaxOutput)
}

// Result captures the result of one script invocation
type Result struct {
	Output   string
	ExitCode int
}

// ExitError reports a script that ran but exited with a non-zero status.
type ExitError struct {
	TaskName string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("task %s exited with status %d", e.TaskName, e.ExitCode)
}

// NewInvoker creates a new Invoker with default settings
func NewInvoker() *Invoker {
	return &Invoker{
		Shell:     "sh",
		MaxOutput: DefaultMaxOutput,
	}
}

// BuildCommandArgs returns the program and arguments used to run task.
func (inv *Invoker) BuildCommandArgs(task models.Task) (string, []string) {
	if task.Command != "" {
		shell := inv.Shell
		if shell == "" {
			shell = "sh"
		}
		return shell, []string{"-c", task.Command}
	}

	if task.Interpreter != "" {
		args := append([]string{task.Script}, task.Args...)
		return task.Interpreter, args
	}

	return task.Script, append([]string{}, task.Args...)
}

// Invoke executes the task once with the given context.
// A non-nil error means the process could not be started; a process that
// ran and exited non-zero is reported through Result.ExitCode.
func (inv *Invoker) Invoke(ctx context.Context, task models.Task) (*Result, error) {
	name, args := inv.BuildCommandArgs(task)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = task.Dir
	cmd.Env = buildEnv(os.Environ(), task.Env)

	// Run in a new process group so cancellation also reaches children the
	// script started.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = DefaultWaitDelay

	maxOutput := inv.MaxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	tail := newTailBuffer(maxOutput)

	var out io.Writer = tail
	if inv.Echo != nil {
		out = io.MultiWriter(tail, inv.Echo)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()

	result := &Result{Output: tail.String()}

	if err != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("task %s interrupted: %w", task.Name, ctx.Err())
		}
		// The script exited 0 but a leftover child kept the output open.
		if errors.Is(err, exec.ErrWaitDelay) {
			return result, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() >= 0 {
				result.ExitCode = exitErr.ExitCode()
				return result, nil
			}
			return result, &SignalError{TaskName: task.Name, Status: exitErr.String()}
		}
		return result, fmt.Errorf("failed to start task %s: %w", task.Name, err)
	}

	return result, nil
}

// Run executes one attempt of task and converts a non-zero exit into an
// *ExitError. Errors carry the call stack of the failure point.
func (inv *Invoker) Run(ctx context.Context, task models.Task) error {
	result, err := inv.Invoke(ctx, task)
	if err != nil {
		return pkgerrors.WithStack(&StartError{TaskName: task.Name, Output: outputOf(result), Err: err})
	}
	if result.ExitCode != 0 {
		return pkgerrors.WithStack(&ExitError{
			TaskName: task.Name,
			ExitCode: result.ExitCode,
			Output:   result.Output,
		})
	}
	return nil
}

// SignalError reports a script terminated by a signal it did not get from
// this runner.
type SignalError struct {
	TaskName string
	Status   string // e.g. "signal: killed"
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("task %s was killed by a signal (%s)", e.TaskName, e.Status)
}

// StartError reports a script that did not run to completion on its own.
type StartError struct {
	TaskName string
	Output   string
	Err      error
}

func (e *StartError) Error() string {
	return e.Err.Error()
}

func (e *StartError) Unwrap() error {
	return e.Err
}

func outputOf(r *Result) string {
	if r == nil {
		return ""
	}
	return r.Output
}

// buildEnv appends the task environment to base in a stable order.
// Later entries win, so task values override inherited ones.
func buildEnv(base []string, env map[string]string) []string {
	result := make([]string, 0, len(base)+len(env))
	result = append(result, base...)

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		result = append(result, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return result
}
