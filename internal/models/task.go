package models

import (
	"errors"
	"fmt"
	"time"
)

// Task represents a single configured unit of work: one external script or
// inline shell command.
type Task struct {
	Name        string            // Task identifier, unique within a task file
	Script      string            // Path to an executable script (resolved against the task file)
	Command     string            // Inline shell command, run with sh -c
	Interpreter string            // Optional program used to run Script (e.g. python3)
	Args        []string          // Extra arguments passed to Script
	Dir         string            // Working directory (empty = task file directory)
	Env         map[string]string // Extra environment variables
	MaxAttempts int               // Total attempts including the first one
	RetryDelay  time.Duration     // Fixed pause between attempts
}

// Validate checks if the task has all required fields
func (t *Task) Validate() error {
	if t.Name == "" {
		return errors.New("task name is required")
	}
	if t.Script == "" && t.Command == "" {
		return fmt.Errorf("task %q: one of script or command is required", t.Name)
	}
	if t.Script != "" && t.Command != "" {
		return fmt.Errorf("task %q: script and command are mutually exclusive", t.Name)
	}
	if t.Interpreter != "" && t.Script == "" {
		return fmt.Errorf("task %q: interpreter requires script", t.Name)
	}
	if t.MaxAttempts < 1 {
		return fmt.Errorf("task %q: max_attempts must be >= 1, got %d", t.Name, t.MaxAttempts)
	}
	if t.RetryDelay < 0 {
		return fmt.Errorf("task %q: retry_delay must be >= 0, got %v", t.Name, t.RetryDelay)
	}
	return nil
}

