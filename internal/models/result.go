package models

import "time"

// Task execution status constants
const (
	StatusSuccess = "SUCCESS" // Task succeeded on some attempt
	StatusFailure = "FAILURE" // Task exhausted its attempts
)

// TaskResult represents the final outcome of one task, after all attempts.
// It is created once per task and never mutated afterwards.
type TaskResult struct {
	TaskName  string        // Identifier of the task
	Status    string        // StatusSuccess or StatusFailure
	Duration  time.Duration // Wall-clock time across all attempts, delays included
	Attempts  int           // Number of attempts made
	StartedAt time.Time     // When the first attempt began
	Error     error         // Final error (nil on success)
	Trace     string        // Traceback text of the last failing attempt (empty on success)
}

// Succeeded reports whether the task finished with StatusSuccess.
func (r TaskResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// RunReport is the ordered collection of task outcomes for one run.
// Results are appended in configuration order and never rewritten.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []TaskResult
}

// NewRunReport creates an empty report for a run starting at startedAt.
func NewRunReport(runID string, startedAt time.Time) *RunReport {
	return &RunReport{
		RunID:     runID,
		StartedAt: startedAt,
		Results:   []TaskResult{},
	}
}

// Add appends a result to the report.
func (r *RunReport) Add(result TaskResult) {
	r.Results = append(r.Results, result)
}

// Finish marks the report complete.
func (r *RunReport) Finish(at time.Time) {
	r.FinishedAt = at
}

// Succeeded returns the number of successful tasks.
func (r *RunReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Succeeded() {
			n++
		}
	}
	return n
}

// Failed returns the number of failed tasks.
func (r *RunReport) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// FailedResults returns the failed results in run order.
func (r *RunReport) FailedResults() []TaskResult {
	var failed []TaskResult
	for _, res := range r.Results {
		if !res.Succeeded() {
			failed = append(failed, res)
		}
	}
	return failed
}

// HasFailures reports whether any task failed.
func (r *RunReport) HasFailures() bool {
	return r.Failed() > 0
}

// Duration is the total wall-clock time of the run.
// It is zero until Finish has been called.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
