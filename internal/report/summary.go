// Package report renders RunReports as a console summary and as report files.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/taskrunner/internal/models"
)

// PrintSummary writes the end-of-run summary: one line per task followed by
// the aggregate counts. Color is applied only when useColor is true.
//
//	build   SUCCESS  0.210s  1 attempt(s)
//	deploy  FAILURE  3.004s  3 attempt(s)
//
//	Succeeded: 1  Failed: 1  Total: 2
func PrintSummary(w io.Writer, report *models.RunReport, useColor bool) {
	width := len("Task")
	for _, r := range report.Results {
		if len(r.TaskName) > width {
			width = len(r.TaskName)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, paint(useColor, color.New(color.Bold), "Run summary"))
	fmt.Fprintln(w, strings.Repeat("-", width+32))

	for _, r := range report.Results {
		status := r.Status
		statusColor := color.New(color.FgGreen)
		if !r.Succeeded() {
			statusColor = color.New(color.FgRed)
		}
		// Pad before coloring so escape codes don't break alignment.
		fmt.Fprintf(w, "%-*s  %s  %8s  %d attempt(s)\n",
			width, r.TaskName,
			paint(useColor, statusColor, fmt.Sprintf("%-7s", status)),
			Elapsed(r.Duration), r.Attempts)
	}

	fmt.Fprintln(w)
	failed := fmt.Sprintf("Failed: %d", report.Failed())
	if report.HasFailures() {
		failed = paint(useColor, color.New(color.FgRed, color.Bold), failed)
	}
	fmt.Fprintf(w, "Succeeded: %d  %s  Total: %d\n", report.Succeeded(), failed, len(report.Results))

	if report.HasFailures() {
		names := make([]string, 0, report.Failed())
		for _, r := range report.FailedResults() {
			names = append(names, r.TaskName)
		}
		fmt.Fprintf(w, "Failed tasks: %s\n", strings.Join(names, ", "))
	}
}

// Elapsed formats a task duration with millisecond precision, e.g. "1.234s".
func Elapsed(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}

func paint(useColor bool, c *color.Color, s string) string {
	if !useColor {
		return s
	}
	return c.Sprint(s)
}
