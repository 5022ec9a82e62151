package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/taskrunner/internal/filelock"
	"github.com/harrison/taskrunner/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Supported report formats, selected by file extension.
const (
	FormatJSON     = ".json"
	FormatMarkdown = ".md"
	FormatHTML     = ".html"
)

// taskJSON is the machine-readable form of a TaskResult.
type taskJSON struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Trace      string    `json:"trace,omitempty"`
}

// runJSON is the machine-readable form of a RunReport.
type runJSON struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	DurationMS int64      `json:"duration_ms"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Total      int        `json:"total"`
	Tasks      []taskJSON `json:"tasks"`
}

// JSON renders report as indented JSON.
func JSON(report *models.RunReport) ([]byte, error) {
	out := runJSON{
		RunID:      report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		DurationMS: report.Duration().Milliseconds(),
		Succeeded:  report.Succeeded(),
		Failed:     report.Failed(),
		Total:      len(report.Results),
		Tasks:      make([]taskJSON, 0, len(report.Results)),
	}
	for _, r := range report.Results {
		t := taskJSON{
			Name:       r.TaskName,
			Status:     r.Status,
			Attempts:   r.Attempts,
			StartedAt:  r.StartedAt,
			DurationMS: r.Duration.Milliseconds(),
			Trace:      r.Trace,
		}
		if r.Error != nil {
			t.Error = r.Error.Error()
		}
		out.Tasks = append(out.Tasks, t)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// Markdown renders report as a markdown document with a results table and a
// section per failed task holding its traceback.
func Markdown(report *models.RunReport) []byte {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Run %s\n\n", report.RunID)
	fmt.Fprintf(&sb, "- Started: %s\n", report.StartedAt.Format(time.RFC3339))
	if !report.FinishedAt.IsZero() {
		fmt.Fprintf(&sb, "- Finished: %s\n", report.FinishedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "- Succeeded: %d, Failed: %d, Total: %d\n\n", report.Succeeded(), report.Failed(), len(report.Results))

	sb.WriteString("| Task | Status | Elapsed | Attempts |\n")
	sb.WriteString("|------|--------|---------|----------|\n")
	for _, r := range report.Results {
		fmt.Fprintf(&sb, "| %s | %s | %s | %d |\n", escapeCell(r.TaskName), r.Status, Elapsed(r.Duration), r.Attempts)
	}

	failed := report.FailedResults()
	if len(failed) > 0 {
		sb.WriteString("\n## Failures\n")
		for _, r := range failed {
			fmt.Fprintf(&sb, "\n### %s\n\n", r.TaskName)
			trace := strings.TrimRight(r.Trace, "\n")
			if trace == "" && r.Error != nil {
				trace = r.Error.Error()
			}
			fence := codeFence(trace)
			sb.WriteString(fence + "\n")
			sb.WriteString(trace)
			sb.WriteString("\n" + fence + "\n")
		}
	}

	return []byte(sb.String())
}

// codeFence returns a backtick fence longer than any backtick run in text,
// so the text cannot close the code block early.
func codeFence(text string) string {
	longest, run := 0, 0
	for _, r := range text {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}

// HTML renders the markdown report to a standalone HTML page.
func HTML(report *models.RunReport) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))

	var body bytes.Buffer
	if err := md.Convert(Markdown(report), &body); err != nil {
		return nil, fmt.Errorf("failed to render HTML report: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>taskrunner run %s</title>\n", report.RunID)
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// Render encodes report in the format implied by path's extension.
func Render(path string, report *models.RunReport) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case FormatJSON:
		return JSON(report)
	case FormatMarkdown:
		return Markdown(report), nil
	case FormatHTML, ".htm":
		return HTML(report)
	default:
		return nil, ValidatePath(path)
	}
}

// WriteFile renders report and writes it to path atomically.
func WriteFile(path string, report *models.RunReport) error {
	data, err := Render(path, report)
	if err != nil {
		return err
	}
	if err := filelock.AtomicWrite(path, data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ValidatePath checks that path has a supported report extension.
func ValidatePath(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case FormatJSON, FormatMarkdown, FormatHTML, ".htm":
		return nil
	}
	return fmt.Errorf("unsupported report format %q (use .json, .md or .html)", filepath.Ext(path))
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
