package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/taskrunner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *models.RunReport {
	start := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	report := models.NewRunReport("run-123", start)
	report.Add(models.TaskResult{
		TaskName:  "build",
		Status:    models.StatusSuccess,
		Attempts:  1,
		StartedAt: start,
		Duration:  210 * time.Millisecond,
	})
	report.Add(models.TaskResult{
		TaskName:  "deploy",
		Status:    models.StatusFailure,
		Attempts:  3,
		StartedAt: start.Add(time.Second),
		Duration:  3004 * time.Millisecond,
		Error:     errors.New("task deploy failed on attempt 3: exit status 1"),
		Trace:     "task deploy failed on attempt 3: exit status 1\nExit code: 1\n",
	})
	report.Finish(start.Add(5 * time.Second))
	return report
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, sampleReport(), false)

	out := buf.String()
	assert.Contains(t, out, "build   SUCCESS    0.210s  1 attempt(s)")
	assert.Contains(t, out, "deploy  FAILURE    3.004s  3 attempt(s)")
	assert.Contains(t, out, "Succeeded: 1  Failed: 1  Total: 2")
	assert.Contains(t, out, "Failed tasks: deploy")
	assert.NotContains(t, out, "\x1b[")
	assert.Less(t, strings.Index(out, "build"), strings.Index(out, "deploy"))
}

func TestPrintSummary_AllSucceeded(t *testing.T) {
	report := models.NewRunReport("run-1", time.Now())
	report.Add(models.TaskResult{TaskName: "a", Status: models.StatusSuccess, Attempts: 1})

	var buf bytes.Buffer
	PrintSummary(&buf, report, false)

	assert.Contains(t, buf.String(), "Succeeded: 1  Failed: 0  Total: 1")
	assert.NotContains(t, buf.String(), "Failed tasks")
}

func TestPrintSummary_EmptyRun(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, models.NewRunReport("run-0", time.Now()), false)
	assert.Contains(t, buf.String(), "Succeeded: 0  Failed: 0  Total: 0")
}

func TestJSON(t *testing.T) {
	data, err := JSON(sampleReport())
	require.NoError(t, err)

	var decoded runJSON
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "run-123", decoded.RunID)
	assert.Equal(t, int64(5000), decoded.DurationMS)
	assert.Equal(t, 1, decoded.Succeeded)
	assert.Equal(t, 1, decoded.Failed)
	assert.Equal(t, 2, decoded.Total)
	require.Len(t, decoded.Tasks, 2)
	assert.Equal(t, "build", decoded.Tasks[0].Name)
	assert.Empty(t, decoded.Tasks[0].Error)
	assert.Equal(t, "FAILURE", decoded.Tasks[1].Status)
	assert.Equal(t, int64(3004), decoded.Tasks[1].DurationMS)
	assert.Contains(t, decoded.Tasks[1].Error, "exit status 1")
}

func TestMarkdown(t *testing.T) {
	md := string(Markdown(sampleReport()))

	assert.Contains(t, md, "# Run run-123")
	assert.Contains(t, md, "| build | SUCCESS | 0.210s | 1 |")
	assert.Contains(t, md, "| deploy | FAILURE | 3.004s | 3 |")
	assert.Contains(t, md, "### deploy")
	assert.Contains(t, md, "Exit code: 1")
	assert.NotContains(t, md, "### build")
}

func TestCodeFence(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"plain trace", "```"},
		{"one ` tick", "```"},
		{"has ``` inside", "````"},
		{"run ````` of five", "``````"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, codeFence(tt.text), tt.text)
	}
}

func TestHTML_TraceWithBackticksStaysInCodeBlock(t *testing.T) {
	start := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	report := models.NewRunReport("run-456", start)
	report.Add(models.TaskResult{
		TaskName: "docs",
		Status:   models.StatusFailure,
		Attempts: 1,
		Trace:    "Output:\n```\n# not a heading\n```\n",
	})
	report.Add(models.TaskResult{
		TaskName: "lint",
		Status:   models.StatusFailure,
		Attempts: 1,
		Trace:    "lint failed",
	})
	report.Finish(start.Add(time.Second))

	md := string(Markdown(report))
	assert.Contains(t, md, "````\nOutput:\n```\n# not a heading\n```\n````\n")

	page, err := HTML(report)
	require.NoError(t, err)
	html := string(page)
	assert.NotContains(t, html, "<h1>not a heading</h1>")
	assert.Contains(t, html, "# not a heading")
	assert.Contains(t, html, "<h3")
	assert.Contains(t, html, "lint</h3>")
}

func TestHTML(t *testing.T) {
	page, err := HTML(sampleReport())
	require.NoError(t, err)

	html := string(page)
	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<td>deploy</td>")
	assert.Contains(t, html, "<h3")
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.json", "out.md", "out.html"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "reports", name)
			require.NoError(t, WriteFile(path, sampleReport()))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Contains(t, string(data), "deploy")
		})
	}
}

func TestWriteFile_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	err := WriteFile(path, sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported report format")
	assert.NoFileExists(t, path)
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, ValidatePath("r.JSON"))
	assert.NoError(t, ValidatePath("r.md"))
	assert.NoError(t, ValidatePath("r.htm"))
	assert.Error(t, ValidatePath("r"))
}
