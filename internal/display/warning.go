// Package display formats user-facing warnings for the taskrunner CLI.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Warning represents a user-facing warning message
type Warning struct {
	Title      string   // Main warning title
	Details    []string // One line per detail (optional)
	Files      []string // Related files (optional)
	Suggestion string   // Action to take (optional)
}

// Render formats the warning, in yellow when useColor is true.
//
//	Warning: 2 task entries skipped
//	    - skipping task entry #3 without a name
//	    Affected file:
//	      1. tasks.yaml
//	    Suggestion:
//	    Fix the entries or set enabled: false
func (w Warning) Render(useColor bool) string {
	var b strings.Builder

	b.WriteString("Warning: ")
	b.WriteString(w.Title)
	b.WriteString("\n")

	for _, d := range w.Details {
		b.WriteString("    - ")
		b.WriteString(d)
		b.WriteString("\n")
	}

	if len(w.Files) > 0 {
		if len(w.Files) == 1 {
			b.WriteString("    Affected file:\n")
		} else {
			b.WriteString("    Affected files:\n")
		}
		for i, file := range w.Files {
			b.WriteString(fmt.Sprintf("      %d. %s\n", i+1, file))
		}
	}

	if w.Suggestion != "" {
		b.WriteString("    Suggestion:\n")
		b.WriteString("    ")
		b.WriteString(w.Suggestion)
		b.WriteString("\n")
	}

	if !useColor {
		return b.String()
	}
	return color.New(color.FgYellow).Sprint(b.String())
}

// Display writes the rendered warning to out.
func (w Warning) Display(out io.Writer, useColor bool) {
	fmt.Fprint(out, w.Render(useColor))
}

// TaskFileWarning summarizes the entries skipped while loading a task list.
func TaskFileWarning(path string, skipped []string) Warning {
	title := "1 task entry skipped"
	if len(skipped) != 1 {
		title = fmt.Sprintf("%d task entries skipped", len(skipped))
	}
	return Warning{
		Title:      title,
		Details:    skipped,
		Files:      []string{path},
		Suggestion: "Give every enabled task a name and a script or command, or set enabled: false",
	}
}
