package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/harrison/taskrunner/internal/config"
	"github.com/harrison/taskrunner/internal/display"
	"github.com/harrison/taskrunner/internal/models"
	"github.com/spf13/cobra"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the task list",
		Long: `Load the task list and check it for problems:
  - The file parses and every enabled task has a name
  - Task names are unique
  - Each enabled task has exactly one of script or command
  - Scripts exist, and are executable when no interpreter is set
  - Working directories exist

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return validateTasksWithOutput(cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("config", "", "Path to config file (default: .taskrunner/config.yaml)")
	cmd.Flags().String("tasks", "", "Path to the task list (YAML or JSON)")

	return cmd
}

// validateTasksWithOutput validates the configured task list, writing a report to output
func validateTasksWithOutput(cfg *config.Config, output io.Writer) error {
	taskFile, err := config.LoadTasks(cfg.TasksFile, config.TaskDefaults{
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
	})
	if err != nil {
		fmt.Fprintf(output, "✗ Failed to load tasks from %s\n", cfg.TasksFile)
		fmt.Fprintf(output, "  Error: %v\n", err)
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(output, "✓ Loaded %d enabled task(s) from %s\n", len(taskFile.Tasks), taskFile.Path)
	if len(taskFile.Disabled) > 0 {
		fmt.Fprintf(output, "  %d disabled task(s) skipped\n", len(taskFile.Disabled))
	}
	if len(taskFile.Warnings) > 0 {
		display.TaskFileWarning(taskFile.Path, taskFile.Warnings).Display(output, false)
	}

	var problems []string
	for _, t := range taskFile.Tasks {
		problems = append(problems, checkTask(t)...)
	}

	if len(problems) == 0 {
		fmt.Fprintf(output, "✓ All scripts and directories found\n")
		fmt.Fprintf(output, "\n✓ Task list is valid!\n")
		return nil
	}

	fmt.Fprintf(output, "\n✗ Validation failed\n")
	for _, p := range problems {
		fmt.Fprintf(output, "  ✗ %s\n", p)
	}
	fmt.Fprintf(output, "\nFound %d validation error(s)!\n", len(problems))
	return fmt.Errorf("found %d validation error(s)", len(problems))
}

// checkTask reports filesystem problems that would make task fail to start.
func checkTask(t models.Task) []string {
	var problems []string

	if t.Dir != "" {
		if info, err := os.Stat(t.Dir); err != nil {
			problems = append(problems, fmt.Sprintf("task %s: working directory %s not found", t.Name, t.Dir))
		} else if !info.IsDir() {
			problems = append(problems, fmt.Sprintf("task %s: %s is not a directory", t.Name, t.Dir))
		}
	}

	if t.Script == "" {
		return problems
	}

	info, err := os.Stat(t.Script)
	switch {
	case err != nil:
		problems = append(problems, fmt.Sprintf("task %s: script %s not found", t.Name, t.Script))
	case info.IsDir():
		problems = append(problems, fmt.Sprintf("task %s: script %s is a directory", t.Name, t.Script))
	case t.Interpreter == "" && info.Mode().Perm()&0111 == 0:
		problems = append(problems, fmt.Sprintf("task %s: script %s is not executable (set an interpreter or chmod +x)", t.Name, t.Script))
	}
	return problems
}
