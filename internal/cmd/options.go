package cmd

import (
	"fmt"
	"time"

	"github.com/harrison/taskrunner/internal/config"
	"github.com/spf13/cobra"
)

// addRunFlags registers the flags shared by run and schedule.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to config file (default: .taskrunner/config.yaml)")
	cmd.Flags().String("tasks", "", "Path to the task list (YAML or JSON)")
	cmd.Flags().String("log-dir", "", "Directory for log files")
	cmd.Flags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.Flags().Bool("verbose", false, "Shorthand for --log-level debug")
	cmd.Flags().Int("max-attempts", 0, "Default attempts per task, first try included (tasks may override)")
	cmd.Flags().String("retry-delay", "", "Default delay between attempts (e.g., 500ms, 5s)")
	cmd.Flags().String("timeout", "", "Maximum time for the whole run (e.g., 30m, 2h; 0 = none)")
	cmd.Flags().String("report", "", "Write a report file (.json, .md or .html)")
	cmd.Flags().Bool("no-history", false, "Do not record the run in the history database")
	cmd.Flags().Bool("quiet", false, "Do not echo script output")
}

// loadConfig loads the config file named by --config (or the default
// location) and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	flags, err := flagOverrides(cmd)
	if err != nil {
		return nil, err
	}
	cfg.MergeWithFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// flagOverrides collects only the flags that were set on the command line.
func flagOverrides(cmd *cobra.Command) (config.Flags, error) {
	var f config.Flags
	changed := func(name string) bool {
		return cmd.Flags().Lookup(name) != nil && cmd.Flags().Changed(name)
	}

	if changed("tasks") {
		v, _ := cmd.Flags().GetString("tasks")
		f.TasksFile = &v
	}
	if changed("log-dir") {
		v, _ := cmd.Flags().GetString("log-dir")
		f.LogDir = &v
	}
	if changed("log-level") {
		v, _ := cmd.Flags().GetString("log-level")
		f.LogLevel = &v
	}
	if changed("verbose") {
		if v, _ := cmd.Flags().GetBool("verbose"); v {
			level := "debug"
			f.LogLevel = &level
		}
	}
	if changed("max-attempts") {
		v, _ := cmd.Flags().GetInt("max-attempts")
		f.MaxAttempts = &v
	}
	if changed("retry-delay") {
		d, err := parseDurationFlag(cmd, "retry-delay")
		if err != nil {
			return f, err
		}
		f.RetryDelay = &d
	}
	if changed("timeout") {
		d, err := parseDurationFlag(cmd, "timeout")
		if err != nil {
			return f, err
		}
		f.Timeout = &d
	}
	if changed("dry-run") {
		v, _ := cmd.Flags().GetBool("dry-run")
		f.DryRun = &v
	}
	if changed("quiet") {
		if v, _ := cmd.Flags().GetBool("quiet"); v {
			echo := false
			f.EchoOutput = &echo
		}
	}
	if changed("no-history") {
		v, _ := cmd.Flags().GetBool("no-history")
		f.NoHistory = &v
	}
	return f, nil
}

func parseDurationFlag(cmd *cobra.Command, name string) (time.Duration, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s value %q: %w", name, s, err)
	}
	return d, nil
}
