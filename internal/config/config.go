package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// HistoryConfig represents run history configuration
type HistoryConfig struct {
	// Enabled records every run in the history database
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database
	DBPath string `yaml:"db_path"`
}

// Config represents taskrunner configuration options
type Config struct {
	// TasksFile is the task list to load (YAML or JSON)
	TasksFile string `yaml:"tasks_file"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where logs will be written
	LogDir string `yaml:"log_dir"`

	// MaxAttempts is the default total attempts per task
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelay is the default fixed pause between attempts
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Timeout bounds a whole run (0 = no timeout)
	Timeout time.Duration `yaml:"timeout"`

	// EchoOutput copies script output to the console while tasks run
	EchoOutput bool `yaml:"echo_output"`

	// DryRun lists the selected tasks without executing them
	DryRun bool `yaml:"dry_run"`

	// History contains run history configuration
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values.
// Log and history paths live under HomeDir("."), so TASKRUNNER_HOME moves them.
func DefaultConfig() *Config {
	return defaultConfigForHome(HomeDir("."))
}

// defaultConfigForHome returns the defaults with log and history paths under home.
func defaultConfigForHome(home string) *Config {
	return &Config{
		TasksFile:   "tasks.yaml",
		LogLevel:    "info",
		LogDir:      filepath.Join(home, "logs"),
		MaxAttempts: 3,
		RetryDelay:  0,
		Timeout:     0,
		EchoOutput:  true,
		DryRun:      false,
		History: HistoryConfig{
			Enabled: true,
			DBPath:  filepath.Join(home, "history.db"),
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	return loadConfig(path, DefaultConfig())
}

// loadConfig overlays the file at path onto cfg.
func loadConfig(path string, cfg *Config) (*Config, error) {

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations are strings in YAML and optional booleans need presence
	// detection, so decode into pointers first.
	type yamlHistory struct {
		Enabled *bool  `yaml:"enabled"`
		DBPath  string `yaml:"db_path"`
	}
	type yamlConfig struct {
		TasksFile   string       `yaml:"tasks_file"`
		LogLevel    string       `yaml:"log_level"`
		LogDir      string       `yaml:"log_dir"`
		MaxAttempts int          `yaml:"max_attempts"`
		RetryDelay  string       `yaml:"retry_delay"`
		Timeout     string       `yaml:"timeout"`
		EchoOutput  *bool        `yaml:"echo_output"`
		DryRun      bool         `yaml:"dry_run"`
		History     *yamlHistory `yaml:"history"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.TasksFile != "" {
		cfg.TasksFile = yamlCfg.TasksFile
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.MaxAttempts != 0 {
		cfg.MaxAttempts = yamlCfg.MaxAttempts
	}
	if yamlCfg.RetryDelay != "" {
		delay, err := time.ParseDuration(yamlCfg.RetryDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid retry_delay format %q: %w", yamlCfg.RetryDelay, err)
		}
		cfg.RetryDelay = delay
	}
	if yamlCfg.Timeout != "" {
		timeout, err := time.ParseDuration(yamlCfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format %q: %w", yamlCfg.Timeout, err)
		}
		cfg.Timeout = timeout
	}
	if yamlCfg.EchoOutput != nil {
		cfg.EchoOutput = *yamlCfg.EchoOutput
	}
	if yamlCfg.DryRun {
		cfg.DryRun = yamlCfg.DryRun
	}
	if yamlCfg.History != nil {
		if yamlCfg.History.Enabled != nil {
			cfg.History.Enabled = *yamlCfg.History.Enabled
		}
		if yamlCfg.History.DBPath != "" {
			cfg.History.DBPath = yamlCfg.History.DBPath
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .taskrunner/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error.
// Default log and history paths are placed in the same home directory.
func LoadConfigFromDir(dir string) (*Config, error) {
	home := HomeDir(dir)
	return loadConfig(filepath.Join(home, "config.yaml"), defaultConfigForHome(home))
}

// Flags holds CLI overrides. Nil fields were not set on the command line.
type Flags struct {
	TasksFile   *string
	LogLevel    *string
	LogDir      *string
	MaxAttempts *int
	RetryDelay  *time.Duration
	Timeout     *time.Duration
	EchoOutput  *bool
	DryRun      *bool
	NoHistory   *bool
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(f Flags) {
	if f.TasksFile != nil {
		c.TasksFile = *f.TasksFile
	}
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
	if f.LogDir != nil {
		c.LogDir = *f.LogDir
	}
	if f.MaxAttempts != nil {
		c.MaxAttempts = *f.MaxAttempts
	}
	if f.RetryDelay != nil {
		c.RetryDelay = *f.RetryDelay
	}
	if f.Timeout != nil {
		c.Timeout = *f.Timeout
	}
	if f.EchoOutput != nil {
		c.EchoOutput = *f.EchoOutput
	}
	if f.DryRun != nil {
		c.DryRun = *f.DryRun
	}
	if f.NoHistory != nil && *f.NoHistory {
		c.History.Enabled = false
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.TasksFile == "" {
		return fmt.Errorf("tasks_file cannot be empty")
	}

	if c.LogDir == "" {
		return fmt.Errorf("log_dir cannot be empty")
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", c.MaxAttempts)
	}

	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must be >= 0, got %v", c.RetryDelay)
	}

	// Timeout can be 0 (no timeout) or positive, negative is invalid
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}

	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path cannot be empty when history is enabled")
	}

	return nil
}
