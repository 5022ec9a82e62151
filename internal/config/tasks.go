package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/taskrunner/internal/models"
	"gopkg.in/yaml.v3"
)

// RunAll is the selection keyword that runs every enabled task.
const RunAll = "all"

// TaskDefaults are applied to tasks that do not set their own retry policy.
type TaskDefaults struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// TaskFile is a loaded task list.
type TaskFile struct {
	Path     string        // Resolved path of the file that was read
	Tasks    []models.Task // Enabled, well-formed tasks in file order
	Disabled []string      // Names of tasks with enabled: false
	Warnings []string      // Entries that were skipped, with the reason
}

// taskEntry is the on-disk form of a task.
type taskEntry struct {
	Name        string            `yaml:"name"`
	Script      string            `yaml:"script"`
	Command     string            `yaml:"command"`
	Interpreter string            `yaml:"interpreter"`
	Args        []string          `yaml:"args"`
	Dir         string            `yaml:"dir"`
	Env         map[string]string `yaml:"env"`
	Enabled     *bool             `yaml:"enabled"`
	MaxAttempts int               `yaml:"max_attempts"`
	RetryDelay  string            `yaml:"retry_delay"`
}

type taskFileDefaults struct {
	MaxAttempts int    `yaml:"max_attempts"`
	RetryDelay  string `yaml:"retry_delay"`
}

type taskFileYAML struct {
	Defaults taskFileDefaults `yaml:"defaults"`
	Tasks    yaml.Node        `yaml:"tasks"`
}

// FindTasksFile returns path if it exists. A missing .yaml/.yml file falls
// back to a sibling .json file with the same base name.
func FindTasksFile(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	ext := filepath.Ext(path)
	if ext == ".yaml" || ext == ".yml" {
		jsonPath := strings.TrimSuffix(path, ext) + ".json"
		if _, err := os.Stat(jsonPath); err == nil {
			return jsonPath, nil
		}
	}

	return "", fmt.Errorf("missing tasks file: %s", path)
}

// LoadTasks reads a task list from a YAML or JSON file.
// Only enabled tasks are returned. Malformed entries and enabled tasks with
// nothing to run are skipped and reported in Warnings. Duplicate names and
// invalid retry settings are errors.
func LoadTasks(path string, defaults TaskDefaults) (*TaskFile, error) {
	resolved, err := FindTasksFile(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks file: %w", err)
	}

	raw, err := decodeTaskFile(resolved, data)
	if err != nil {
		return nil, fmt.Errorf("invalid tasks file %s: %w", resolved, err)
	}

	if raw.Defaults.MaxAttempts != 0 {
		defaults.MaxAttempts = raw.Defaults.MaxAttempts
	}
	if raw.Defaults.RetryDelay != "" {
		delay, err := time.ParseDuration(raw.Defaults.RetryDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid defaults.retry_delay %q: %w", raw.Defaults.RetryDelay, err)
		}
		defaults.RetryDelay = delay
	}

	baseDir, err := filepath.Abs(filepath.Dir(resolved))
	if err != nil {
		return nil, fmt.Errorf("resolve tasks file directory: %w", err)
	}

	tf := &TaskFile{Path: resolved, Tasks: []models.Task{}}

	switch {
	case raw.Tasks.Kind == 0, raw.Tasks.Kind == yaml.ScalarNode && raw.Tasks.Tag == "!!null":
		return tf, nil
	case raw.Tasks.Kind == yaml.SequenceNode:
	default:
		return nil, fmt.Errorf("`tasks` must be a list in %s", resolved)
	}

	seen := make(map[string]bool)
	for i, node := range raw.Tasks.Content {
		if node.Kind != yaml.MappingNode {
			tf.Warnings = append(tf.Warnings, fmt.Sprintf("skipping malformed task entry #%d (not an object)", i+1))
			continue
		}

		var entry taskEntry
		if err := node.Decode(&entry); err != nil {
			tf.Warnings = append(tf.Warnings, fmt.Sprintf("skipping malformed task entry #%d: %v", i+1, err))
			continue
		}

		if entry.Name == "" {
			tf.Warnings = append(tf.Warnings, fmt.Sprintf("skipping task entry #%d without a name", i+1))
			continue
		}
		if seen[entry.Name] {
			return nil, fmt.Errorf("duplicate task name %q in %s", entry.Name, resolved)
		}
		seen[entry.Name] = true

		if entry.Enabled != nil && !*entry.Enabled {
			tf.Disabled = append(tf.Disabled, entry.Name)
			continue
		}

		if entry.Script == "" && entry.Command == "" {
			tf.Warnings = append(tf.Warnings, fmt.Sprintf("task '%s' is enabled in config but defines no script or command", entry.Name))
			continue
		}

		task, err := entry.toTask(baseDir, defaults)
		if err != nil {
			return nil, err
		}
		if err := task.Validate(); err != nil {
			return nil, err
		}
		tf.Tasks = append(tf.Tasks, task)
	}

	return tf, nil
}

// decodeTaskFile parses YAML directly. JSON is decoded with encoding/json and
// re-encoded as a YAML node, since JSON files commonly use tab indentation
// that the YAML scanner rejects.
func decodeTaskFile(path string, data []byte) (*taskFileYAML, error) {
	var raw taskFileYAML

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		var doc yaml.Node
		if err := doc.Encode(v); err != nil {
			return nil, err
		}
		if err := doc.Decode(&raw); err != nil {
			return nil, err
		}
		return &raw, nil
	}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// toTask converts an entry, resolving paths against baseDir.
func (e taskEntry) toTask(baseDir string, defaults TaskDefaults) (models.Task, error) {
	task := models.Task{
		Name:        e.Name,
		Script:      e.Script,
		Command:     e.Command,
		Interpreter: e.Interpreter,
		Args:        e.Args,
		Dir:         e.Dir,
		Env:         e.Env,
		MaxAttempts: defaults.MaxAttempts,
		RetryDelay:  defaults.RetryDelay,
	}

	if e.MaxAttempts != 0 {
		task.MaxAttempts = e.MaxAttempts
	}
	if e.RetryDelay != "" {
		delay, err := time.ParseDuration(e.RetryDelay)
		if err != nil {
			return models.Task{}, fmt.Errorf("task %q: invalid retry_delay %q: %w", e.Name, e.RetryDelay, err)
		}
		task.RetryDelay = delay
	}

	if task.Script != "" && !filepath.IsAbs(task.Script) {
		task.Script = filepath.Join(baseDir, task.Script)
	}
	switch {
	case task.Dir == "":
		task.Dir = baseDir
	case !filepath.IsAbs(task.Dir):
		task.Dir = filepath.Join(baseDir, task.Dir)
	}

	return task, nil
}

// Names returns the enabled task names in file order.
func (tf *TaskFile) Names() []string {
	names := make([]string, 0, len(tf.Tasks))
	for _, t := range tf.Tasks {
		names = append(names, t.Name)
	}
	return names
}

// ErrTaskNotEnabled is returned when a requested task is not an enabled task.
var ErrTaskNotEnabled = errors.New("task is not enabled or not defined")

// Select returns the tasks to run for a request. "all" (or no names) selects
// every enabled task; otherwise the named tasks are returned in file order.
func (tf *TaskFile) Select(names []string) ([]models.Task, error) {
	if len(names) == 0 || (len(names) == 1 && names[0] == RunAll) {
		return append([]models.Task(nil), tf.Tasks...), nil
	}

	requested := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == RunAll {
			return nil, fmt.Errorf("%q cannot be combined with task names", RunAll)
		}
		requested[name] = true
	}

	var selected []models.Task
	for _, t := range tf.Tasks {
		if requested[t.Name] {
			selected = append(selected, t)
			delete(requested, t.Name)
		}
	}

	if len(requested) > 0 {
		var missing []string
		for _, name := range names {
			name = strings.TrimSpace(name)
			if requested[name] {
				missing = append(missing, name)
				delete(requested, name)
			}
		}
		enabled := strings.Join(tf.Names(), ", ")
		if enabled == "" {
			enabled = "(none enabled)"
		}
		return nil, fmt.Errorf("%w: %s\nEnabled tasks right now: %s", ErrTaskNotEnabled, strings.Join(missing, ", "), enabled)
	}

	return selected, nil
}
