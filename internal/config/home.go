package config

import (
	"os"
	"path/filepath"
)

// HomeEnv names the environment variable that overrides the runner home.
const HomeEnv = "TASKRUNNER_HOME"

// HomeDir returns the taskrunner home directory for dir.
// Priority order:
//  1. TASKRUNNER_HOME environment variable (if set)
//  2. <dir>/.taskrunner
//
// The directory is not created.
func HomeDir(dir string) string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	return filepath.Join(dir, ".taskrunner")
}
