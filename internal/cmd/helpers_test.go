package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// writeFile creates a file under dir with the given mode
func writeFile(t *testing.T, dir, name, content string, mode os.FileMode) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// executeCommand runs the root command with args and returns combined output
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	rootCmd := NewRootCommand()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return buf.String(), err
}
