package cmd

import (
	"strings"
	"testing"
)

func TestScheduleCommand_InvalidExpression(t *testing.T) {
	_, err := executeCommand(t, "schedule", "every tuesday")
	if err == nil {
		t.Fatal("expected an invalid cron expression error")
	}
	if !strings.Contains(err.Error(), "invalid cron expression") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestScheduleCommand_RequiresExpression(t *testing.T) {
	if _, err := executeCommand(t, "schedule"); err == nil {
		t.Fatal("expected an error without a cron expression")
	}
}
