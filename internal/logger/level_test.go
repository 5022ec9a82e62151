package logger

import "testing"

func TestNormalizeLogLevel(t *testing.T) {
	tests := map[string]string{
		"TRACE":   "trace",
		" Debug ": "debug",
		"info":    "info",
		"WARN":    "warn",
		"error":   "error",
		"fatal":   "info",
		"":        "info",
	}
	for in, want := range tests {
		if got := normalizeLogLevel(in); got != want {
			t.Errorf("normalizeLogLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLevelFilterAllows(t *testing.T) {
	if !levelFilter("warn").allows("error") {
		t.Error("warn filter should allow error")
	}
	if levelFilter("warn").allows("info") {
		t.Error("warn filter should reject info")
	}
	if !levelFilter("trace").allows("trace") {
		t.Error("trace filter should allow trace")
	}
}
