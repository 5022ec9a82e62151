package logger

import (
	"strings"
	"testing"
)

func TestProgressBar_Render(t *testing.T) {
	tests := []struct {
		name    string
		current int
		total   int
		want    string
	}{
		{"empty", 0, 4, "[          ] 0/4 (0%)"},
		{"half", 2, 4, "[=====     ] 2/4 (50%)"},
		{"full", 4, 4, "[==========] 4/4 (100%)"},
		{"overflow clamps", 6, 4, "[==========] 6/4 (100%)"},
		{"zero total", 0, 0, "[          ] 0/0 (0%)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pb := NewProgressBar(tt.total, 10, false)
			pb.Update(tt.current)
			if got := pb.Render(); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProgressBar_DefaultWidth(t *testing.T) {
	pb := NewProgressBar(2, 0, false)
	pb.Update(1)
	if got := pb.Render(); !strings.HasPrefix(got, "[=====     ]") {
		t.Errorf("expected default width of 10, got %q", got)
	}
}
