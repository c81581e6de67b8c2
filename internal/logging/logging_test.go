package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")
	logger.Info("webhook processed", "event", "subscription.updated")
	logger.Debug("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["msg"] != "webhook processed" {
		t.Errorf("msg = %v, want %q", rec["msg"], "webhook processed")
	}
	if rec["event"] != "subscription.updated" {
		t.Errorf("event = %v, want %q", rec["event"], "subscription.updated")
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "").Debug("plan sync complete", "plans_created", 2)

	out := buf.String()
	if !strings.Contains(out, "msg=\"plan sync complete\"") {
		t.Errorf("output = %q, want text record", out)
	}
	if !strings.Contains(out, "plans_created=2") {
		t.Errorf("output = %q, want plans_created attribute", out)
	}
}
