package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew(t *testing.T) {
	t.Run("development uses tint", func(t *testing.T) {
		var dev, prod bytes.Buffer
		New(&dev, &prod, "development", slog.LevelInfo).Info("Group created", "group_id", "g1")
		if prod.Len() != 0 {
			t.Errorf("unexpected production output: %q", prod.String())
		}
		if !strings.Contains(dev.String(), "Group created") || !strings.Contains(dev.String(), "g1") {
			t.Errorf("dev output = %q", dev.String())
		}
	})

	t.Run("production uses JSON", func(t *testing.T) {
		var dev, prod bytes.Buffer
		logger := New(&dev, &prod, "production", slog.LevelWarn)
		logger.Info("dropped")
		logger.Warn("Session watcher is full", "session_id", "s1")

		var entry map[string]any
		if err := json.Unmarshal(prod.Bytes(), &entry); err != nil {
			t.Fatalf("output is not one JSON object: %v (%q)", err, prod.String())
		}
		if entry["msg"] != "Session watcher is full" || entry["session_id"] != "s1" {
			t.Errorf("entry = %v", entry)
		}
		if dev.Len() != 0 {
			t.Errorf("unexpected dev output: %q", dev.String())
		}
	})
}
