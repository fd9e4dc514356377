package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":  slog.LevelDebug,
		"debug":  slog.LevelDebug,
		" warn ": slog.LevelWarn,
		"ERROR":  slog.LevelError,
		"":       slog.LevelInfo,
		"bogus":  slog.LevelInfo,
	}

	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithRunID(NewLogger(&buf, "INFO", "json"), "abc")

	logger.Debug("hidden")
	logger.Info("run queued")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if entry["run_id"] != "abc" || entry["msg"] != "run queued" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "DEBUG", "text").Debug("compiled", "task", "scheduler.prepare")

	if !strings.Contains(buf.String(), "task=scheduler.prepare") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestLoggerContext(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)

	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger without value in context")
	}
}
