package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"trace", "trace", LevelTrace},
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"case insensitive upper", "TRACE", LevelTrace},
		{"case insensitive mixed", "Warn", slog.LevelWarn},
		{"unknown name", "verbose", slog.LevelInfo},
		{"empty name", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLoggerLevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		showDebug bool
		showInfo  bool
	}{
		{"info hides debug", "info", false, true},
		{"debug shows debug", "debug", true, true},
		{"trace shows debug", "trace", true, true},
		{"warn hides info", "warn", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			if got := strings.Contains(buf.String(), "debug message"); got != tt.showDebug {
				t.Errorf("debug visible = %v, want %v (buf: %q)", got, tt.showDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			if got := strings.Contains(buf.String(), "info message"); got != tt.showInfo {
				t.Errorf("info visible = %v, want %v (buf: %q)", got, tt.showInfo, buf.String())
			}
		})
	}
}

func TestNewLoggerLabelsTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)

	logger.Log(context.Background(), LevelTrace, "deep detail")

	out := buf.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Errorf("trace record not labeled TRACE: %q", out)
	}
}

func TestLevelTraceBelowDebug(t *testing.T) {
	if LevelTrace >= slog.LevelDebug {
		t.Errorf("LevelTrace (%d) must sit below LevelDebug (%d)", LevelTrace, slog.LevelDebug)
	}
}

func TestNewTickLoggerDisabledAtInfo(t *testing.T) {
	for _, level := range []string{"info", "warn", "error", ""} {
		t.Run("level "+level, func(t *testing.T) {
			dir := t.TempDir()
			tl := NewTickLogger(dir, level)
			if tl != nil {
				t.Fatalf("NewTickLogger(%q) = %v, want nil", level, tl)
			}

			tl.Log(TickEvent{Tick: 0})

			if _, err := os.Stat(filepath.Join(dir, "ticks.jsonl")); err == nil {
				t.Error("ticks.jsonl exists although tick logging is disabled")
			}
		})
	}
}

func TestTickLoggerWritesEvent(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "debug")
	defer tl.Close()

	tl.Log(TickEvent{
		RunID:       "run-1",
		Tick:        3,
		Sampled:     12,
		Summaries:   11,
		Errors:      1,
		Events:      []string{"market-shock@3"},
		ActiveRatio: 0.87,
		ElapsedMs:   4.2,
	})

	data, err := os.ReadFile(filepath.Join(dir, "ticks.jsonl"))
	if err != nil {
		t.Fatalf("reading ticks.jsonl: %v", err)
	}

	var got TickEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("parsing tick line: %v", err)
	}
	if got.Tick != 3 || got.RunID != "run-1" {
		t.Errorf("event = %+v, want tick 3 of run-1", got)
	}
	if got.ActiveRatio != 0.87 {
		t.Errorf("active_ratio = %v, want 0.87", got.ActiveRatio)
	}
	if got.Time == "" {
		t.Error("event written without a timestamp")
	}
}

func TestTickLoggerAppendsLines(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "trace")
	defer tl.Close()

	tl.Log(TickEvent{Tick: 0})
	tl.Log(TickEvent{Tick: 1})

	data, err := os.ReadFile(filepath.Join(dir, "ticks.jsonl"))
	if err != nil {
		t.Fatalf("reading ticks.jsonl: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), string(data))
	}
	for i, line := range lines {
		var ev TickEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if ev.Tick != i {
			t.Errorf("line %d tick = %d, want %d", i, ev.Tick, i)
		}
	}
}

func TestTickLoggerNilSafety(t *testing.T) {
	var tl *TickLogger
	tl.Log(TickEvent{Tick: 0})
	tl.Close()
}

func TestTickLoggerLogAfterClose(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "debug")

	tl.Log(TickEvent{Tick: 0})
	tl.Close()
	tl.Log(TickEvent{Tick: 1})

	data, err := os.ReadFile(filepath.Join(dir, "ticks.jsonl"))
	if err != nil {
		t.Fatalf("reading ticks.jsonl: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 1 {
		t.Errorf("got %d lines, want 1 (write after Close must be dropped)", len(lines))
	}
}

func TestNewTickLoggerCreatesDir(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "sub", "dir")

	tl := NewTickLogger(nested, "debug")
	if tl == nil {
		t.Fatal("NewTickLogger = nil, want logger with created directory")
	}
	defer tl.Close()

	tl.Log(TickEvent{Tick: 0})

	if _, err := os.Stat(filepath.Join(nested, "ticks.jsonl")); err != nil {
		t.Fatalf("ticks.jsonl missing after dir creation: %v", err)
	}
}

func TestTickLoggerFilePermissions(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "debug")
	defer tl.Close()

	tl.Log(TickEvent{Tick: 0})

	info, err := os.Stat(filepath.Join(dir, "ticks.jsonl"))
	if err != nil {
		t.Fatalf("stat ticks.jsonl: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
