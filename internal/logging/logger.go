// Package logging builds simcast's loggers: a leveled slog.Logger for
// operational output, and an optional JSONL tick log that records one
// line per simulation tick for offline diagnosis.
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace sits below Debug and carries full per-agent content.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a level name to its slog.Level, case-insensitively.
// Known names are trace, debug, info, warn and error; anything else
// falls back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger writing to w at the named level.
func NewLogger(level string, w io.Writer) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: labelTraceLevel,
	})
	return slog.New(h)
}

// labelTraceLevel names the custom trace level in handler output; slog
// would otherwise print it as DEBUG-4.
func labelTraceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// TickEvent is one tick's diagnostic record as it lands in the tick log.
type TickEvent struct {
	Time        string   `json:"time"`
	RunID       string   `json:"run_id"`
	Tick        int      `json:"tick"`
	Sampled     int      `json:"sampled"`
	Summaries   int      `json:"summaries"`
	Errors      int      `json:"errors"`
	Events      []string `json:"events,omitempty"`
	ActiveRatio float64  `json:"active_ratio"`
	ElapsedMs   float64  `json:"elapsed_ms"`
}

// TickLogger appends tick events to ticks.jsonl, one JSON object per
// line. All methods are safe for concurrent use and are no-ops on a nil
// receiver, so callers never guard the disabled case.
type TickLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewTickLogger opens dir/ticks.jsonl for appending. Tick logging only
// exists below info level: at info and above the logger is nil. Nil is
// also returned when the directory or file cannot be created.
func NewTickLogger(dir, level string) *TickLogger {
	if ParseLevel(level) >= slog.LevelInfo {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "ticks.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &TickLogger{file: f}
}

// Log appends one event. The write timestamp is filled in here.
func (tl *TickLogger) Log(ev TickEvent) {
	if tl == nil {
		return
	}
	ev.Time = time.Now().UTC().Format(time.RFC3339Nano)
	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	line = append(line, '\n')

	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file == nil {
		return
	}
	_, _ = tl.file.Write(line)
}

// Close releases the log file. Later Log calls become no-ops.
func (tl *TickLogger) Close() {
	if tl == nil {
		return
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file == nil {
		return
	}
	tl.file.Close()
	tl.file = nil
}
