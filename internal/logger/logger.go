package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// current is the process-wide structured logger. Helpers below are no-ops
// until Init has been called.
var current atomic.Pointer[slog.Logger]

// sinkMu guards sinkFile, the log file opened by the latest Init
var (
	sinkMu   sync.Mutex
	sinkFile *os.File
)

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init configures the global logger. sink is "" or "stdout" for standard
// output, "stderr", or "file:/path/to/log". format "json" selects the JSON
// handler, anything else the text handler.
//
// The returned func closes the file sink, if any, and is safe to call more
// than once. A later Init closes the file opened by the previous one.
func Init(level, format, sink string) func() error {
	var (
		w    io.Writer = os.Stdout
		file *os.File
	)
	switch {
	case sink == "stderr":
		w = os.Stderr
	case strings.HasPrefix(sink, "file:"):
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			w, file = f, f
		} else {
			// fallback to stdout
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		}
	}

	InitWithWriter(w, level, format)

	sinkMu.Lock()
	previous := sinkFile
	sinkFile = file
	sinkMu.Unlock()
	if previous != nil {
		_ = previous.Close()
	}

	return func() error { return closeSink(file) }
}

// closeSink closes f if it is still the active sink
func closeSink(f *os.File) error {
	if f == nil {
		return nil
	}
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if sinkFile != f {
		return nil
	}
	sinkFile = nil
	return f.Close()
}

// InitWithWriter configures the global logger to write to w
func InitWithWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	current.Store(slog.New(h))
}

// Debug logs with slog-style key/value pairs.
func Debug(msg string, args ...any) {
	if l := current.Load(); l != nil {
		l.Debug(msg, args...)
	}
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	if l := current.Load(); l != nil {
		l.Info(msg, args...)
	}
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	if l := current.Load(); l != nil {
		l.Warn(msg, args...)
	}
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	if l := current.Load(); l != nil {
		l.Error(msg, args...)
	}
}
