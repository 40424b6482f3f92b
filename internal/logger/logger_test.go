package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHelpers_NilLoggerIsSafe(t *testing.T) {
	prev := current.Swap(nil)
	defer current.Store(prev)

	Debug("d")
	Info("i", "k", "v")
	Warn("w")
	Error("e")
}

func TestInitWithWriter_FiltersByLevel(t *testing.T) {
	prev := current.Load()
	defer current.Store(prev)

	var buf bytes.Buffer
	InitWithWriter(&buf, "warn", "text")
	Info("hidden")
	Warn("shown", "session_id", "s1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Expected info record to be filtered at warn level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "session_id=s1") {
		t.Errorf("Expected warn record with attrs, got %q", out)
	}
}

func TestInitWithWriter_JSON(t *testing.T) {
	prev := current.Load()
	defer current.Store(prev)

	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")
	Debug("event_applied", "event", "send-message")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Expected JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "event_applied" || rec["event"] != "send-message" {
		t.Errorf("Unexpected record: %v", rec)
	}
}

func TestInit_FileSink(t *testing.T) {
	prev := current.Load()
	defer current.Store(prev)

	path := filepath.Join(t.TempDir(), "lessonchat.log")
	closeLog := Init("info", "text", "file:"+path)
	Info("written_to_file", "session_id", "s1")

	sinkMu.Lock()
	f := sinkFile
	sinkMu.Unlock()
	if f == nil {
		t.Fatal("Expected an open file sink")
	}

	if err := closeLog(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := closeLog(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
	if _, err := f.Write([]byte("x")); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Expected file to be closed, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "written_to_file") {
		t.Errorf("Expected record in file, got %q", data)
	}
}

func TestInit_ReplacingFileSinkClosesPrevious(t *testing.T) {
	prev := current.Load()
	defer current.Store(prev)

	dir := t.TempDir()
	closeFirst := Init("info", "text", "file:"+filepath.Join(dir, "first.log"))
	sinkMu.Lock()
	first := sinkFile
	sinkMu.Unlock()

	closeSecond := Init("info", "text", "stderr")
	defer closeSecond()

	if _, err := first.Write([]byte("x")); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Expected previous sink to be closed, got %v", err)
	}
	if err := closeFirst(); err != nil {
		t.Errorf("Closing a replaced sink should be a no-op, got %v", err)
	}
}

func TestHelpers_ConcurrentInit(t *testing.T) {
	prev := current.Load()
	defer current.Store(prev)

	var buf syncBuffer
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			InitWithWriter(&buf, "debug", "text")
		}()
		go func() {
			defer wg.Done()
			Info("concurrent")
		}()
	}
	wg.Wait()
}

// syncBuffer is a bytes.Buffer safe for concurrent writers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
