package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelStringRoundTrip(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		got, err := ParseLevel(LevelString(level))
		if err != nil || got != level {
			t.Errorf("round trip of %v gave %v, %v", level, got, err)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat('') = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	cfg.Writer = &buf

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("span flushed", "text", "hunter2", "clipboard_text", "secret stuff", "length", 7)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log: %v", err)
	}
	if entry["text"] != "[REDACTED]" || entry["clipboard_text"] != "[REDACTED]" {
		t.Errorf("content not redacted: %v", entry)
	}
	if entry["length"] != float64(7) {
		t.Errorf("length should pass through: %v", entry["length"])
	}
	if entry["component"] != "deskrec" {
		t.Errorf("component = %v", entry["component"])
	}
	if strings.Contains(buf.String(), "hunter2") {
		t.Error("captured text leaked into log")
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Writer = &buf
	cfg.Component = ""

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.WithComponent("writer").Warn("batch failed")
	if !strings.Contains(buf.String(), "component=writer") {
		t.Errorf("missing component: %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Writer = &buf
	cfg.Level = LevelWarn

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestFileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(t.TempDir(), "logs", "deskrec.log")

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hello")
	if logger.FilePath() != cfg.FilePath {
		t.Errorf("FilePath = %s", logger.FilePath())
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestRotatorSizeRotation(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{FilePath: filepath.Join(dir, "deskrec.log"), MaxSize: 1, MaxBackups: 2}

	r, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("NewFileRotator failed: %v", err)
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 5; i++ {
		if _, err := r.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	backups, err := r.Backups()
	if err != nil {
		t.Fatalf("Backups failed: %v", err)
	}
	if len(backups) != 2 {
		t.Errorf("expected 2 retained backups, got %d: %v", len(backups), backups)
	}
	info, err := os.Stat(cfg.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != int64(len(chunk)) {
		t.Errorf("current file size = %d", info.Size())
	}
}

func TestRotatorDailyRotation(t *testing.T) {
	cfg := &Config{FilePath: filepath.Join(t.TempDir(), "deskrec.log"), MaxSize: 100, MaxBackups: 5}
	r, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("NewFileRotator failed: %v", err)
	}
	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	r.lastTime = now

	r.Write([]byte("day one\n"))
	now = now.Add(2 * time.Minute)
	r.Write([]byte("day two\n"))
	r.Close()

	backups, _ := r.Backups()
	if len(backups) != 1 {
		t.Fatalf("expected one backup, got %v", backups)
	}
	data, _ := os.ReadFile(cfg.FilePath)
	if string(data) != "day two\n" {
		t.Errorf("current file = %q", data)
	}
}

func TestRotatorDropsExpiredBackups(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{FilePath: filepath.Join(dir, "deskrec.log"), MaxSize: 100, MaxBackups: 5, MaxAge: 7}
	r, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("NewFileRotator failed: %v", err)
	}
	defer r.Close()

	old := filepath.Join(dir, "deskrec-20260101-000000.000.log")
	recent := filepath.Join(dir, "deskrec-20260301-000000.000.log.gz")
	for _, p := range []string{old, recent} {
		if err := os.WriteFile(p, []byte("x"), 0640); err != nil {
			t.Fatal(err)
		}
	}
	expired := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(old, expired, expired); err != nil {
		t.Fatal(err)
	}

	r.cleanup()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("expired backup kept: %v", err)
	}
	if _, err := os.Stat(recent); err != nil {
		t.Errorf("recent backup removed: %v", err)
	}
}

func TestCrashHandlerRecovers(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Writer = &buf
	logger, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	h := NewCrashHandler(dir, "test", logger.Logger)
	h.SetSessionID("sess-1")
	var seen []CrashReport
	h.OnCrash(func(r CrashReport) { seen = append(seen, r) })

	func() {
		defer h.Recover("clipboard")
		panic("boom")
	}()

	if len(seen) != 1 || seen[0].PanicValue != "boom" || seen[0].SessionID != "sess-1" {
		t.Fatalf("unexpected reports: %+v", seen)
	}
	reports, err := h.Reports()
	if err != nil || len(reports) != 1 {
		t.Fatalf("Reports = %v, %v", reports, err)
	}
	if reports[0].Component != "clipboard" || !strings.Contains(reports[0].StackTrace, "panic") {
		t.Errorf("report = %+v", reports[0])
	}
	if !strings.Contains(buf.String(), "goroutine panicked") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestNilCrashHandlerStillRecovers(t *testing.T) {
	var h *CrashHandler
	func() {
		defer h.Recover("x")
		panic("ignored")
	}()
}
