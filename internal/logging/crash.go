package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport is written to disk when a background goroutine panics.
type CrashReport struct {
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version,omitempty"`
	GOOS         string    `json:"goos"`
	GOARCH       string    `json:"goarch"`
	NumGoroutine int       `json:"num_goroutine"`
	PanicValue   string    `json:"panic_value"`
	StackTrace   string    `json:"stack_trace"`
	Component    string    `json:"component"`
	SessionID    string    `json:"session_id,omitempty"`
}

// CrashHandler recovers panics in recorder goroutines and keeps a report
// of each one. A nil handler only recovers.
type CrashHandler struct {
	mu        sync.Mutex
	dir       string
	version   string
	sessionID string
	logger    *slog.Logger
	onCrash   func(CrashReport)
}

// NewCrashHandler writes reports under dir.
func NewCrashHandler(dir, version string, logger *slog.Logger) *CrashHandler {
	if logger == nil {
		logger = Discard()
	}
	return &CrashHandler{dir: dir, version: version, logger: logger}
}

// SetSessionID tags subsequent reports.
func (h *CrashHandler) SetSessionID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessionID = id
}

// OnCrash registers a callback run after a report is written.
func (h *CrashHandler) OnCrash(fn func(CrashReport)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCrash = fn
}

// Recover must be deferred directly:
//
//	defer crash.Recover("clipboard")
func (h *CrashHandler) Recover(component string) {
	if r := recover(); r != nil {
		if h == nil {
			panic(r)
		}
		h.HandlePanic(component, r)
	}
}

// HandlePanic records a recovered panic value.
func (h *CrashHandler) HandlePanic(component string, value any) {
	if h == nil {
		return
	}
	h.mu.Lock()
	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", value),
		StackTrace:   string(debug.Stack()),
		Component:    component,
		SessionID:    h.sessionID,
	}
	onCrash := h.onCrash
	h.mu.Unlock()

	path, err := h.write(report)
	if err != nil {
		h.logger.Error("goroutine panicked", "panic_component", component, "panic", report.PanicValue, "report_error", err)
	} else {
		h.logger.Error("goroutine panicked", "panic_component", component, "panic", report.PanicValue, "report", path)
	}
	if onCrash != nil {
		onCrash(report)
	}
}

func (h *CrashHandler) write(report CrashReport) (string, error) {
	if h.dir == "" {
		return "", fmt.Errorf("no crash directory")
	}
	if err := os.MkdirAll(h.dir, 0750); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}
	name := fmt.Sprintf("crash-%s-%s.json", report.Component, report.Timestamp.Format("20060102-150405.000"))
	path := filepath.Join(h.dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports lists the reports in the crash directory, oldest first.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	matches, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	reports := make([]CrashReport, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		var r CrashReport
		if json.Unmarshal(data, &r) == nil {
			reports = append(reports, r)
		}
	}
	return reports, nil
}
