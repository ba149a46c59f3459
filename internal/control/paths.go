// Package control is the recorder's control plane: the single-instance
// lock file and the flag files collaborators drop into the data directory
// to stop, pause, resume or reload a running recorder.
package control

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"deskrec/internal/config"
)

// File names inside the data directory.
const (
	LockFile     = "recorder.lock"
	StopFile     = "stop.signal"
	PauseFile    = "pause.signal"
	ReloadFile   = "reload.signal"
	DatabaseFile = "events.sqlite3"
	LogFile      = "deskrec.log"
	MetricsFile  = "recorder.metrics"
)

// Paths locates everything the recorder keeps on disk.
type Paths struct {
	Dir string
}

// NewPaths roots the layout at dir.
func NewPaths(dir string) Paths {
	return Paths{Dir: dir}
}

// DefaultPaths uses the per-user data directory.
func DefaultPaths() Paths {
	return NewPaths(config.DataDir())
}

func (p Paths) Lock() string      { return filepath.Join(p.Dir, LockFile) }
func (p Paths) Stop() string      { return filepath.Join(p.Dir, StopFile) }
func (p Paths) Pause() string     { return filepath.Join(p.Dir, PauseFile) }
func (p Paths) Reload() string    { return filepath.Join(p.Dir, ReloadFile) }
func (p Paths) Config() string    { return filepath.Join(p.Dir, config.FileName) }
func (p Paths) Database() string  { return filepath.Join(p.Dir, DatabaseFile) }
func (p Paths) Log() string       { return filepath.Join(p.Dir, LogFile) }
func (p Paths) Metrics() string   { return filepath.Join(p.Dir, MetricsFile) }
func (p Paths) Icons() string     { return filepath.Join(p.Dir, "icons") }
func (p Paths) Clipboard() string { return filepath.Join(p.Dir, "clipboard") }
func (p Paths) Crashes() string   { return filepath.Join(p.Dir, "crashes") }

// Ensure creates the data directory.
func (p Paths) Ensure() error {
	if err := os.MkdirAll(p.Dir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
