package control

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler receives control transitions. Stop and Reload fire once per
// flag file; Pause and Resume follow the presence of the pause flag.
// Callbacks run on the watcher goroutine and should not block for long.
type Handler struct {
	Stop   func()
	Pause  func()
	Resume func()
	Reload func()
}

// Watcher polls the flag files every interval. fsnotify events on the
// data directory trigger an early check.
type Watcher struct {
	paths    Paths
	interval time.Duration
	handler  Handler
	logger   *slog.Logger

	fs     *fsnotify.Watcher
	paused bool

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewWatcher creates a watcher; Start begins polling.
func NewWatcher(paths Paths, interval time.Duration, h Handler, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Watcher{
		paths:    paths,
		interval: interval,
		handler:  h,
		logger:   logger.With("component", "control"),
		done:     make(chan struct{}),
	}
}

// Start removes a stop flag left from an earlier run and starts the
// watch loop. The current pause flag is honored immediately.
func (w *Watcher) Start(ctx context.Context) error {
	var err error
	w.startOnce.Do(func() {
		if err = removeIfExists(w.paths.Stop()); err != nil {
			return
		}
		if err = removeIfExists(w.paths.Reload()); err != nil {
			return
		}

		fw, ferr := fsnotify.NewWatcher()
		if ferr == nil {
			ferr = fw.Add(w.paths.Dir)
			if ferr != nil {
				fw.Close()
			}
		}
		if ferr != nil {
			w.logger.Warn("file notifications unavailable, polling only", "error", ferr)
		} else {
			w.fs = fw
		}

		w.check()
		w.wg.Add(1)
		go w.loop(ctx)
	})
	return err
}

// Stop ends the loop and waits for it.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		if w.fs != nil {
			w.fs.Close()
		}
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if w.fs != nil {
		events, errs = w.fs.Events, w.fs.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if w.relevant(ev.Name) {
				w.check()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Debug("file notification error", "error", err)
		}
	}
}

func (w *Watcher) relevant(name string) bool {
	switch filepath.Base(name) {
	case StopFile, PauseFile, ReloadFile:
		return true
	}
	return false
}

// check compares the flag files with the last observed state. Stop wins
// over everything else.
func (w *Watcher) check() {
	if exists(w.paths.Stop()) {
		w.logger.Info("stop requested")
		call(w.handler.Stop)
		if err := removeIfExists(w.paths.Stop()); err != nil {
			w.logger.Warn("remove stop flag", "error", err)
		}
		return
	}

	if exists(w.paths.Reload()) {
		if err := removeIfExists(w.paths.Reload()); err != nil {
			w.logger.Warn("remove reload flag", "error", err)
		}
		w.logger.Info("reload requested")
		call(w.handler.Reload)
	}

	paused := exists(w.paths.Pause())
	if paused == w.paused {
		return
	}
	w.paused = paused
	if paused {
		w.logger.Info("pause requested")
		call(w.handler.Pause)
	} else {
		w.logger.Info("resume requested")
		call(w.handler.Resume)
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
