// Package recorder turns OS input, window, clipboard and timer
// notifications into records on the event queue, and owns the single
// shutdown path of a recording session.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"deskrec/internal/coalesce"
	"deskrec/internal/config"
	"deskrec/internal/control"
	"deskrec/internal/event"
	"deskrec/internal/iconcache"
	"deskrec/internal/keys"
	"deskrec/internal/logging"
	"deskrec/internal/metrics"
	"deskrec/internal/pipeline"
	"deskrec/internal/platform"
	"deskrec/internal/privacy"
)

// ErrClosed is returned by Run on a recorder that already ran or was
// shut down.
var ErrClosed = errors.New("recorder: closed")

// DefaultFlushTick is how often pending text, scroll and rectangle state
// is checked for expiry.
const DefaultFlushTick = 25 * time.Millisecond

const (
	stateIdle int32 = iota
	stateStarting
	stateRunning
	statePaused
	stateStopping
)

// Options configures a Recorder.
type Options struct {
	Config   *config.Config
	Platform *platform.Platform
	Sink     pipeline.Sink
	Paths    control.Paths

	// Optional.
	Clock     event.Clock
	Logger    *slog.Logger
	Crash     *logging.CrashHandler
	Metrics   *metrics.Pipeline
	SessionID string
	Version   string
	FlushTick time.Duration
}

// settings is the reloadable part of the configuration, swapped whole.
type settings struct {
	cfg       *config.Config
	marker    keys.Hotkey
	hasMarker bool
	moveMs    int64
}

func newSettings(cfg *config.Config) *settings {
	s := &settings{cfg: cfg, moveMs: cfg.MouseInterval().Milliseconds()}
	if hk, err := keys.ParseHotkey(cfg.MarkerHotkey); err == nil {
		s.marker, s.hasMarker = hk, true
	}
	return s
}

// Recorder is the shared handle every producer works through. Hook
// callbacks reach it through method values installed in the platform
// handlers.
type Recorder struct {
	plat    *platform.Platform
	paths   control.Paths
	clock   event.Clock
	logger  *slog.Logger
	crash   *logging.CrashHandler
	metrics *metrics.Pipeline
	version string
	tick    time.Duration

	session event.Session
	queue   *pipeline.Queue
	writer  *pipeline.Writer
	gate    *privacy.Gate
	icons   *iconcache.Cache

	settings atomic.Pointer[settings]
	state    atomic.Int32

	text    *coalesce.TextBuffer
	scroll  *coalesce.Scroll
	rects   *coalesce.Debouncer
	dedupe  *coalesce.Dedupe
	tracker tracker

	// keyMu guards the keyboard state and serializes it with pause and
	// stop transitions.
	keyMu    sync.Mutex
	pressed  keys.State
	chorded  keys.State
	composer keys.Composer

	lastMove atomic.Int64
	windowCh chan platform.WindowEvent
	// pendingFg holds the latest foreground handle; fgWake signals it.
	// Geometry floods on windowCh never displace a foreground switch.
	pendingFg atomic.Uintptr
	fgWake    chan struct{}
	clipSeq   uint32

	bg           context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	stopReq      chan string
	ready        chan struct{}
	shuttingDown chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once
}

// New builds a recorder for one session. Nothing runs until Run.
func New(opts Options) (*Recorder, error) {
	if opts.Config == nil || opts.Platform == nil || opts.Sink == nil {
		return nil, errors.New("recorder: config, platform and sink are required")
	}
	cfg := opts.Config.Clone()
	if opts.Clock == nil {
		opts.Clock = event.NewClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewPipeline()
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.FlushTick <= 0 {
		opts.FlushTick = DefaultFlushTick
	}
	logger := opts.Logger.With("component", "recorder")

	r := &Recorder{
		plat:         opts.Platform,
		paths:        opts.Paths,
		clock:        opts.Clock,
		logger:       logger,
		crash:        opts.Crash,
		metrics:      opts.Metrics,
		version:      opts.Version,
		tick:         opts.FlushTick,
		session:      event.NewSession(opts.SessionID, time.UnixMilli(opts.Clock.WallMs())),
		queue:        pipeline.NewQueue(cfg.Writer.QueueSize, opts.Metrics),
		gate:         privacy.New(policyOf(cfg), opts.Platform.Focus, opts.Logger),
		text:         coalesce.NewTextBuffer(cfg.Text.Flush(), cfg.Text.MaxLen),
		scroll:       coalesce.NewScroll(cfg.Scroll.Gap()),
		rects:        coalesce.NewDebouncer(cfg.Window.RectDebounce()),
		dedupe:       coalesce.NewDedupe(cfg.Clipboard.Dedupe()),
		windowCh:     make(chan platform.WindowEvent, 64),
		fgWake:       make(chan struct{}, 1),
		stopReq:      make(chan string, 1),
		ready:        make(chan struct{}),
		shuttingDown: make(chan struct{}),
		done:         make(chan struct{}),
	}
	r.writer = pipeline.NewWriter(r.queue, opts.Sink, pipeline.WriterConfig{
		BatchSize:     cfg.Writer.BatchSize,
		FlushInterval: cfg.Writer.Flush(),
	}, opts.Logger)
	if opts.Paths.Dir != "" {
		r.icons = iconcache.New(opts.Paths.Icons(), opts.Platform.Icons, opts.Logger)
	}
	r.bg, r.cancel = context.WithCancel(context.Background())
	r.settings.Store(newSettings(cfg))
	r.lastMove.Store(-1 << 40)
	if r.crash != nil {
		r.crash.SetSessionID(r.session.ID)
	}
	return r, nil
}

func policyOf(cfg *config.Config) privacy.Policy {
	return privacy.Policy{
		SafeTextOnly: cfg.Privacy.SafeTextOnly,
		Allow:        cfg.Privacy.AllowProcesses,
		Block:        cfg.Privacy.BlockProcesses,
	}
}

// Session returns the session this recorder writes.
func (r *Recorder) Session() event.Session {
	return r.session
}

// Metrics returns the pipeline counters.
func (r *Recorder) Metrics() *metrics.Pipeline {
	return r.metrics
}

// Ready is closed once Run has installed the hooks and recording has
// begun. It is never closed when startup fails.
func (r *Recorder) Ready() <-chan struct{} {
	return r.ready
}

// Paused reports whether emission is suspended.
func (r *Recorder) Paused() bool {
	return r.state.Load() == statePaused
}

func (r *Recorder) running() bool {
	return r.state.Load() == stateRunning
}

func (r *Recorder) cfg() *config.Config {
	return r.settings.Load().cfg
}

// Run starts the writer, installs the hooks and the background
// goroutines, and blocks until ctx is cancelled or a stop is requested.
// A hook installation failure is returned with nothing left running.
func (r *Recorder) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(stateIdle, stateStarting) {
		return ErrClosed
	}

	r.writer.Finally(r.backfillVideo)
	if err := r.writer.Start(ctx, r.session); err != nil {
		r.abort()
		return fmt.Errorf("start writer: %w", err)
	}

	// Clipboard contents from before the session are not captured.
	r.clipSeq = r.plat.Clipboard.Sequence()

	handlers := platform.Handlers{
		Key:    r.handleKey,
		Mouse:  r.handleMouse,
		Window: r.handleWindow,
	}
	if err := r.plat.Hooks.Start(handlers); err != nil {
		r.abort()
		return fmt.Errorf("install input hooks: %w", err)
	}

	if !r.state.CompareAndSwap(stateStarting, stateRunning) {
		// Shut down while starting.
		if err := r.plat.Hooks.Stop(); err != nil {
			r.logger.Warn("remove hooks", "error", err)
		}
		<-r.done
		return nil
	}

	cfg := r.cfg()
	r.emit(r.newRecord(event.SessionStart, map[string]any{
		"note":    "manual_start",
		"pid":     os.Getpid(),
		"version": r.version,
		"config":  cfg,
	}))
	r.logger.Info("recording started", "session", r.session.ID, "window_hooks", r.plat.Hooks.WindowEvents())

	r.onForeground(r.plat.Introspector.Foreground())
	r.startBackground(r.bg)
	close(r.ready)

	select {
	case <-ctx.Done():
		r.Shutdown("interrupt")
	case reason := <-r.stopReq:
		r.Shutdown(reason)
	case <-r.shuttingDown:
	}
	<-r.done
	return nil
}

// abort undoes a partial start.
func (r *Recorder) abort() {
	r.shutdownOnce.Do(func() {
		r.state.Store(stateStopping)
		close(r.shuttingDown)
		r.cancel()
		if err := r.writer.Stop(); err != nil {
			r.logger.Warn("close writer after failed start", "error", err)
		}
		close(r.done)
	})
}

func (r *Recorder) startBackground(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	r.goWith(ctx, "window", r.windowLoop)
	cfg := r.cfg()
	if !r.plat.Hooks.WindowEvents() || cfg.Window.PollHz > 0 {
		r.goWith(ctx, "window-poll", r.pollLoop)
	}
	r.goWith(ctx, "clipboard", r.clipboardLoop)
	r.goWith(ctx, "snapshot", r.snapshotLoop)
	r.goWith(ctx, "flusher", r.flushLoop)
}

func (r *Recorder) goWith(ctx context.Context, name string, fn func(context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.crash.Recover(name)
		fn(ctx)
	}()
}

// Stop asks Run to shut down with reason. It does not wait.
func (r *Recorder) Stop(reason string) {
	select {
	case r.stopReq <- reason:
	default:
	}
}

// Shutdown is the single teardown path. It flushes pending text, writes
// the stop marker, removes the hooks, joins the background goroutines
// and drains the writer. Errors are logged and never cut the sequence
// short. Concurrent callers wait for the first one to finish.
func (r *Recorder) Shutdown(reason string) {
	r.shutdownOnce.Do(func() {
		close(r.shuttingDown)

		r.keyMu.Lock()
		prev := r.state.Swap(stateStopping)
		r.keyMu.Unlock()

		if prev == stateRunning || prev == statePaused {
			r.flushPending(coalesce.ReasonStop)
			r.emit(r.newRecord(event.SessionStop, map[string]any{
				"note":   "manual_stop",
				"reason": reason,
			}))
			if err := r.plat.Hooks.Stop(); err != nil {
				r.logger.Warn("remove hooks", "error", err)
			}
		}
		r.cancel()
		r.wg.Wait()

		if err := r.writer.Stop(); err != nil {
			r.logger.Warn("stop writer", "error", err)
		}
		r.writeMetrics()
		r.logger.Info("recording stopped",
			"session", r.session.ID,
			"reason", reason,
			"enqueued", r.metrics.Enqueued.Value(),
			"dropped", r.metrics.Dropped.Value(),
			"written", r.metrics.Written.Value(),
			"discarded", r.metrics.Discarded.Value(),
		)
		close(r.done)
	})
	<-r.done
}

// Pause suspends emission. Hooks stay installed; callbacks return early.
func (r *Recorder) Pause() {
	r.keyMu.Lock()
	ok := r.state.CompareAndSwap(stateRunning, statePaused)
	r.keyMu.Unlock()
	if !ok {
		return
	}
	r.flushPending(coalesce.ReasonPause)
	r.rects.Cancel()
	r.emit(r.newRecord(event.SessionPause, nil))
	r.logger.Info("recording paused")
}

// Resume re-enables emission. Keys held across the pause are forgotten
// because their releases were not observed.
func (r *Recorder) Resume() {
	r.keyMu.Lock()
	r.pressed.Reset()
	r.chorded.Reset()
	r.composer.Reset()
	ok := r.state.CompareAndSwap(statePaused, stateRunning)
	r.keyMu.Unlock()
	if !ok {
		return
	}
	r.scroll.Flush()
	r.emit(r.newRecord(event.SessionResume, nil))
	r.logger.Info("recording resumed")
}

// Reload applies a new configuration. Queue, writer and control settings
// keep their startup values.
func (r *Recorder) Reload(next *config.Config) {
	next = next.Clone()
	prev := r.cfg()
	if fields := prev.RestartRequired(next); len(fields) > 0 {
		r.logger.Warn("settings take effect after restart", "fields", fields)
	}
	r.settings.Store(newSettings(next))
	r.gate.Update(policyOf(next))
	r.text.SetLimits(next.Text.Flush(), next.Text.MaxLen)
	r.scroll.SetGap(next.Scroll.Gap())
	r.rects.SetInterval(next.Window.RectDebounce())
	r.dedupe.SetWindow(next.Clipboard.Dedupe())
	r.logger.Info("configuration reloaded")
}

// flushPending closes the open text span and scroll aggregate.
func (r *Recorder) flushPending(reason coalesce.FlushReason) {
	if span, ok := r.text.Flush(reason); ok {
		r.emitText(span)
	}
	if span, ok := r.scroll.Flush(); ok {
		r.emitScroll(span)
	}
}

func (r *Recorder) writeMetrics() {
	if r.paths.Dir == "" {
		return
	}
	var buf bytes.Buffer
	if err := r.metrics.Registry.WritePrometheus(&buf); err != nil {
		r.logger.Warn("render metrics", "error", err)
		return
	}
	path := r.paths.Metrics()
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		r.logger.Warn("write metrics", "error", err)
		return
	}
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		r.logger.Warn("write metrics", "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		r.logger.Warn("write metrics", "error", err)
	}
}
