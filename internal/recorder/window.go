package recorder

import (
	"context"
	"sync"
	"time"

	"deskrec/internal/coalesce"
	"deskrec/internal/event"
	"deskrec/internal/platform"
)

// fallbackPoll is the window poll interval used when the window hooks
// are unavailable and no poll rate is configured.
const fallbackPoll = 250 * time.Millisecond

// tracker caches the foreground window so the input path never queries
// the OS.
type tracker struct {
	mu     sync.Mutex
	window platform.Window
	ctx    event.WindowContext
}

func (t *tracker) context() event.WindowContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx
}

func (t *tracker) handle() uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window.Handle
}

// swap installs w and returns the previous window.
func (t *tracker) swap(w platform.Window) platform.Window {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.window
	t.window, t.ctx = w, w.Context()
	return prev
}

// setRect records new geometry for handle h and reports whether it
// differs from the last known rectangle.
func (t *tracker) setRect(h uintptr, rect event.Rect) (event.WindowContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.window.Handle != h || (t.window.HasRect && t.window.Rect == rect) {
		return event.WindowContext{}, false
	}
	t.window.Rect, t.window.HasRect = rect, true
	t.ctx = t.window.Context()
	return t.ctx, true
}

// handleWindow runs on the hook thread. Introspection happens on the
// window goroutine. Foreground switches go through a single latest-wins
// slot; a full geometry channel drops the notification.
func (r *Recorder) handleWindow(ev platform.WindowEvent) {
	if ev.Kind == platform.WindowForeground {
		if ev.Handle == 0 {
			return
		}
		r.pendingFg.Store(ev.Handle)
		select {
		case r.fgWake <- struct{}{}:
		default:
		}
		return
	}
	select {
	case r.windowCh <- ev:
	default:
	}
}

func (r *Recorder) windowLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.fgWake:
			r.takeForeground()
		case ev := <-r.windowCh:
			// Geometry is only meaningful against the current foreground.
			r.takeForeground()
			if ev.Kind == platform.WindowGeometry {
				r.onGeometry(ev.Handle)
			}
		}
	}
}

func (r *Recorder) takeForeground() {
	if h := r.pendingFg.Swap(0); h != 0 {
		r.onForeground(h)
	}
}

// pollLoop feeds the window goroutine when hooks cannot, or in addition
// to them when a poll rate is configured.
func (r *Recorder) pollLoop(ctx context.Context) {
	interval := r.cfg().WindowPollInterval()
	if interval <= 0 {
		interval = fallbackPoll
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fg := r.plat.Introspector.Foreground()
			if fg == 0 {
				continue
			}
			r.handleWindow(platform.WindowEvent{Kind: platform.WindowForeground, Handle: fg})
			r.handleWindow(platform.WindowEvent{Kind: platform.WindowGeometry, Handle: fg})
		}
	}
}

// onForeground handles a foreground switch. The tracker is updated even
// while paused so the context is right on resume.
func (r *Recorder) onForeground(h uintptr) {
	if h == 0 || h == r.tracker.handle() {
		return
	}
	w, ok := r.plat.Introspector.Window(h)
	if !ok {
		w = platform.Window{Handle: h}
	}

	if r.running() {
		if span, ok := r.text.Flush(coalesce.ReasonWindowChange); ok {
			r.emitText(span)
		}
	}
	r.rects.Cancel()
	prev := r.tracker.swap(w)

	if !r.running() {
		return
	}
	payload := map[string]any{
		"handle":           uint64(h),
		"previous_process": platform.ProcessBase(prev.ProcessPath),
	}
	if r.icons != nil && r.cfg().Window.Icons {
		if path, ok := r.icons.Path(w.ProcessPath); ok {
			payload["icon_path"] = path
		}
	}
	r.emit(r.newRecord(event.ActiveWindowChanged, payload).WithWindow(w.Context()))
}

// onGeometry passes a changed rectangle of the foreground window to the
// debouncer.
func (r *Recorder) onGeometry(h uintptr) {
	if h != r.tracker.handle() {
		return
	}
	rect, ok := r.plat.Introspector.Rect(h)
	if !ok {
		return
	}
	ctx, changed := r.tracker.setRect(h, rect)
	if !changed || !r.running() {
		return
	}
	r.rects.Observe(h, rect, ctx, r.clock.MonoMs())
}

func (r *Recorder) emitRect(p coalesce.PendingRect) {
	rect := p.Rect
	rec := r.newRecord(event.WindowRectChanged, map[string]any{"handle": uint64(p.Handle)}).WithWindow(p.Window)
	rec.Rect = &rect
	r.emit(rec)
}
