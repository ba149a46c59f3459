package coalesce

import (
	"sync"
	"time"

	"deskrec/internal/event"
)

// PendingRect is a geometry change waiting for the window to settle.
type PendingRect struct {
	Handle    uintptr
	Rect      event.Rect
	Window    event.WindowContext
	ChangedMs int64
}

// Debouncer holds at most one pending rectangle change.
type Debouncer struct {
	mu         sync.Mutex
	intervalMs int64
	pending    *PendingRect
}

// NewDebouncer creates a debouncer with the given settle interval.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{intervalMs: interval.Milliseconds()}
}

// SetInterval changes the settle interval.
func (d *Debouncer) SetInterval(interval time.Duration) {
	d.mu.Lock()
	d.intervalMs = interval.Milliseconds()
	d.mu.Unlock()
}

// Observe records a geometry change and restarts the settle timer.
func (d *Debouncer) Observe(handle uintptr, rect event.Rect, w event.WindowContext, nowMs int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = &PendingRect{Handle: handle, Rect: rect, Window: w, ChangedMs: nowMs}
}

// Due returns the pending change once it has been quiet for the
// interval. A change for a window that is no longer foreground is
// discarded instead.
func (d *Debouncer) Due(nowMs int64, foreground uintptr) (PendingRect, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == nil || nowMs-d.pending.ChangedMs < d.intervalMs {
		return PendingRect{}, false
	}
	p := *d.pending
	d.pending = nil
	if p.Handle != foreground {
		return PendingRect{}, false
	}
	return p, true
}

// Cancel drops any pending change.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	d.pending = nil
	d.mu.Unlock()
}

// Pending reports whether a change is waiting.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
