package recorder

import (
	"context"
	"time"

	"deskrec/internal/event"
)

// flushLoop expires idle text, quiet scroll aggregates and settled
// window rectangles.
func (r *Recorder) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !r.running() {
			continue
		}
		now := r.clock.MonoMs()
		if span, ok := r.text.FlushIdle(now); ok {
			r.emitText(span)
		}
		if span, ok := r.scroll.FlushStale(now); ok {
			r.emitScroll(span)
		}
		if p, ok := r.rects.Due(now, r.tracker.handle()); ok {
			r.emitRect(p)
		}
	}
}

// snapshotLoop samples the cursor and the foreground window at the
// snapshot rate, whether or not there is input.
func (r *Recorder) snapshotLoop(ctx context.Context) {
	interval := r.snapshotInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if next := r.snapshotInterval(); next != interval {
			interval = next
			ticker.Reset(interval)
		}
		if r.running() && r.cfg().EmitSnapshots {
			r.snapshot()
		}
	}
}

// snapshotInterval falls back to one second while snapshots are off so
// a reload can turn them on.
func (r *Recorder) snapshotInterval() time.Duration {
	if d := r.cfg().SnapshotInterval(); d > 0 {
		return d
	}
	return time.Second
}

func (r *Recorder) snapshot() {
	intro := r.plat.Introspector
	x, y, ok := intro.Cursor()
	if !ok {
		return
	}
	rec := r.newRecord(event.Snapshot, nil)
	if w, ok := intro.Window(intro.Foreground()); ok {
		rec = rec.WithWindow(w.Context())
	}
	rec.Mouse = &event.Mouse{X: x, Y: y}
	r.emit(rec)
}
