package recorder

import (
	"deskrec/internal/coalesce"
	"deskrec/internal/event"
)

func (r *Recorder) newRecord(t event.Type, payload map[string]any) event.Record {
	if payload == nil {
		payload = map[string]any{}
	}
	return event.Record{
		SessionID: r.session.ID,
		WallMs:    r.clock.WallMs(),
		MonoMs:    r.clock.MonoMs(),
		Type:      t,
		Payload:   payload,
	}
}

// emit offers rec to the queue. A full queue drops it; the queue counts
// the drop.
func (r *Recorder) emit(rec event.Record) {
	r.queue.TrySend(rec)
}

func (r *Recorder) emitText(span coalesce.Span) {
	rec := r.newRecord(event.TextInput, map[string]any{
		"text":          span.Text,
		"length":        len([]rune(span.Text)),
		"keystrokes":    span.Keystrokes,
		"reason":        string(span.Reason),
		"start_mono_ms": span.StartMs,
		"end_mono_ms":   span.EndMs,
		"duration_ms":   span.EndMs - span.StartMs,
	}).WithWindow(span.Window)
	r.emit(rec)
	r.metrics.TextSpans.Inc()
}

func (r *Recorder) emitScroll(span coalesce.ScrollSpan) {
	axis := "vertical"
	if span.Horizontal {
		axis = "horizontal"
	}
	delta := span.Delta
	rec := r.newRecord(event.MouseScroll, map[string]any{
		"delta":       span.Delta,
		"ticks":       span.Ticks,
		"duration_ms": span.EndMs - span.StartMs,
		"axis":        axis,
	}).WithWindow(span.Window)
	rec.Mouse = &event.Mouse{X: span.X, Y: span.Y, Delta: &delta}
	r.emit(rec)
}
