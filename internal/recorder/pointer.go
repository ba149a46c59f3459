package recorder

import (
	"deskrec/internal/config"
	"deskrec/internal/event"
	"deskrec/internal/platform"
)

// handleMouse runs on the hook thread for every pointer notification.
func (r *Recorder) handleMouse(ev platform.MouseEvent) {
	if !r.running() {
		return
	}
	s := r.settings.Load()
	now := r.clock.MonoMs()

	switch ev.Action {
	case platform.MouseMove:
		if !s.cfg.EmitMouseMove {
			return
		}
		last := r.lastMove.Load()
		if now-last < s.moveMs || !r.lastMove.CompareAndSwap(last, now) {
			return
		}
		rec := r.newRecord(event.MouseMove, nil).WithWindow(r.tracker.context())
		rec.Mouse = &event.Mouse{X: ev.X, Y: ev.Y}
		r.emit(rec)

	case platform.Wheel, platform.HWheel:
		if !s.cfg.EmitMouseScroll {
			return
		}
		if span, ok := r.scroll.Add(ev.Delta, ev.Action == platform.HWheel, ev.X, ev.Y, now, r.tracker.context()); ok {
			r.emitScroll(span)
		}

	default:
		button, ok := ev.Action.Button()
		if !ok || !s.cfg.EmitMouseClick || !clickWanted(s.cfg.ClickMode, ev.Action.IsPress()) {
			return
		}
		rec := r.newRecord(event.MouseClick, map[string]any{"injected": ev.Injected}).WithWindow(r.tracker.context())
		rec.Mouse = &event.Mouse{X: ev.X, Y: ev.Y, Button: &button}
		r.emit(rec)
	}
}

func clickWanted(mode string, press bool) bool {
	switch mode {
	case config.ClickPress:
		return press
	case config.ClickRelease:
		return !press
	}
	return true
}
