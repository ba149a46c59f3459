package recorder

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"deskrec/internal/coalesce"
	"deskrec/internal/config"
	"deskrec/internal/event"
	"deskrec/internal/keys"
	"deskrec/internal/platform"
)

// handleKey runs on the hook thread for every key transition.
func (r *Recorder) handleKey(ev platform.KeyEvent) {
	r.keyMu.Lock()
	defer r.keyMu.Unlock()

	if !r.running() {
		return
	}
	s := r.settings.Load()
	win := r.tracker.context()
	allowed := r.gate.AllowProcess(win.Process)

	wasChord := r.chorded.Down(ev.VK)
	if ev.Down {
		r.pressed.Press(ev.VK)
	} else {
		r.pressed.Release(ev.VK)
		r.chorded.Release(ev.VK)
	}

	chord := ev.Down && r.pressed.IsChord(ev.VK)
	var altGrText string
	if chord && r.pressed.AltGr() {
		// AltGr produces characters on international layouts.
		if text, dead := r.plat.Translator.Translate(ev, &r.pressed); !dead && printable(text) != "" {
			chord, altGrText = false, text
		}
	}

	if chord {
		r.chorded.Press(ev.VK)
		switch {
		case s.hasMarker && s.marker.Matches(&r.pressed, ev.VK):
			if span, ok := r.text.Flush(coalesce.ReasonMarker); ok {
				r.emitText(span)
			}
			r.emit(r.newRecord(event.Marker, map[string]any{"hotkey": s.marker.String()}).WithWindow(win))
		case allowed:
			r.emit(r.newRecord(event.KeyShortcut, map[string]any{
				"key":       keys.Name(ev.VK),
				"modifiers": r.pressed.Modifiers(),
			}).WithWindow(win))
		}
	}

	if allowed && wantRaw(s.cfg, ev.Down) && !(s.cfg.SuppressShortcutRawKeys && (chord || wasChord)) {
		t := event.KeyUp
		if ev.Down {
			t = event.KeyDown
		}
		r.emit(r.newRecord(t, map[string]any{
			"key":      keys.Name(ev.VK),
			"vk":       ev.VK,
			"scan":     ev.Scan,
			"injected": ev.Injected,
		}).WithWindow(win))
	}

	if ev.Down && !chord && !keys.IsModifier(ev.VK) && s.cfg.Text.Enabled {
		r.composeLocked(ev, win, altGrText)
	}
}

// composeLocked feeds one key press into the text buffer. keyMu is held.
func (r *Recorder) composeLocked(ev platform.KeyEvent, win event.WindowContext, translated string) {
	now := r.clock.MonoMs()
	if !r.gate.ShouldCapture(win.Process, true) {
		r.composer.Reset()
		if span, ok := r.text.Flush(coalesce.ReasonUnsafeTarget); ok {
			r.emitText(span)
		}
		return
	}

	switch ev.VK {
	case keys.VKReturn:
		r.composer.Reset()
		if span, ok := r.text.Flush(coalesce.ReasonEnter); ok {
			r.emitText(span)
		}
		return
	case keys.VKTab:
		r.composer.Reset()
		if span, ok := r.text.Flush(coalesce.ReasonTab); ok {
			r.emitText(span)
		}
		return
	case keys.VKBack:
		r.composer.Reset()
		r.text.Backspace(now)
		return
	}

	text := translated
	if text == "" {
		var dead bool
		text, dead = r.plat.Translator.Translate(ev, &r.pressed)
		if dead {
			if accent, _ := utf8.DecodeRuneInString(text); accent != utf8.RuneError {
				r.composer.Dead(accent)
			}
			return
		}
	}
	text = printable(r.composer.Compose(text))
	if text == "" {
		return
	}
	for _, span := range r.text.Append(text, now, win) {
		r.emitText(span)
	}
}

func wantRaw(cfg *config.Config, down bool) bool {
	switch cfg.RawKeys {
	case config.RawKeysBoth:
		return true
	case config.RawKeysDown:
		return down
	case config.RawKeysUp:
		return !down
	}
	return false
}

func printable(s string) string {
	return strings.Map(func(c rune) rune {
		if unicode.IsControl(c) {
			return -1
		}
		return c
	}, s)
}
