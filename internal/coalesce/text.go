// Package coalesce holds the state machines that reduce bursts of
// low-level input notifications into fewer meaningful events. Each type
// guards its own state with its own mutex and takes the current
// monotonic time explicitly.
package coalesce

import (
	"sync"
	"time"

	"deskrec/internal/event"
)

// FlushReason records why a text span was closed.
type FlushReason string

const (
	ReasonIdle         FlushReason = "idle"
	ReasonEnter        FlushReason = "enter"
	ReasonTab          FlushReason = "tab"
	ReasonMaxLength    FlushReason = "max_length"
	ReasonWindowChange FlushReason = "window_change"
	ReasonUnsafeTarget FlushReason = "unsafe_target"
	ReasonMarker       FlushReason = "marker"
	ReasonPause        FlushReason = "pause"
	ReasonStop         FlushReason = "stop"
)

// Span is a flushed run of composed text.
type Span struct {
	Text       string
	StartMs    int64
	EndMs      int64
	Keystrokes int
	Reason     FlushReason
	Window     event.WindowContext
}

// TextBuffer accumulates translated keystrokes between flush boundaries.
// It is either empty or accumulating; every flush returns it to empty.
type TextBuffer struct {
	mu         sync.Mutex
	buf        []rune
	startMs    int64
	lastMs     int64
	keystrokes int
	window     event.WindowContext
	idleMs     int64
	maxLen     int
}

// NewTextBuffer creates an empty buffer.
func NewTextBuffer(idle time.Duration, maxLen int) *TextBuffer {
	b := &TextBuffer{}
	b.SetLimits(idle, maxLen)
	return b
}

// SetLimits changes the idle timeout and maximum span length.
func (b *TextBuffer) SetLimits(idle time.Duration, maxLen int) {
	if maxLen < 1 {
		maxLen = 1
	}
	b.mu.Lock()
	b.idleMs = idle.Milliseconds()
	b.maxLen = maxLen
	b.mu.Unlock()
}

// Append adds text typed into window w. It returns the spans closed as a
// side effect: the previous span when w differs from the window the
// buffer was started in, and the current span when it reaches the
// maximum length.
func (b *TextBuffer) Append(s string, nowMs int64, w event.WindowContext) []Span {
	if s == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Span
	if len(b.buf) > 0 && w.Handle != b.window.Handle {
		out = append(out, b.takeLocked(ReasonWindowChange))
	}
	if len(b.buf) == 0 {
		b.startMs = nowMs
		b.window = w
	}
	b.buf = append(b.buf, []rune(s)...)
	b.lastMs = nowMs
	b.keystrokes++

	if len(b.buf) >= b.maxLen {
		out = append(out, b.takeLocked(ReasonMaxLength))
	}
	return out
}

// Backspace removes the last character. On an empty buffer it does
// nothing: text that was already flushed cannot be edited.
func (b *TextBuffer) Backspace(nowMs int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) == 0 {
		return
	}
	b.buf = b.buf[:len(b.buf)-1]
	b.lastMs = nowMs
	b.keystrokes++
	if len(b.buf) == 0 {
		b.resetLocked()
	}
}

// Flush closes the current span. It reports false when the buffer is
// empty.
func (b *TextBuffer) Flush(reason FlushReason) (Span, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) == 0 {
		return Span{}, false
	}
	return b.takeLocked(reason), true
}

// FlushIdle closes the span if nothing has been typed for the idle
// timeout.
func (b *TextBuffer) FlushIdle(nowMs int64) (Span, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) == 0 || nowMs-b.lastMs < b.idleMs {
		return Span{}, false
	}
	return b.takeLocked(ReasonIdle), true
}

// Len returns the number of buffered characters.
func (b *TextBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func (b *TextBuffer) takeLocked(reason FlushReason) Span {
	span := Span{
		Text:       string(b.buf),
		StartMs:    b.startMs,
		EndMs:      b.lastMs,
		Keystrokes: b.keystrokes,
		Reason:     reason,
		Window:     b.window,
	}
	b.resetLocked()
	return span
}

func (b *TextBuffer) resetLocked() {
	b.buf = b.buf[:0]
	b.keystrokes = 0
	b.window = event.WindowContext{}
}
