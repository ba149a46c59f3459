// Package event defines the records that flow from the capture producers
// through the queue into the event log.
package event

import "time"

// Type tags an event record. The values are persisted verbatim in the
// event_type column and are part of the contract with log consumers.
type Type string

const (
	KeyDown     Type = "key_down"
	KeyUp       Type = "key_up"
	KeyShortcut Type = "key_shortcut"
	TextInput   Type = "text_input"

	MouseMove   Type = "mouse_move"
	MouseClick  Type = "mouse_click"
	MouseScroll Type = "mouse_scroll"

	ActiveWindowChanged Type = "active_window_changed"
	WindowRectChanged   Type = "window_rect_changed"

	ClipboardText  Type = "clipboard_text"
	ClipboardImage Type = "clipboard_image"
	ClipboardFiles Type = "clipboard_files"

	Snapshot Type = "snapshot"

	SessionStart  Type = "session_start"
	SessionStop   Type = "session_stop"
	SessionPause  Type = "session_pause"
	SessionResume Type = "session_resume"
	Marker        Type = "marker"
)

// Rect is a screen rectangle in virtual-desktop pixels.
type Rect struct {
	Left   int32 `json:"left"`
	Top    int32 `json:"top"`
	Right  int32 `json:"right"`
	Bottom int32 `json:"bottom"`
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

// NewRect builds a Rect from its edges and fills in width and height.
func NewRect(left, top, right, bottom int32) Rect {
	return Rect{
		Left:   left,
		Top:    top,
		Right:  right,
		Bottom: bottom,
		Width:  right - left,
		Height: bottom - top,
	}
}

// Mouse is the pointer state attached to pointer events.
type Mouse struct {
	X      int32   `json:"x"`
	Y      int32   `json:"y"`
	Button *string `json:"button"`
	Delta  *int32  `json:"delta"`
}

// WindowContext is the foreground window information denormalized onto a
// record at emission time.
type WindowContext struct {
	Handle  uintptr
	Process string
	Title   string
	Class   string
	Rect    *Rect
}

// Record is one observed occurrence.
type Record struct {
	SessionID   string
	WallMs      int64
	MonoMs      int64
	Type        Type
	ProcessName string
	WindowTitle string
	WindowClass string
	Rect        *Rect
	Mouse       *Mouse
	Payload     map[string]any
}

// WithWindow copies the window context onto the record.
func (r Record) WithWindow(w WindowContext) Record {
	r.ProcessName = w.Process
	r.WindowTitle = w.Title
	r.WindowClass = w.Class
	if w.Rect != nil {
		rect := *w.Rect
		r.Rect = &rect
	}
	return r
}

// Session is one recording run.
type Session struct {
	ID           string
	StartWallMs  int64
	StartWallISO string
	VideoPath    string
}

// NewSession stamps a session with the given start time.
func NewSession(id string, start time.Time) Session {
	return Session{
		ID:           id,
		StartWallMs:  start.UnixMilli(),
		StartWallISO: start.Format(time.RFC3339Nano),
	}
}
