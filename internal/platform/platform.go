// Package platform is the boundary between the recorder and the operating
// system. Everything that touches OS hooks, window handles, the clipboard
// or accessibility lives behind the interfaces in this file.
package platform

import (
	"errors"
	"image"
	"path/filepath"
	"strings"

	"deskrec/internal/event"
	"deskrec/internal/keys"
)

// ErrNotAvailable is returned when a capability is missing on this host.
var ErrNotAvailable = errors.New("platform: capability not available")

// ErrWarmingUp is returned by a FocusProbe that has no answer for the
// current foreground window yet. It is transient.
var ErrWarmingUp = errors.New("platform: accessibility service not ready")

// Window describes a top-level window at the time it was queried.
type Window struct {
	Handle      uintptr
	PID         uint32
	ProcessPath string
	Title       string
	Class       string
	Rect        event.Rect
	HasRect     bool
}

// Context converts w into the form attached to records. Records carry
// the executable name, not its full path.
func (w Window) Context() event.WindowContext {
	ctx := event.WindowContext{
		Handle:  w.Handle,
		Process: ProcessBase(w.ProcessPath),
		Title:   w.Title,
		Class:   w.Class,
	}
	if w.HasRect {
		r := w.Rect
		ctx.Rect = &r
	}
	return ctx
}

// ProcessBase returns the executable file name, e.g. "notepad.exe".
func ProcessBase(path string) string {
	if path == "" {
		return ""
	}
	// Windows paths are parsed on every host so tests behave the same.
	if i := strings.LastIndexAny(path, `\/`); i >= 0 {
		return path[i+1:]
	}
	return filepath.Base(path)
}

// KeyEvent is one low-level keyboard notification.
type KeyEvent struct {
	VK       uint32
	Scan     uint32
	Down     bool
	Injected bool
	Extended bool
}

// MouseAction classifies a low-level pointer notification.
type MouseAction uint8

const (
	MouseMove MouseAction = iota
	LeftDown
	LeftUp
	RightDown
	RightUp
	MiddleDown
	MiddleUp
	XDown
	XUp
	Wheel
	HWheel
)

var buttonNames = map[MouseAction]string{
	LeftDown:   "left_down",
	LeftUp:     "left_up",
	RightDown:  "right_down",
	RightUp:    "right_up",
	MiddleDown: "middle_down",
	MiddleUp:   "middle_up",
	XDown:      "x_down",
	XUp:        "x_up",
}

// Button returns the persisted button name for click actions.
func (a MouseAction) Button() (string, bool) {
	name, ok := buttonNames[a]
	return name, ok
}

// IsPress reports whether a is a button-down action.
func (a MouseAction) IsPress() bool {
	switch a {
	case LeftDown, RightDown, MiddleDown, XDown:
		return true
	}
	return false
}

// MouseEvent is one low-level pointer notification. Delta is set for
// wheel actions, in multiples of 120 per detent.
type MouseEvent struct {
	Action   MouseAction
	X, Y     int32
	Delta    int32
	Injected bool
}

// WindowEventKind distinguishes foreground switches from geometry
// changes.
type WindowEventKind uint8

const (
	WindowForeground WindowEventKind = iota + 1
	WindowGeometry
)

// WindowEvent is a window notification delivered by the event hooks.
type WindowEvent struct {
	Kind   WindowEventKind
	Handle uintptr
}

// Handlers receive hook notifications. They run on the hook thread and
// must return quickly without blocking.
type Handlers struct {
	Key    func(KeyEvent)
	Mouse  func(MouseEvent)
	Window func(WindowEvent)
}

// Hooks installs the global input hooks.
type Hooks interface {
	// Start installs the hooks and returns once they are live. An error
	// means no hook is left installed.
	Start(h Handlers) error
	// Stop removes the hooks and joins the hook thread.
	Stop() error
	// WindowEvents reports whether foreground and geometry notifications
	// are being delivered. When false the caller must poll.
	WindowEvents() bool
}

// Introspector answers questions about windows and the pointer.
type Introspector interface {
	Foreground() uintptr
	Window(h uintptr) (Window, bool)
	Rect(h uintptr) (event.Rect, bool)
	Cursor() (x, y int32, ok bool)
}

// KeyTranslator maps a key press to the text the active layout produces.
// dead is true when the key is a dead key; text then holds the spacing
// accent.
type KeyTranslator interface {
	Translate(ev KeyEvent, state *keys.State) (text string, dead bool)
}

// ClipboardContent is what the clipboard held at one sequence number.
type ClipboardContent struct {
	DIB      []byte
	HasDIB   bool
	Files    []string
	HasFiles bool
	Text     string
	HasText  bool
}

// Clipboard reads the system clipboard.
type Clipboard interface {
	// Sequence changes whenever the clipboard contents change.
	Sequence() uint32
	Read() (ClipboardContent, error)
}

// ControlType is the coarse accessibility role of the focused element.
type ControlType int

const (
	ControlOther ControlType = iota
	ControlEdit
	ControlDocument
)

func (c ControlType) String() string {
	switch c {
	case ControlEdit:
		return "edit"
	case ControlDocument:
		return "document"
	}
	return "other"
}

// FocusedElement describes the element holding keyboard focus.
type FocusedElement struct {
	Present     bool
	IsPassword  bool
	ControlType ControlType
}

// FocusProbe queries the accessibility service. It returns
// ErrNotAvailable when the service cannot answer and ErrWarmingUp while
// an answer is still pending.
type FocusProbe interface {
	Focused() (FocusedElement, error)
}

// IconExtractor loads the primary icon of an executable.
type IconExtractor interface {
	Icon(processPath string) (image.Image, error)
}

// Options selects optional capabilities when the bindings are created.
type Options struct {
	// WindowEvents installs foreground and geometry hooks in addition to
	// the input hooks.
	WindowEvents bool
}

// Platform bundles the OS bindings.
type Platform struct {
	Hooks        Hooks
	Introspector Introspector
	Translator   KeyTranslator
	Clipboard    Clipboard
	Focus        FocusProbe
	Icons        IconExtractor

	closers []func() error
}

// Close releases background resources held by the bindings.
func (p *Platform) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// Unsupported returns bindings that report every capability as missing.
// Hooks.Start fails, which makes recorder startup fail with a clear error.
func Unsupported() *Platform {
	u := unsupported{}
	return &Platform{
		Hooks:        u,
		Introspector: u,
		Translator:   u,
		Clipboard:    u,
		Focus:        u,
		Icons:        u,
	}
}

type unsupported struct{}

func (unsupported) Start(Handlers) error                           { return ErrNotAvailable }
func (unsupported) Stop() error                                    { return nil }
func (unsupported) WindowEvents() bool                             { return false }
func (unsupported) Foreground() uintptr                            { return 0 }
func (unsupported) Window(uintptr) (Window, bool)                  { return Window{}, false }
func (unsupported) Rect(uintptr) (event.Rect, bool)                { return event.Rect{}, false }
func (unsupported) Cursor() (int32, int32, bool)                   { return 0, 0, false }
func (unsupported) Translate(KeyEvent, *keys.State) (string, bool) { return "", false }
func (unsupported) Sequence() uint32                               { return 0 }
func (unsupported) Read() (ClipboardContent, error)                { return ClipboardContent{}, ErrNotAvailable }
func (unsupported) Focused() (FocusedElement, error)               { return FocusedElement{}, ErrNotAvailable }
func (unsupported) Icon(string) (image.Image, error)               { return nil, ErrNotAvailable }
