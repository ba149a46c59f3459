package platform

import (
	"fmt"
	"image"
	"strings"
	"sync"
	"unicode"

	"deskrec/internal/event"
	"deskrec/internal/keys"
)

// Simulated is a scripted platform. Tests drive it by injecting input,
// switching windows and changing the clipboard; injected input is
// delivered synchronously to the installed handlers, as the hook thread
// would deliver it.
type Simulated struct {
	mu sync.Mutex

	handlers     *Handlers
	startErr     error
	windowEvents bool

	windows    map[uintptr]Window
	foreground uintptr
	cursorX    int32
	cursorY    int32

	seq     uint32
	clip    ClipboardContent
	clipErr error

	focus    FocusedElement
	focusErr error

	icons map[string]image.Image

	keyText map[uint32]string
	dead    map[uint32]rune
}

// NewSimulated returns a simulated platform with window hooks available
// and a US-like key layout.
func NewSimulated() *Simulated {
	s := &Simulated{
		windowEvents: true,
		windows:      make(map[uintptr]Window),
		icons:        make(map[string]image.Image),
		keyText:      make(map[uint32]string),
		dead:         make(map[uint32]rune),
		focus:        FocusedElement{Present: true, ControlType: ControlEdit},
	}
	for vk := keys.VKA; vk <= keys.VKZ; vk++ {
		s.keyText[vk] = string(rune('a' + vk - keys.VKA))
	}
	for vk := keys.VK0; vk <= keys.VK9; vk++ {
		s.keyText[vk] = string(rune('0' + vk - keys.VK0))
	}
	s.keyText[keys.VKSpace] = " "
	return s
}

// Platform wraps s in a Platform bundle.
func (s *Simulated) Platform() *Platform {
	return &Platform{
		Hooks:        s,
		Introspector: s,
		Translator:   s,
		Clipboard:    s,
		Focus:        s,
		Icons:        s,
	}
}

// FailStart makes the next Start return err.
func (s *Simulated) FailStart(err error) {
	s.mu.Lock()
	s.startErr = err
	s.mu.Unlock()
}

// SetWindowEvents toggles whether window hooks are reported as live.
func (s *Simulated) SetWindowEvents(on bool) {
	s.mu.Lock()
	s.windowEvents = on
	s.mu.Unlock()
}

// Start implements Hooks.
func (s *Simulated) Start(h Handlers) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		err := s.startErr
		s.startErr = nil
		return err
	}
	if s.handlers != nil {
		return fmt.Errorf("hooks already installed")
	}
	s.handlers = &h
	return nil
}

// Stop implements Hooks.
func (s *Simulated) Stop() error {
	s.mu.Lock()
	s.handlers = nil
	s.mu.Unlock()
	return nil
}

// WindowEvents implements Hooks.
func (s *Simulated) WindowEvents() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windowEvents
}

// Installed reports whether hooks are currently installed.
func (s *Simulated) Installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers != nil
}

func (s *Simulated) current() *Handlers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers
}

// Key injects one key transition.
func (s *Simulated) Key(vk uint32, down bool) {
	if h := s.current(); h != nil && h.Key != nil {
		h.Key(KeyEvent{VK: vk, Down: down})
	}
}

// Press injects a key down followed by a key up.
func (s *Simulated) Press(vk uint32) {
	s.Key(vk, true)
	s.Key(vk, false)
}

// Chord presses vk while holding mods.
func (s *Simulated) Chord(vk uint32, mods ...uint32) {
	for _, m := range mods {
		s.Key(m, true)
	}
	s.Press(vk)
	for i := len(mods) - 1; i >= 0; i-- {
		s.Key(mods[i], false)
	}
}

// Type injects the key presses that produce text on the default layout.
// '\b' presses Backspace, '\n' Enter and '\t' Tab.
func (s *Simulated) Type(text string) {
	for _, r := range text {
		switch {
		case r == '\b':
			s.Press(keys.VKBack)
		case r == '\n':
			s.Press(keys.VKReturn)
		case r == '\t':
			s.Press(keys.VKTab)
		case r == ' ':
			s.Press(keys.VKSpace)
		case r >= 'a' && r <= 'z':
			s.Press(keys.VKA + uint32(r-'a'))
		case r >= 'A' && r <= 'Z':
			s.Chord(keys.VKA+uint32(r-'A'), keys.VKLShift)
		case r >= '0' && r <= '9':
			s.Press(keys.VK0 + uint32(r-'0'))
		}
	}
}

// Mouse injects a pointer notification and moves the cursor.
func (s *Simulated) Mouse(ev MouseEvent) {
	s.mu.Lock()
	s.cursorX, s.cursorY = ev.X, ev.Y
	h := s.handlers
	s.mu.Unlock()
	if h != nil && h.Mouse != nil {
		h.Mouse(ev)
	}
}

// SetKeyText maps vk to text for the translator.
func (s *Simulated) SetKeyText(vk uint32, text string) {
	s.mu.Lock()
	s.keyText[vk] = text
	s.mu.Unlock()
}

// SetDeadKey makes vk a dead key producing accent.
func (s *Simulated) SetDeadKey(vk uint32, accent rune) {
	s.mu.Lock()
	s.dead[vk] = accent
	s.mu.Unlock()
}

// Activate registers w, makes it the foreground window and, when window
// events are live, notifies the handlers.
func (s *Simulated) Activate(w Window) {
	s.mu.Lock()
	s.windows[w.Handle] = w
	s.foreground = w.Handle
	h, live := s.handlers, s.windowEvents
	s.mu.Unlock()
	if live && h != nil && h.Window != nil {
		h.Window(WindowEvent{Kind: WindowForeground, Handle: w.Handle})
	}
}

// Resize changes the rectangle of a known window and notifies the
// handlers.
func (s *Simulated) Resize(handle uintptr, r event.Rect) {
	s.mu.Lock()
	w, ok := s.windows[handle]
	if ok {
		w.Rect, w.HasRect = r, true
		s.windows[handle] = w
	}
	h, live := s.handlers, s.windowEvents
	s.mu.Unlock()
	if ok && live && h != nil && h.Window != nil {
		h.Window(WindowEvent{Kind: WindowGeometry, Handle: handle})
	}
}

// SetClipboardText replaces the clipboard with text.
func (s *Simulated) SetClipboardText(text string) {
	s.setClipboard(ClipboardContent{Text: text, HasText: true})
}

// SetClipboardFiles replaces the clipboard with a file list.
func (s *Simulated) SetClipboardFiles(files ...string) {
	s.setClipboard(ClipboardContent{Files: files, HasFiles: true})
}

// SetClipboardDIB replaces the clipboard with a packed bitmap.
func (s *Simulated) SetClipboardDIB(data []byte) {
	s.setClipboard(ClipboardContent{DIB: data, HasDIB: true})
}

// FailClipboard makes Read return err until the next content change.
func (s *Simulated) FailClipboard(err error) {
	s.mu.Lock()
	s.clipErr = err
	s.seq++
	s.mu.Unlock()
}

func (s *Simulated) setClipboard(c ClipboardContent) {
	s.mu.Lock()
	s.clip = c
	s.clipErr = nil
	s.seq++
	s.mu.Unlock()
}

// SetFocus sets what the accessibility probe reports.
func (s *Simulated) SetFocus(el FocusedElement, err error) {
	s.mu.Lock()
	s.focus, s.focusErr = el, err
	s.mu.Unlock()
}

// SetIcon registers the icon returned for processPath.
func (s *Simulated) SetIcon(processPath string, img image.Image) {
	s.mu.Lock()
	s.icons[strings.ToLower(processPath)] = img
	s.mu.Unlock()
}

// Foreground implements Introspector.
func (s *Simulated) Foreground() uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.foreground
}

// Window implements Introspector.
func (s *Simulated) Window(h uintptr) (Window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[h]
	return w, ok
}

// Rect implements Introspector.
func (s *Simulated) Rect(h uintptr) (event.Rect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[h]
	if !ok || !w.HasRect {
		return event.Rect{}, false
	}
	return w.Rect, true
}

// Cursor implements Introspector.
func (s *Simulated) Cursor() (int32, int32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursorX, s.cursorY, true
}

// Translate implements KeyTranslator.
func (s *Simulated) Translate(ev KeyEvent, state *keys.State) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if accent, ok := s.dead[ev.VK]; ok {
		return string(accent), true
	}
	text := s.keyText[ev.VK]
	if state != nil && (state.Down(keys.VKShift) || state.Down(keys.VKLShift) || state.Down(keys.VKRShift)) {
		text = strings.Map(unicode.ToUpper, text)
	}
	return text, false
}

// Sequence implements Clipboard.
func (s *Simulated) Sequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Read implements Clipboard.
func (s *Simulated) Read() (ClipboardContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clipErr != nil {
		return ClipboardContent{}, s.clipErr
	}
	c := s.clip
	c.Files = append([]string(nil), c.Files...)
	c.DIB = append([]byte(nil), c.DIB...)
	return c, nil
}

// Focused implements FocusProbe.
func (s *Simulated) Focused() (FocusedElement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focus, s.focusErr
}

// Icon implements IconExtractor.
func (s *Simulated) Icon(processPath string) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.icons[strings.ToLower(processPath)]
	if !ok {
		return nil, ErrNotAvailable
	}
	return img, nil
}
