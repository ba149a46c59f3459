// Package keys classifies Windows virtual-key codes: display names,
// modifier state, chord detection and dead-key composition.
package keys

import (
	"fmt"
	"strings"
)

// Virtual-key codes used by the capture pipeline.
const (
	VKBack     uint32 = 0x08
	VKTab      uint32 = 0x09
	VKReturn   uint32 = 0x0D
	VKShift    uint32 = 0x10
	VKControl  uint32 = 0x11
	VKMenu     uint32 = 0x12
	VKPause    uint32 = 0x13
	VKCapital  uint32 = 0x14
	VKEscape   uint32 = 0x1B
	VKSpace    uint32 = 0x20
	VKPrior    uint32 = 0x21
	VKNext     uint32 = 0x22
	VKEnd      uint32 = 0x23
	VKHome     uint32 = 0x24
	VKLeft     uint32 = 0x25
	VKUp       uint32 = 0x26
	VKRight    uint32 = 0x27
	VKDown     uint32 = 0x28
	VKSnapshot uint32 = 0x2C
	VKInsert   uint32 = 0x2D
	VKDelete   uint32 = 0x2E
	VK0        uint32 = 0x30
	VK9        uint32 = 0x39
	VKA        uint32 = 0x41
	VKZ        uint32 = 0x5A
	VKLWin     uint32 = 0x5B
	VKRWin     uint32 = 0x5C
	VKApps     uint32 = 0x5D
	VKNumpad0  uint32 = 0x60
	VKNumpad9  uint32 = 0x69
	VKMultiply uint32 = 0x6A
	VKAdd      uint32 = 0x6B
	VKSubtract uint32 = 0x6D
	VKDecimal  uint32 = 0x6E
	VKDivide   uint32 = 0x6F
	VKF1       uint32 = 0x70
	VKF24      uint32 = 0x87
	VKNumLock  uint32 = 0x90
	VKScroll   uint32 = 0x91
	VKLShift   uint32 = 0xA0
	VKRShift   uint32 = 0xA1
	VKLControl uint32 = 0xA2
	VKRControl uint32 = 0xA3
	VKLMenu    uint32 = 0xA4
	VKRMenu    uint32 = 0xA5
)

// Modifier names in the order they are reported.
const (
	Ctrl  = "Ctrl"
	Shift = "Shift"
	Alt   = "Alt"
	Win   = "Win"
)

var names = map[uint32]string{
	VKBack:     "Backspace",
	VKTab:      "Tab",
	VKReturn:   "Enter",
	VKPause:    "Pause",
	VKCapital:  "CapsLock",
	VKEscape:   "Esc",
	VKSpace:    "Space",
	VKPrior:    "PageUp",
	VKNext:     "PageDown",
	VKEnd:      "End",
	VKHome:     "Home",
	VKLeft:     "Left",
	VKUp:       "Up",
	VKRight:    "Right",
	VKDown:     "Down",
	VKSnapshot: "PrintScreen",
	VKInsert:   "Insert",
	VKDelete:   "Delete",
	VKApps:     "Menu",
	VKMultiply: "Num*",
	VKAdd:      "Num+",
	VKSubtract: "Num-",
	VKDecimal:  "Num.",
	VKDivide:   "Num/",
	VKNumLock:  "NumLock",
	VKScroll:   "ScrollLock",
}

// Name returns the display name of a virtual key, or VK_XX for keys
// without one.
func Name(vk uint32) string {
	switch {
	case vk >= VK0 && vk <= VK9, vk >= VKA && vk <= VKZ:
		return string(rune(vk))
	case vk >= VKNumpad0 && vk <= VKNumpad9:
		return fmt.Sprintf("Num%d", vk-VKNumpad0)
	case vk >= VKF1 && vk <= VKF24:
		return fmt.Sprintf("F%d", vk-VKF1+1)
	}
	if IsModifier(vk) {
		return ModifierName(vk)
	}
	if n, ok := names[vk]; ok {
		return n
	}
	return fmt.Sprintf("VK_%02X", vk)
}

// Lookup resolves a display name back to a virtual key.
func Lookup(name string) (uint32, bool) {
	if len(name) == 1 {
		c := strings.ToUpper(name)[0]
		if (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') {
			return uint32(c), true
		}
	}
	for vk := uint32(1); vk < 256; vk++ {
		if strings.EqualFold(Name(vk), name) {
			return vk, true
		}
	}
	return 0, false
}

// IsModifier reports whether vk is a Ctrl, Shift, Alt or Win key.
func IsModifier(vk uint32) bool {
	return ModifierName(vk) != ""
}

// ModifierName collapses left/right variants into one modifier name.
func ModifierName(vk uint32) string {
	switch vk {
	case VKControl, VKLControl, VKRControl:
		return Ctrl
	case VKShift, VKLShift, VKRShift:
		return Shift
	case VKMenu, VKLMenu, VKRMenu:
		return Alt
	case VKLWin, VKRWin:
		return Win
	}
	return ""
}

// State is the set of currently pressed virtual keys.
type State [256]bool

// Press marks vk as held.
func (s *State) Press(vk uint32) {
	if vk < 256 {
		s[vk] = true
	}
}

// Release marks vk as released.
func (s *State) Release(vk uint32) {
	if vk < 256 {
		s[vk] = false
	}
}

// Down reports whether vk is held.
func (s *State) Down(vk uint32) bool {
	return vk < 256 && s[vk]
}

// Reset releases every key.
func (s *State) Reset() {
	*s = State{}
}

func (s *State) ctrl() bool  { return s[VKControl] || s[VKLControl] || s[VKRControl] }
func (s *State) shift() bool { return s[VKShift] || s[VKLShift] || s[VKRShift] }
func (s *State) alt() bool   { return s[VKMenu] || s[VKLMenu] || s[VKRMenu] }
func (s *State) win() bool   { return s[VKLWin] || s[VKRWin] }

// Modifiers lists held modifiers as Ctrl, Shift, Alt, Win in that order.
func (s *State) Modifiers() []string {
	mods := make([]string, 0, 4)
	if s.ctrl() {
		mods = append(mods, Ctrl)
	}
	if s.shift() {
		mods = append(mods, Shift)
	}
	if s.alt() {
		mods = append(mods, Alt)
	}
	if s.win() {
		mods = append(mods, Win)
	}
	return mods
}

// IsChord reports whether pressing vk now forms a shortcut: a
// non-modifier key with Ctrl, Alt or Win held. Shift alone only changes
// case and does not form a chord.
func (s *State) IsChord(vk uint32) bool {
	if IsModifier(vk) {
		return false
	}
	return s.ctrl() || s.alt() || s.win()
}

// AltGr reports the Ctrl+RightAlt combination Windows synthesizes for
// the AltGr key on international layouts.
func (s *State) AltGr() bool {
	return s[VKRMenu] && (s[VKLControl] || s[VKControl]) && !s.win()
}

// Hotkey is a modifier set plus one key.
type Hotkey struct {
	Modifiers []string
	VK        uint32
}

// ParseHotkey parses strings such as "Ctrl+0" or "Ctrl+Shift+M".
func ParseHotkey(s string) (Hotkey, error) {
	parts := strings.Split(s, "+")
	if len(parts) < 2 {
		return Hotkey{}, fmt.Errorf("hotkey %q: need at least one modifier and a key", s)
	}
	var h Hotkey
	seen := make(map[string]bool)
	for _, p := range parts[:len(parts)-1] {
		m := canonicalModifier(strings.TrimSpace(p))
		if m == "" {
			return Hotkey{}, fmt.Errorf("hotkey %q: unknown modifier %q", s, p)
		}
		seen[m] = true
	}
	for _, m := range []string{Ctrl, Shift, Alt, Win} {
		if seen[m] {
			h.Modifiers = append(h.Modifiers, m)
		}
	}
	vk, ok := Lookup(strings.TrimSpace(parts[len(parts)-1]))
	if !ok || IsModifier(vk) {
		return Hotkey{}, fmt.Errorf("hotkey %q: unknown key %q", s, parts[len(parts)-1])
	}
	h.VK = vk
	return h, nil
}

func canonicalModifier(s string) string {
	switch strings.ToLower(s) {
	case "ctrl", "control":
		return Ctrl
	case "shift":
		return Shift
	case "alt":
		return Alt
	case "win", "super", "meta":
		return Win
	}
	return ""
}

// Matches reports whether vk pressed with state s triggers the hotkey.
// The modifier set must match exactly.
func (h Hotkey) Matches(s *State, vk uint32) bool {
	if vk != h.VK {
		return false
	}
	mods := s.Modifiers()
	if len(mods) != len(h.Modifiers) {
		return false
	}
	for i := range mods {
		if mods[i] != h.Modifiers[i] {
			return false
		}
	}
	return true
}

// String renders the hotkey in the form ParseHotkey accepts.
func (h Hotkey) String() string {
	return strings.Join(append(append([]string{}, h.Modifiers...), Name(h.VK)), "+")
}
