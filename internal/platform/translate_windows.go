//go:build windows

package platform

import (
	"strings"
	"unicode"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"

	"deskrec/internal/keys"
)

var (
	procToUnicodeEx       = user32.NewProc("ToUnicodeEx")
	procGetKeyboardLayout = user32.NewProc("GetKeyboardLayout")
	procGetKeyState       = user32.NewProc("GetKeyState")
)

// Leaves the kernel keyboard state untouched, so translating from the
// hook does not swallow the target application's dead keys.
const toUnicodeNoStateChange = 0x4

type winTranslator struct{}

func (winTranslator) Translate(ev KeyEvent, st *keys.State) (string, bool) {
	var ks [256]byte
	for vk, down := range st {
		if down {
			ks[vk] = 0x80
		}
	}
	if st.Down(keys.VKLShift) || st.Down(keys.VKRShift) {
		ks[keys.VKShift] = 0x80
	}
	if st.Down(keys.VKLControl) || st.Down(keys.VKRControl) {
		ks[keys.VKControl] = 0x80
	}
	if st.Down(keys.VKLMenu) || st.Down(keys.VKRMenu) {
		ks[keys.VKMenu] = 0x80
	}
	if caps, _, _ := procGetKeyState.Call(uintptr(keys.VKCapital)); caps&1 != 0 {
		ks[keys.VKCapital] |= 0x01
	}

	tid, _ := windows.GetWindowThreadProcessId(windows.GetForegroundWindow(), nil)
	hkl, _, _ := procGetKeyboardLayout.Call(uintptr(tid))

	var buf [8]uint16
	n, _, _ := procToUnicodeEx.Call(
		uintptr(ev.VK), uintptr(ev.Scan),
		uintptr(unsafe.Pointer(&ks[0])),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)),
		toUnicodeNoStateChange, hkl,
	)
	switch r := int32(n); {
	case r < 0:
		return string(utf16.Decode(buf[:1])), true
	case r == 0:
		return "", false
	default:
		s := string(utf16.Decode(buf[:r]))
		return strings.Map(func(c rune) rune {
			if unicode.IsControl(c) {
				return -1
			}
			return c
		}, s), false
	}
}
