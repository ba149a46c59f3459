//go:build windows

package platform

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"deskrec/internal/event"
)

var (
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowRect        = user32.NewProc("GetWindowRect")
	procGetCursorPos         = user32.NewProc("GetCursorPos")
	procIsWindow             = user32.NewProc("IsWindow")
)

type rect struct {
	Left, Top, Right, Bottom int32
}

type winIntrospector struct{}

func (winIntrospector) Foreground() uintptr {
	return uintptr(windows.GetForegroundWindow())
}

func (i winIntrospector) Window(h uintptr) (Window, bool) {
	if h == 0 {
		return Window{}, false
	}
	if ok, _, _ := procIsWindow.Call(h); ok == 0 {
		return Window{}, false
	}
	w := Window{
		Handle: h,
		Title:  windowText(h),
		Class:  className(h),
	}
	w.Rect, w.HasRect = i.Rect(h)

	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(windows.HWND(h), &pid); err == nil && pid != 0 {
		w.PID = pid
		w.ProcessPath = processImage(pid)
	}
	return w, true
}

func (winIntrospector) Rect(h uintptr) (event.Rect, bool) {
	var r rect
	if ok, _, _ := procGetWindowRect.Call(h, uintptr(unsafe.Pointer(&r))); ok == 0 {
		return event.Rect{}, false
	}
	return event.NewRect(r.Left, r.Top, r.Right, r.Bottom), true
}

func (winIntrospector) Cursor() (int32, int32, bool) {
	var p point
	if ok, _, _ := procGetCursorPos.Call(uintptr(unsafe.Pointer(&p))); ok == 0 {
		return 0, 0, false
	}
	return p.X, p.Y, true
}

func windowText(h uintptr) string {
	n, _, _ := procGetWindowTextLengthW.Call(h)
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	got, _, _ := procGetWindowTextW.Call(h, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf[:got])
}

func className(h uintptr) string {
	buf := make([]uint16, 256)
	n, err := windows.GetClassName(windows.HWND(h), &buf[0], int32(len(buf)))
	if err != nil {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}

// processImage returns the full image path of pid, or "" when the
// process cannot be opened (elevated or already gone).
func processImage(pid uint32) string {
	hp, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(hp)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(hp, 0, &buf[0], &size); err != nil {
		return ""
	}
	return windows.UTF16ToString(buf[:size])
}
