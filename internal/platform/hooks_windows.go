//go:build windows

package platform

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procSetWinEventHook     = user32.NewProc("SetWinEventHook")
	procUnhookWinEvent      = user32.NewProc("UnhookWinEvent")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procDispatchMessageW    = user32.NewProc("DispatchMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetModuleHandleW    = kernel32.NewProc("GetModuleHandleW")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	wmQuit        = 0x0012
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmMouseMove   = 0x0200
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208
	wmMouseWheel  = 0x020A
	wmXButtonDown = 0x020B
	wmXButtonUp   = 0x020C
	wmMouseHWheel = 0x020E

	llkhfExtended = 0x01
	llkhfInjected = 0x10
	llmhfInjected = 0x01

	eventSystemForeground     = 0x0003
	eventObjectLocationChange = 0x800B
	wineventOutOfContext      = 0x0000
	wineventSkipOwnProcess    = 0x0002
	objidWindow               = 0
	childidSelf               = 0
)

type kbdllhookstruct struct {
	VkCode    uint32
	ScanCode  uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

type point struct {
	X, Y int32
}

type msllhookstruct struct {
	Pt        point
	MouseData uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
	Private uint32
}

// The OS calls hook procedures without a context argument, so the active
// handlers are routed through this one slot. Only one winHooks may be
// started at a time.
var activeHandlers atomic.Pointer[Handlers]

// Callbacks are created once; windows.NewCallback slots are never freed.
var (
	keyboardCallback = windows.NewCallback(keyboardProc)
	mouseCallback    = windows.NewCallback(mouseProc)
	winEventCallback = windows.NewCallback(winEventProc)
)

func keyboardProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) >= 0 {
		if h := activeHandlers.Load(); h != nil && h.Key != nil {
			kb := (*kbdllhookstruct)(unsafe.Pointer(lParam))
			ev := KeyEvent{
				VK:       kb.VkCode,
				Scan:     kb.ScanCode,
				Injected: kb.Flags&llkhfInjected != 0,
				Extended: kb.Flags&llkhfExtended != 0,
			}
			switch wParam {
			case wmKeyDown, wmSysKeyDown:
				ev.Down = true
				dispatch(func() { h.Key(ev) })
			case wmKeyUp, wmSysKeyUp:
				dispatch(func() { h.Key(ev) })
			}
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return r
}

func mouseProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) >= 0 {
		if h := activeHandlers.Load(); h != nil && h.Mouse != nil {
			ms := (*msllhookstruct)(unsafe.Pointer(lParam))
			ev := MouseEvent{
				X:        ms.Pt.X,
				Y:        ms.Pt.Y,
				Injected: ms.Flags&llmhfInjected != 0,
			}
			known := true
			switch wParam {
			case wmMouseMove:
				ev.Action = MouseMove
			case wmLButtonDown:
				ev.Action = LeftDown
			case wmLButtonUp:
				ev.Action = LeftUp
			case wmRButtonDown:
				ev.Action = RightDown
			case wmRButtonUp:
				ev.Action = RightUp
			case wmMButtonDown:
				ev.Action = MiddleDown
			case wmMButtonUp:
				ev.Action = MiddleUp
			case wmXButtonDown:
				ev.Action = XDown
			case wmXButtonUp:
				ev.Action = XUp
			case wmMouseWheel:
				ev.Action = Wheel
				ev.Delta = int32(int16(ms.MouseData >> 16))
			case wmMouseHWheel:
				ev.Action = HWheel
				ev.Delta = int32(int16(ms.MouseData >> 16))
			default:
				known = false
			}
			if known {
				dispatch(func() { h.Mouse(ev) })
			}
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return r
}

func winEventProc(hook, ev, hwnd, idObject, idChild, thread, timeMs uintptr) uintptr {
	if hwnd == 0 {
		return 0
	}
	h := activeHandlers.Load()
	if h == nil || h.Window == nil {
		return 0
	}
	switch ev {
	case eventSystemForeground:
		dispatch(func() { h.Window(WindowEvent{Kind: WindowForeground, Handle: hwnd}) })
	case eventObjectLocationChange:
		if int32(idObject) == objidWindow && int32(idChild) == childidSelf {
			dispatch(func() { h.Window(WindowEvent{Kind: WindowGeometry, Handle: hwnd}) })
		}
	}
	return 0
}

// dispatch shields the hook chain from a panicking handler.
func dispatch(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

type winHooks struct {
	logger     *slog.Logger
	wantEvents bool

	mu       sync.Mutex
	running  bool
	threadID uint32
	done     chan struct{}
	events   atomic.Bool
}

func newHooks(logger *slog.Logger, windowEvents bool) *winHooks {
	return &winHooks{logger: logger.With("component", "hooks"), wantEvents: windowEvents}
}

func (w *winHooks) WindowEvents() bool {
	return w.events.Load()
}

func (w *winHooks) Start(h Handlers) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("hooks already installed")
	}
	if !activeHandlers.CompareAndSwap(nil, &h) {
		return fmt.Errorf("another hook set is active")
	}

	ready := make(chan error, 1)
	w.done = make(chan struct{})
	go w.loop(ready)
	if err := <-ready; err != nil {
		activeHandlers.Store(nil)
		return err
	}
	w.running = true
	return nil
}

// loop owns the hook thread: hooks are installed, pumped and removed on
// the same locked OS thread.
func (w *winHooks) loop(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	w.threadID = windows.GetCurrentThreadId()
	module, _, _ := procGetModuleHandleW.Call(0)

	kb, _, err := procSetWindowsHookExW.Call(whKeyboardLL, keyboardCallback, module, 0)
	if kb == 0 {
		ready <- fmt.Errorf("install keyboard hook: %w", err)
		return
	}
	ms, _, err := procSetWindowsHookExW.Call(whMouseLL, mouseCallback, module, 0)
	if ms == 0 {
		procUnhookWindowsHookEx.Call(kb)
		ready <- fmt.Errorf("install mouse hook: %w", err)
		return
	}

	var eventHooks []uintptr
	if w.wantEvents {
		flags := uintptr(wineventOutOfContext | wineventSkipOwnProcess)
		fg, _, _ := procSetWinEventHook.Call(eventSystemForeground, eventSystemForeground, 0, winEventCallback, 0, 0, flags)
		loc, _, _ := procSetWinEventHook.Call(eventObjectLocationChange, eventObjectLocationChange, 0, winEventCallback, 0, 0, flags)
		if fg != 0 && loc != 0 {
			eventHooks = []uintptr{fg, loc}
			w.events.Store(true)
		} else {
			for _, hk := range []uintptr{fg, loc} {
				if hk != 0 {
					procUnhookWinEvent.Call(hk)
				}
			}
			w.logger.Warn("window event hooks unavailable, falling back to polling")
		}
	}
	ready <- nil

	var m msg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 {
			break
		}
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}

	for _, hk := range eventHooks {
		procUnhookWinEvent.Call(hk)
	}
	w.events.Store(false)
	if r, _, err := procUnhookWindowsHookEx.Call(ms); r == 0 {
		w.logger.Warn("unhook mouse failed", "error", err)
	}
	if r, _, err := procUnhookWindowsHookEx.Call(kb); r == 0 {
		w.logger.Warn("unhook keyboard failed", "error", err)
	}
}

func (w *winHooks) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	defer activeHandlers.Store(nil)

	if r, _, err := procPostThreadMessageW.Call(uintptr(w.threadID), wmQuit, 0, 0); r == 0 {
		return fmt.Errorf("post quit to hook thread: %w", err)
	}
	select {
	case <-w.done:
		return nil
	case <-time.After(2 * time.Second):
		return fmt.Errorf("hook thread did not exit")
	}
}
