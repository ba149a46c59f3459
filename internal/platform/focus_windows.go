//go:build windows

package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

var (
	clsidCUIAutomation = ole.NewGUID("{FF48DBA4-60EF-4201-AA87-54103EEF594E}")
	iidIUIAutomation   = ole.NewGUID("{30CBE57D-D9D0-452A-AB13-7AC5AC4825EE}")
)

// Vtable slots, counted from IUnknown.
const (
	vtRelease                     = 2
	vtAutomationGetFocusedElement = 8
	vtElementCurrentControlType   = 21
	vtElementCurrentIsPassword    = 35

	uiaEditControlTypeID     = 50004
	uiaDocumentControlTypeID = 50030

	focusRefresh = 100 * time.Millisecond
)

// uiaProbe polls UI Automation on its own COM thread. Focused only reads
// the cached snapshot, so callers on the hook thread never wait on COM.
type uiaProbe struct {
	logger *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	latest    atomic.Pointer[focusSnapshot]
	stop      chan struct{}
	done      chan struct{}
}

func newFocusProbe(logger *slog.Logger) *uiaProbe {
	return &uiaProbe{
		logger: logger.With("component", "uia"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (p *uiaProbe) start() {
	p.startOnce.Do(func() { go p.run() })
}

func (p *uiaProbe) Focused() (FocusedElement, error) {
	p.start()
	return p.latest.Load().answer(uintptr(windows.GetForegroundWindow()), time.Now())
}

// Close stops the refresher. A probe that never started is marked done.
func (p *uiaProbe) Close() error {
	p.startOnce.Do(func() { close(p.done) })
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
	return nil
}

func (p *uiaProbe) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(p.done)

	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || oleErr.Code() != 1 { // S_FALSE
			p.fail(fmt.Errorf("initialize COM: %w", err))
			return
		}
	}
	defer ole.CoUninitialize()

	automation, err := ole.CreateInstance(clsidCUIAutomation, iidIUIAutomation)
	if err != nil {
		p.fail(fmt.Errorf("create UI Automation: %w", err))
		return
	}
	defer automation.Release()

	ticker := time.NewTicker(focusRefresh)
	defer ticker.Stop()
	for {
		fg := windows.GetForegroundWindow()
		el, err := queryFocus(uintptr(unsafe.Pointer(automation)))
		p.latest.Store(&focusSnapshot{el: el, err: err, at: time.Now(), foreground: uintptr(fg)})
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}
	}
}

// fail records a permanent error that Focused returns from then on.
func (p *uiaProbe) fail(err error) {
	p.logger.Warn("accessibility service unavailable", "error", err)
	p.latest.Store(&focusSnapshot{err: fmt.Errorf("%w: %v", ErrNotAvailable, err), at: time.Now(), permanent: true})
}

func method(obj uintptr, slot int) uintptr {
	vtbl := *(*uintptr)(unsafe.Pointer(obj))
	return *(*uintptr)(unsafe.Pointer(vtbl + uintptr(slot)*unsafe.Sizeof(uintptr(0))))
}

func queryFocus(automation uintptr) (FocusedElement, error) {
	var el uintptr
	hr, _, _ := syscall.SyscallN(method(automation, vtAutomationGetFocusedElement), automation, uintptr(unsafe.Pointer(&el)))
	if int32(hr) < 0 {
		return FocusedElement{}, fmt.Errorf("GetFocusedElement: hresult 0x%08x", uint32(hr))
	}
	if el == 0 {
		return FocusedElement{}, nil
	}
	defer syscall.SyscallN(method(el, vtRelease), el)

	out := FocusedElement{Present: true}

	var controlType int32
	hr, _, _ = syscall.SyscallN(method(el, vtElementCurrentControlType), el, uintptr(unsafe.Pointer(&controlType)))
	if int32(hr) < 0 {
		return FocusedElement{}, fmt.Errorf("get_CurrentControlType: hresult 0x%08x", uint32(hr))
	}
	switch controlType {
	case uiaEditControlTypeID:
		out.ControlType = ControlEdit
	case uiaDocumentControlTypeID:
		out.ControlType = ControlDocument
	}

	var isPassword int32
	hr, _, _ = syscall.SyscallN(method(el, vtElementCurrentIsPassword), el, uintptr(unsafe.Pointer(&isPassword)))
	if int32(hr) < 0 {
		return FocusedElement{}, fmt.Errorf("get_CurrentIsPassword: hresult 0x%08x", uint32(hr))
	}
	out.IsPassword = isPassword != 0
	return out, nil
}
