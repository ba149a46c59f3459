//go:build windows

package platform

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	shell32 = windows.NewLazySystemDLL("shell32.dll")

	procOpenClipboard              = user32.NewProc("OpenClipboard")
	procCloseClipboard             = user32.NewProc("CloseClipboard")
	procGetClipboardData           = user32.NewProc("GetClipboardData")
	procIsClipboardFormatAvailable = user32.NewProc("IsClipboardFormatAvailable")
	procGetClipboardSequenceNumber = user32.NewProc("GetClipboardSequenceNumber")
	procGlobalLock                 = kernel32.NewProc("GlobalLock")
	procGlobalUnlock               = kernel32.NewProc("GlobalUnlock")
	procGlobalSize                 = kernel32.NewProc("GlobalSize")
	procDragQueryFileW             = shell32.NewProc("DragQueryFileW")
)

const (
	cfDIB         = 8
	cfUnicodeText = 13
	cfHDROP       = 15
	cfDIBV5       = 17

	// maxClipboardBytes bounds a single global memory copy.
	maxClipboardBytes = 256 << 20
)

type winClipboard struct{}

func (winClipboard) Sequence() uint32 {
	n, _, _ := procGetClipboardSequenceNumber.Call()
	return uint32(n)
}

func (winClipboard) Read() (ClipboardContent, error) {
	if err := openClipboard(); err != nil {
		return ClipboardContent{}, err
	}
	defer procCloseClipboard.Call()

	var c ClipboardContent
	for _, format := range []uintptr{cfDIBV5, cfDIB} {
		if available(format) {
			if data, err := globalBytes(format); err == nil {
				c.DIB, c.HasDIB = data, true
				break
			}
		}
	}
	if available(cfHDROP) {
		if h, _, _ := procGetClipboardData.Call(cfHDROP); h != 0 {
			c.Files = dropFiles(h)
			c.HasFiles = len(c.Files) > 0
		}
	}
	if available(cfUnicodeText) {
		if data, err := globalBytes(cfUnicodeText); err == nil {
			c.Text, c.HasText = utf16Bytes(data), true
		}
	}
	return c, nil
}

// openClipboard retries briefly because another process may hold the
// clipboard open while it writes.
func openClipboard() error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		var ok uintptr
		ok, _, err = procOpenClipboard.Call(0)
		if ok != 0 {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("open clipboard: %w", err)
}

func available(format uintptr) bool {
	ok, _, _ := procIsClipboardFormatAvailable.Call(format)
	return ok != 0
}

// globalBytes copies the global memory block for format out of the
// clipboard.
func globalBytes(format uintptr) ([]byte, error) {
	h, _, err := procGetClipboardData.Call(format)
	if h == 0 {
		return nil, fmt.Errorf("get clipboard data: %w", err)
	}
	size, _, _ := procGlobalSize.Call(h)
	if size == 0 || size > maxClipboardBytes {
		return nil, fmt.Errorf("clipboard block of %d bytes", size)
	}
	p, _, err := procGlobalLock.Call(h)
	if p == 0 {
		return nil, fmt.Errorf("lock clipboard data: %w", err)
	}
	defer procGlobalUnlock.Call(h)

	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(p)), size))
	return out, nil
}

// utf16Bytes decodes a NUL-terminated UTF-16LE buffer.
func utf16Bytes(b []byte) string {
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return windows.UTF16ToString(u)
}

func dropFiles(h uintptr) []string {
	count, _, _ := procDragQueryFileW.Call(h, 0xFFFFFFFF, 0, 0)
	files := make([]string, 0, count)
	for i := uintptr(0); i < count; i++ {
		n, _, _ := procDragQueryFileW.Call(h, i, 0, 0)
		if n == 0 {
			continue
		}
		buf := make([]uint16, n+1)
		procDragQueryFileW.Call(h, i, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
		files = append(files, windows.UTF16ToString(buf))
	}
	return files
}
