//go:build windows

package platform

import (
	"fmt"
	"image"
	"unsafe"

	"golang.org/x/sys/windows"

	"deskrec/internal/dib"
)

var (
	gdi32 = windows.NewLazySystemDLL("gdi32.dll")

	procExtractIconExW = shell32.NewProc("ExtractIconExW")
	procDestroyIcon    = user32.NewProc("DestroyIcon")
	procGetIconInfo    = user32.NewProc("GetIconInfo")
	procGetDC          = user32.NewProc("GetDC")
	procReleaseDC      = user32.NewProc("ReleaseDC")
	procGetObjectW     = gdi32.NewProc("GetObjectW")
	procGetDIBits      = gdi32.NewProc("GetDIBits")
	procDeleteObject   = gdi32.NewProc("DeleteObject")
)

type iconInfo struct {
	FIcon    int32
	XHotspot uint32
	YHotspot uint32
	HbmMask  uintptr
	HbmColor uintptr
}

type bitmap struct {
	Type       int32
	Width      int32
	Height     int32
	WidthBytes int32
	Planes     uint16
	BitsPixel  uint16
	Bits       uintptr
}

type bitmapInfo struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
	Colors        [4]uint32
}

type winIcons struct{}

func (winIcons) Icon(processPath string) (image.Image, error) {
	if processPath == "" {
		return nil, ErrNotAvailable
	}
	path, err := windows.UTF16PtrFromString(processPath)
	if err != nil {
		return nil, err
	}

	var large uintptr
	n, _, _ := procExtractIconExW.Call(uintptr(unsafe.Pointer(path)), 0, uintptr(unsafe.Pointer(&large)), 0, 1)
	if n == 0 || large == 0 {
		return nil, fmt.Errorf("no icon in %s", processPath)
	}
	defer procDestroyIcon.Call(large)

	var ii iconInfo
	if ok, _, err := procGetIconInfo.Call(large, uintptr(unsafe.Pointer(&ii))); ok == 0 {
		return nil, fmt.Errorf("get icon info: %w", err)
	}
	if ii.HbmMask != 0 {
		defer procDeleteObject.Call(ii.HbmMask)
	}
	if ii.HbmColor == 0 {
		return nil, fmt.Errorf("monochrome icon in %s", processPath)
	}
	defer procDeleteObject.Call(ii.HbmColor)

	var bm bitmap
	if ok, _, _ := procGetObjectW.Call(ii.HbmColor, unsafe.Sizeof(bm), uintptr(unsafe.Pointer(&bm))); ok == 0 {
		return nil, fmt.Errorf("get icon bitmap")
	}
	if bm.Width <= 0 || bm.Height <= 0 || bm.Width > 256 || bm.Height > 256 {
		return nil, fmt.Errorf("icon size %dx%d", bm.Width, bm.Height)
	}

	hdc, _, _ := procGetDC.Call(0)
	if hdc == 0 {
		return nil, fmt.Errorf("get screen dc")
	}
	defer procReleaseDC.Call(0, hdc)

	bi := bitmapInfo{
		Width:    bm.Width,
		Height:   -bm.Height, // top-down
		Planes:   1,
		BitCount: 32,
	}
	bi.Size = uint32(unsafe.Offsetof(bi.Colors))
	pix := make([]byte, int(bm.Width)*int(bm.Height)*4)
	lines, _, _ := procGetDIBits.Call(hdc, ii.HbmColor, 0, uintptr(bm.Height),
		uintptr(unsafe.Pointer(&pix[0])), uintptr(unsafe.Pointer(&bi)), 0)
	if int32(lines) != bm.Height {
		return nil, fmt.Errorf("read icon pixels: %d of %d lines", lines, bm.Height)
	}
	return dib.FromBGRA(int(bm.Width), int(bm.Height), pix, false)
}
