// Package dib decodes packed device-independent bitmaps as they appear on
// the clipboard (CF_DIB, CF_DIBV5) and raw icon pixel buffers, and
// re-encodes them as self-contained BMP files.
//
// Every read is bounds-checked against the input; malformed data yields a
// *DecodeError and never panics.
package dib

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"io"
	"math/bits"

	"golang.org/x/image/bmp"
)

// Header sizes accepted by Decode.
const (
	sizeInfoHeader = 40
	sizeV4Header   = 108
	sizeV5Header   = 124
)

// Compression values.
const (
	biRGB            = 0
	biBitfields      = 3
	biAlphaBitfields = 6
)

// MaxPixels caps the decoded image size (256 MiB of NRGBA).
const MaxPixels = 64 << 20

// DecodeError reports malformed or unsupported bitmap data.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("dib: %s: %s", e.Field, e.Reason)
}

func errorf(field, format string, args ...any) error {
	return &DecodeError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Header is the parsed subset of a BITMAPINFOHEADER and its successors.
type Header struct {
	Size        uint32
	Width       int
	Height      int
	BitCount    uint16
	Compression uint32
	ColorsUsed  uint32
	TopDown     bool
	RedMask     uint32
	GreenMask   uint32
	BlueMask    uint32
	AlphaMask   uint32
}

// reader is a bounds-checked little-endian cursor over a byte slice.
type reader struct {
	buf []byte
}

func (r reader) u16(off int, field string) (uint16, error) {
	if off < 0 || off+2 > len(r.buf) {
		return 0, errorf(field, "offset %d beyond %d bytes", off, len(r.buf))
	}
	return binary.LittleEndian.Uint16(r.buf[off:]), nil
}

func (r reader) u32(off int, field string) (uint32, error) {
	if off < 0 || off+4 > len(r.buf) {
		return 0, errorf(field, "offset %d beyond %d bytes", off, len(r.buf))
	}
	return binary.LittleEndian.Uint32(r.buf[off:]), nil
}

// ParseHeader reads the bitmap header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	r := reader{buf: data}
	var h Header

	size, err := r.u32(0, "biSize")
	if err != nil {
		return h, err
	}
	switch size {
	case sizeInfoHeader, sizeV4Header, sizeV5Header:
	default:
		return h, errorf("biSize", "unsupported header size %d", size)
	}
	if int(size) > len(data) {
		return h, errorf("biSize", "header of %d bytes truncated to %d", size, len(data))
	}
	h.Size = size

	w, _ := r.u32(4, "biWidth")
	hgt, _ := r.u32(8, "biHeight")
	planes, _ := r.u16(12, "biPlanes")
	h.BitCount, _ = r.u16(14, "biBitCount")
	h.Compression, _ = r.u32(16, "biCompression")
	h.ColorsUsed, _ = r.u32(32, "biClrUsed")

	width, height := int(int32(w)), int(int32(hgt))
	if planes != 1 {
		return h, errorf("biPlanes", "expected 1, got %d", planes)
	}
	if width <= 0 {
		return h, errorf("biWidth", "non-positive width %d", width)
	}
	if height == 0 || height == -1<<31 {
		return h, errorf("biHeight", "invalid height %d", height)
	}
	if height < 0 {
		h.TopDown = true
		height = -height
	}
	if int64(width)*int64(height) > MaxPixels {
		return h, errorf("biWidth", "%dx%d exceeds pixel limit", width, height)
	}
	h.Width, h.Height = width, height

	switch h.Compression {
	case biRGB:
		switch h.BitCount {
		case 8, 24, 32:
		default:
			return h, errorf("biBitCount", "unsupported depth %d", h.BitCount)
		}
	case biBitfields, biAlphaBitfields:
		if h.BitCount != 32 {
			return h, errorf("biBitCount", "bitfields with depth %d", h.BitCount)
		}
		if err := h.readMasks(r); err != nil {
			return h, err
		}
	default:
		return h, errorf("biCompression", "unsupported compression %d", h.Compression)
	}
	if h.ColorsUsed > 256 {
		return h, errorf("biClrUsed", "%d palette entries", h.ColorsUsed)
	}
	return h, nil
}

// readMasks loads channel masks either from inside a V4/V5 header or
// from the DWORDs that follow a plain info header.
func (h *Header) readMasks(r reader) error {
	var err error
	base := 40
	if h.RedMask, err = r.u32(base, "RedMask"); err != nil {
		return err
	}
	if h.GreenMask, err = r.u32(base+4, "GreenMask"); err != nil {
		return err
	}
	if h.BlueMask, err = r.u32(base+8, "BlueMask"); err != nil {
		return err
	}
	if h.Size >= sizeV4Header || h.Compression == biAlphaBitfields {
		if h.AlphaMask, err = r.u32(base+12, "AlphaMask"); err != nil {
			return err
		}
	}
	if h.RedMask == 0 && h.GreenMask == 0 && h.BlueMask == 0 {
		return errorf("RedMask", "all colour masks are zero")
	}
	return nil
}

// pixelOffset is where the pixel array starts in a packed DIB.
func (h Header) pixelOffset() int {
	off := int(h.Size)
	if h.Size == sizeInfoHeader {
		switch h.Compression {
		case biBitfields:
			off += 12
		case biAlphaBitfields:
			off += 16
		}
	}
	return off + h.paletteLen()*4
}

func (h Header) paletteLen() int {
	if h.BitCount <= 8 {
		if h.ColorsUsed == 0 {
			return 1 << h.BitCount
		}
		return int(h.ColorsUsed)
	}
	return int(h.ColorsUsed)
}

func (h Header) stride() int {
	return ((h.Width*int(h.BitCount) + 31) / 32) * 4
}

// Decode parses a packed DIB into an NRGBA image.
func Decode(data []byte) (*image.NRGBA, Header, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, h, err
	}

	off := h.pixelOffset()
	stride := h.stride()
	need := int64(off) + int64(stride)*int64(h.Height)
	if need > int64(len(data)) {
		return nil, h, errorf("pixels", "need %d bytes, have %d", need, len(data))
	}

	var palette []color.NRGBA
	if h.BitCount == 8 {
		palette = make([]color.NRGBA, h.paletteLen())
		pstart := off - h.paletteLen()*4
		for i := range palette {
			p := data[pstart+i*4:]
			palette[i] = color.NRGBA{R: p[2], G: p[1], B: p[0], A: 0xFF}
		}
	}

	img := image.NewNRGBA(image.Rect(0, 0, h.Width, h.Height))
	sawAlpha := false
	for y := 0; y < h.Height; y++ {
		srcY := y
		if !h.TopDown {
			srcY = h.Height - 1 - y
		}
		row := data[off+srcY*stride : off+srcY*stride+stride]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < h.Width; x++ {
			var c color.NRGBA
			switch {
			case h.BitCount == 8:
				idx := int(row[x])
				if idx >= len(palette) {
					return nil, h, errorf("pixels", "palette index %d out of %d", idx, len(palette))
				}
				c = palette[idx]
			case h.BitCount == 24:
				p := row[x*3:]
				c = color.NRGBA{R: p[2], G: p[1], B: p[0], A: 0xFF}
			case h.Compression == biRGB:
				p := row[x*4:]
				c = color.NRGBA{R: p[2], G: p[1], B: p[0], A: p[3]}
			default:
				v := binary.LittleEndian.Uint32(row[x*4:])
				c = color.NRGBA{
					R: channel(v, h.RedMask, 0),
					G: channel(v, h.GreenMask, 0),
					B: channel(v, h.BlueMask, 0),
					A: channel(v, h.AlphaMask, 0xFF),
				}
			}
			if h.BitCount == 32 && c.A != 0 {
				sawAlpha = true
			}
			i := x * 4
			dst[i], dst[i+1], dst[i+2], dst[i+3] = c.R, c.G, c.B, c.A
		}
	}

	// 32-bit clipboard bitmaps commonly leave the reserved byte zero.
	if h.BitCount == 32 && !sawAlpha {
		opaque(img)
	}
	return img, h, nil
}

// channel extracts a masked field and scales it to 8 bits.
func channel(v, mask uint32, missing uint8) uint8 {
	if mask == 0 {
		return missing
	}
	shift := bits.TrailingZeros32(mask)
	width := bits.OnesCount32(mask)
	val := (v & mask) >> shift
	if width >= 8 {
		return uint8(val >> (width - 8))
	}
	full := uint32(1)<<width - 1
	return uint8(val * 255 / full)
}

func opaque(img *image.NRGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xFF
	}
}

// FromBGRA builds an image from a 32-bit BGRA pixel buffer such as the
// colour bitmap of an icon. Rows are bottom-up when bottomUp is set.
func FromBGRA(width, height int, pix []byte, bottomUp bool) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, errorf("size", "invalid %dx%d", width, height)
	}
	if int64(width)*int64(height) > MaxPixels {
		return nil, errorf("size", "%dx%d exceeds pixel limit", width, height)
	}
	if len(pix) < width*height*4 {
		return nil, errorf("pixels", "need %d bytes, have %d", width*height*4, len(pix))
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	sawAlpha := false
	for y := 0; y < height; y++ {
		srcY := y
		if bottomUp {
			srcY = height - 1 - y
		}
		src := pix[srcY*width*4 : (srcY+1)*width*4]
		dst := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			i := x * 4
			dst[i], dst[i+1], dst[i+2], dst[i+3] = src[i+2], src[i+1], src[i], src[i+3]
			if src[i+3] != 0 {
				sawAlpha = true
			}
		}
	}
	if !sawAlpha {
		opaque(img)
	}
	return img, nil
}

// EncodeBMP writes img as a standalone BMP file.
func EncodeBMP(w io.Writer, img image.Image) error {
	if err := bmp.Encode(w, img); err != nil {
		return fmt.Errorf("encode bmp: %w", err)
	}
	return nil
}
