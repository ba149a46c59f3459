package iconcache

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskrec/internal/platform"
)

type countingIcons struct {
	img   image.Image
	calls map[string]int
}

func (c *countingIcons) Icon(path string) (image.Image, error) {
	c.calls[path]++
	if c.img == nil {
		return nil, platform.ErrNotAvailable
	}
	return c.img, nil
}

func testIcon() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	return img
}

func TestPathExtractsOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "icons")
	icons := &countingIcons{img: testIcon(), calls: map[string]int{}}
	c := New(dir, icons, nil)

	p1, ok := c.Path(`C:\Windows\notepad.exe`)
	require.True(t, ok)
	p2, ok := c.Path(`C:\WINDOWS\NOTEPAD.EXE`)
	require.True(t, ok)

	assert.Equal(t, p1, p2)
	assert.Equal(t, 1, icons.calls[`C:\Windows\notepad.exe`])
	assert.Equal(t, filepath.Join(dir, FileName(`c:\windows\notepad.exe`)), p1)

	f, err := os.Open(p1)
	require.NoError(t, err)
	defer f.Close()
	_, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestFailureIsCached(t *testing.T) {
	icons := &countingIcons{calls: map[string]int{}}
	c := New(t.TempDir(), icons, nil)

	_, ok := c.Path(`C:\x.exe`)
	assert.False(t, ok)
	_, ok = c.Path(`C:\x.exe`)
	assert.False(t, ok)
	assert.Equal(t, 1, icons.calls[`C:\x.exe`])
}

func TestExistingFileReused(t *testing.T) {
	dir := t.TempDir()
	first := New(dir, &countingIcons{img: testIcon(), calls: map[string]int{}}, nil)
	p, ok := first.Path(`C:\app.exe`)
	require.True(t, ok)

	icons := &countingIcons{calls: map[string]int{}}
	second := New(dir, icons, nil)
	p2, ok := second.Path(`C:\app.exe`)
	require.True(t, ok)
	assert.Equal(t, p, p2)
	assert.Zero(t, icons.calls[`C:\app.exe`])
}

func TestEmptyPath(t *testing.T) {
	c := New(t.TempDir(), &countingIcons{calls: map[string]int{}}, nil)
	_, ok := c.Path("")
	assert.False(t, ok)
}
