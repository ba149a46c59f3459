package privacy

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"deskrec/internal/platform"
)

type stubProbe struct {
	el    platform.FocusedElement
	err   error
	calls int
}

func (s *stubProbe) Focused() (platform.FocusedElement, error) {
	s.calls++
	return s.el, s.err
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "notepad", Normalize(`C:\Windows\System32\NOTEPAD.EXE`))
	assert.Equal(t, "keepass", Normalize(" KeePass.exe "))
	assert.Equal(t, "code", Normalize("code"))
	assert.Equal(t, "", Normalize(""))
}

func TestBlocklistAlwaysDenies(t *testing.T) {
	g := New(Policy{Allow: []string{"keepass"}, Block: []string{"KeePass.exe"}}, nil, nil)
	assert.False(t, g.ShouldCapture(`C:\Apps\keepass.exe`, false))
	assert.False(t, g.AllowProcess("keepass.exe"))
}

func TestAllowlistIsExclusive(t *testing.T) {
	g := New(Policy{Allow: []string{"notepad.exe", "code"}}, nil, nil)
	assert.True(t, g.ShouldCapture(`C:\Windows\notepad.exe`, false))
	assert.True(t, g.ShouldCapture("Code.exe", false))
	assert.False(t, g.ShouldCapture("chrome.exe", false))
	assert.False(t, g.ShouldCapture("", false), "unknown process is not on the allowlist")
}

func TestEmptyListsAllowEverything(t *testing.T) {
	g := New(Policy{}, nil, nil)
	assert.True(t, g.ShouldCapture("anything.exe", true))
	assert.True(t, g.ShouldCapture("", false))
}

func TestSafeTextOnly(t *testing.T) {
	tests := []struct {
		name string
		el   platform.FocusedElement
		err  error
		want bool
	}{
		{"edit", platform.FocusedElement{Present: true, ControlType: platform.ControlEdit}, nil, true},
		{"document", platform.FocusedElement{Present: true, ControlType: platform.ControlDocument}, nil, true},
		{"password", platform.FocusedElement{Present: true, IsPassword: true, ControlType: platform.ControlEdit}, nil, false},
		{"button", platform.FocusedElement{Present: true, ControlType: platform.ControlOther}, nil, false},
		{"nothing focused", platform.FocusedElement{}, nil, false},
		{"probe error", platform.FocusedElement{Present: true, ControlType: platform.ControlEdit}, errors.New("uia down"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := &stubProbe{el: tt.el, err: tt.err}
			g := New(Policy{SafeTextOnly: true}, probe, nil)
			assert.Equal(t, tt.want, g.ShouldCapture("notepad.exe", true))
		})
	}
}

func TestWarmUpDeniesWithoutWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	probe := &stubProbe{err: platform.ErrWarmingUp}
	g := New(Policy{SafeTextOnly: true}, probe, logger)

	for i := 0; i < 3; i++ {
		assert.False(t, g.ShouldCapture("notepad.exe", true))
	}
	assert.Empty(t, buf.String(), "warm-up is not reported")

	probe.el, probe.err = platform.FocusedElement{Present: true, ControlType: platform.ControlEdit}, nil
	assert.True(t, g.ShouldCapture("notepad.exe", true))

	probe.err = errors.New("uia down")
	assert.False(t, g.ShouldCapture("notepad.exe", true))
	assert.Contains(t, buf.String(), "uia down")
}

func TestSafeTextOnlyIgnoresNonText(t *testing.T) {
	probe := &stubProbe{err: platform.ErrNotAvailable}
	g := New(Policy{SafeTextOnly: true}, probe, nil)
	assert.True(t, g.ShouldCapture("notepad.exe", false))
	assert.Zero(t, probe.calls, "clipboard path never queries focus")
}

func TestSafeTextOnlyWithoutProbe(t *testing.T) {
	g := New(Policy{SafeTextOnly: true}, nil, nil)
	assert.False(t, g.ShouldCapture("notepad.exe", true))
}

func TestUpdateSwapsPolicy(t *testing.T) {
	g := New(Policy{}, nil, nil)
	assert.True(t, g.AllowProcess("chrome.exe"))
	assert.False(t, g.SafeTextOnly())

	g.Update(Policy{Block: []string{"chrome"}, SafeTextOnly: true})
	assert.False(t, g.AllowProcess("chrome.exe"))
	assert.True(t, g.SafeTextOnly())
}

func TestConcurrentUpdate(t *testing.T) {
	g := New(Policy{}, nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				g.ShouldCapture("notepad.exe", false)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				g.Update(Policy{Block: []string{"other"}})
			}
		}()
	}
	wg.Wait()
	assert.True(t, g.AllowProcess("notepad"))
}
