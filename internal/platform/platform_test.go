package platform

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskrec/internal/event"
	"deskrec/internal/keys"
)

func TestProcessBase(t *testing.T) {
	cases := map[string]string{
		`C:\Windows\System32\notepad.exe`: "notepad.exe",
		"/usr/bin/vim":                    "vim",
		"code.exe":                        "code.exe",
		"":                                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, ProcessBase(in), in)
	}
}

func TestMouseActionButton(t *testing.T) {
	name, ok := LeftDown.Button()
	assert.True(t, ok)
	assert.Equal(t, "left_down", name)

	name, ok = XUp.Button()
	assert.True(t, ok)
	assert.Equal(t, "x_up", name)

	_, ok = Wheel.Button()
	assert.False(t, ok)

	assert.True(t, RightDown.IsPress())
	assert.False(t, RightUp.IsPress())
}

func TestWindowContext(t *testing.T) {
	w := Window{Handle: 7, ProcessPath: `C:\a.exe`, Title: "t", Class: "c"}
	ctx := w.Context()
	assert.Nil(t, ctx.Rect)

	w.Rect, w.HasRect = event.NewRect(0, 0, 10, 20), true
	ctx = w.Context()
	require.NotNil(t, ctx.Rect)
	assert.Equal(t, int32(20), ctx.Rect.Height)
	assert.Equal(t, uintptr(7), ctx.Handle)
	assert.Equal(t, "a.exe", ctx.Process)
}

func TestUnsupportedFailsStart(t *testing.T) {
	p := Unsupported()
	assert.ErrorIs(t, p.Hooks.Start(Handlers{}), ErrNotAvailable)
	_, err := p.Clipboard.Read()
	assert.ErrorIs(t, err, ErrNotAvailable)
	_, err = p.Focus.Focused()
	assert.ErrorIs(t, err, ErrNotAvailable)
	assert.NoError(t, p.Close())
}

func TestSimulatedDeliversInput(t *testing.T) {
	sim := NewSimulated()
	var got []KeyEvent
	var windows []WindowEvent
	require.NoError(t, sim.Start(Handlers{
		Key:    func(ev KeyEvent) { got = append(got, ev) },
		Window: func(ev WindowEvent) { windows = append(windows, ev) },
	}))
	assert.Error(t, sim.Start(Handlers{}), "second start")

	sim.Type("aB")
	require.Len(t, got, 6)
	assert.Equal(t, keys.VKA, got[0].VK)
	assert.True(t, got[0].Down)
	assert.Equal(t, keys.VKLShift, got[2].VK)

	sim.Activate(Window{Handle: 1, Title: "one"})
	sim.Resize(1, event.NewRect(0, 0, 5, 5))
	sim.Resize(99, event.NewRect(0, 0, 5, 5))
	assert.Equal(t, []WindowEvent{
		{Kind: WindowForeground, Handle: 1},
		{Kind: WindowGeometry, Handle: 1},
	}, windows)

	require.NoError(t, sim.Stop())
	sim.Press(keys.VKA)
	assert.Len(t, got, 6, "no delivery after stop")
}

func TestSimulatedTranslate(t *testing.T) {
	sim := NewSimulated()
	var st keys.State

	text, dead := sim.Translate(KeyEvent{VK: keys.VKA}, &st)
	assert.Equal(t, "a", text)
	assert.False(t, dead)

	st.Press(keys.VKLShift)
	text, _ = sim.Translate(KeyEvent{VK: keys.VKA}, &st)
	assert.Equal(t, "A", text)

	sim.SetDeadKey(0xDE, '\u00b4')
	text, dead = sim.Translate(KeyEvent{VK: 0xDE}, &st)
	assert.True(t, dead)
	assert.Equal(t, "\u00b4", text)
}

func TestSimulatedClipboardSequence(t *testing.T) {
	sim := NewSimulated()
	seq := sim.Sequence()

	sim.SetClipboardText("hello")
	assert.Equal(t, seq+1, sim.Sequence())
	c, err := sim.Read()
	require.NoError(t, err)
	assert.True(t, c.HasText)
	assert.Equal(t, "hello", c.Text)

	boom := errors.New("clipboard busy")
	sim.FailClipboard(boom)
	_, err = sim.Read()
	assert.ErrorIs(t, err, boom)

	sim.SetClipboardFiles(`C:\a.txt`, `C:\b.txt`)
	c, err = sim.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{`C:\a.txt`, `C:\b.txt`}, c.Files)
	assert.False(t, c.HasText)
}

func TestFocusSnapshotAnswer(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	edit := FocusedElement{Present: true, ControlType: ControlEdit}

	var none *focusSnapshot
	_, err := none.answer(1, now)
	assert.ErrorIs(t, err, ErrWarmingUp, "no snapshot yet")

	fresh := &focusSnapshot{el: edit, at: now.Add(-50 * time.Millisecond), foreground: 1}
	el, err := fresh.answer(1, now)
	require.NoError(t, err)
	assert.Equal(t, edit, el)

	_, err = fresh.answer(2, now)
	assert.ErrorIs(t, err, ErrWarmingUp, "snapshot belongs to the previous window")

	_, err = fresh.answer(1, now.Add(time.Second))
	assert.ErrorIs(t, err, ErrNotAvailable, "refresher stalled")

	failed := &focusSnapshot{err: ErrNotAvailable, at: now.Add(-time.Hour), permanent: true}
	_, err = failed.answer(7, now)
	assert.ErrorIs(t, err, ErrNotAvailable)
	assert.False(t, errors.Is(err, ErrWarmingUp))
}
