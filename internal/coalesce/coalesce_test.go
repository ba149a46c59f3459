package coalesce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"deskrec/internal/event"
)

var editor = event.WindowContext{Handle: 0x10, Process: `C:\Windows\notepad.exe`, Title: "notes"}

// =============================================================================
// TextBuffer
// =============================================================================

func TestTextBufferBackspaceThenIdle(t *testing.T) {
	b := NewTextBuffer(1500*time.Millisecond, 512)

	assert.Empty(t, b.Append("a", 0, editor))
	assert.Empty(t, b.Append("b", 100, editor))
	b.Backspace(200)
	assert.Empty(t, b.Append("c", 300, editor))

	_, ok := b.FlushIdle(1000)
	assert.False(t, ok, "not idle yet")

	span, ok := b.FlushIdle(1800)
	require.True(t, ok)
	assert.Equal(t, "ac", span.Text)
	assert.Equal(t, ReasonIdle, span.Reason)
	assert.Equal(t, int64(0), span.StartMs)
	assert.Equal(t, int64(300), span.EndMs)
	assert.Equal(t, 4, span.Keystrokes)
	assert.Equal(t, editor, span.Window)

	assert.Equal(t, 0, b.Len())
	_, ok = b.Flush(ReasonStop)
	assert.False(t, ok, "flush of empty buffer")
}

func TestTextBufferBackspaceToEmpty(t *testing.T) {
	b := NewTextBuffer(time.Second, 512)
	b.Append("x", 0, editor)
	b.Backspace(10)
	b.Backspace(20)

	_, ok := b.Flush(ReasonEnter)
	assert.False(t, ok)
}

func TestTextBufferMaxLength(t *testing.T) {
	b := NewTextBuffer(time.Second, 3)
	assert.Empty(t, b.Append("a", 0, editor))
	assert.Empty(t, b.Append("b", 1, editor))

	spans := b.Append("c", 2, editor)
	require.Len(t, spans, 1)
	assert.Equal(t, "abc", spans[0].Text)
	assert.Equal(t, ReasonMaxLength, spans[0].Reason)
	assert.Equal(t, 0, b.Len())
}

func TestTextBufferWindowChangeAttributesPrevious(t *testing.T) {
	other := event.WindowContext{Handle: 0x20, Process: `C:\chat.exe`}
	b := NewTextBuffer(time.Second, 512)
	b.Append("hi", 0, editor)

	spans := b.Append("yo", 50, other)
	require.Len(t, spans, 1)
	assert.Equal(t, "hi", spans[0].Text)
	assert.Equal(t, ReasonWindowChange, spans[0].Reason)
	assert.Equal(t, editor, spans[0].Window)

	span, ok := b.Flush(ReasonStop)
	require.True(t, ok)
	assert.Equal(t, "yo", span.Text)
	assert.Equal(t, other, span.Window)
}

func TestTextBufferMultiRune(t *testing.T) {
	b := NewTextBuffer(time.Second, 512)
	b.Append("é", 0, editor)
	b.Append("日本", 1, editor)
	b.Backspace(2)

	span, ok := b.Flush(ReasonTab)
	require.True(t, ok)
	assert.Equal(t, "é日", span.Text)
}

func TestTextBufferComposesLikeReference(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := NewTextBuffer(time.Hour, 1<<20)
		var model []rune

		ops := rapid.SliceOfN(rapid.IntRange(0, 40), 0, 200).Draw(t, "ops")
		for i, op := range ops {
			now := int64(i)
			if op == 0 {
				b.Backspace(now)
				if len(model) > 0 {
					model = model[:len(model)-1]
				}
				continue
			}
			r := rune('a' + op%26)
			if op > 30 {
				r = rune('α' + op%10)
			}
			assert.Empty(t, b.Append(string(r), now, editor))
			model = append(model, r)
		}

		span, ok := b.Flush(ReasonStop)
		if len(model) == 0 {
			assert.False(t, ok)
			return
		}
		require.True(t, ok)
		assert.Equal(t, string(model), span.Text)
	})
}

// =============================================================================
// Scroll
// =============================================================================

func TestScrollAggregatesFastTicks(t *testing.T) {
	s := NewScroll(200 * time.Millisecond)
	for i, now := range []int64{0, 50, 120, 300} {
		_, ok := s.Add(120, false, 5, 6, now, editor)
		assert.False(t, ok, "tick %d", i)
	}

	_, ok := s.FlushStale(450)
	assert.False(t, ok)

	span, ok := s.FlushStale(500)
	require.True(t, ok)
	assert.Equal(t, int32(480), span.Delta)
	assert.Equal(t, 4, span.Ticks)
	assert.Equal(t, int64(0), span.StartMs)
	assert.Equal(t, int64(300), span.EndMs)

	_, ok = s.Flush()
	assert.False(t, ok)
}

func TestScrollGapStartsNewAggregation(t *testing.T) {
	s := NewScroll(200 * time.Millisecond)
	s.Add(-120, false, 0, 0, 0, editor)
	s.Add(-120, false, 0, 0, 100, editor)

	span, ok := s.Add(120, false, 0, 0, 300, editor)
	require.True(t, ok)
	assert.Equal(t, int32(-240), span.Delta)
	assert.Equal(t, 2, span.Ticks)

	span, ok = s.Flush()
	require.True(t, ok)
	assert.Equal(t, int32(120), span.Delta)
	assert.Equal(t, 1, span.Ticks)
}

func TestScrollAxisChangeSplits(t *testing.T) {
	s := NewScroll(200 * time.Millisecond)
	s.Add(120, false, 0, 0, 0, editor)
	span, ok := s.Add(120, true, 0, 0, 10, editor)
	require.True(t, ok)
	assert.False(t, span.Horizontal)

	span, ok = s.Flush()
	require.True(t, ok)
	assert.True(t, span.Horizontal)
}

func TestScrollKeepsWindowOfFirstTick(t *testing.T) {
	other := event.WindowContext{Handle: 0x20, Process: `C:\Apps\code.exe`}
	s := NewScroll(200 * time.Millisecond)
	s.Add(120, false, 0, 0, 0, editor)
	s.Add(120, false, 0, 0, 50, editor)

	span, ok := s.Add(120, false, 0, 0, 60, other)
	require.True(t, ok, "window change closes the aggregate")
	assert.Equal(t, editor, span.Window)
	assert.Equal(t, 2, span.Ticks)

	span, ok = s.FlushStale(1000)
	require.True(t, ok)
	assert.Equal(t, other, span.Window)
}

func TestScrollSumsPerGroup(t *testing.T) {
	const gap = 200
	rapid.Check(t, func(t *rapid.T) {
		s := NewScroll(gap * time.Millisecond)
		gaps := rapid.SliceOfN(rapid.Int64Range(0, 2*gap), 1, 100).Draw(t, "gaps")
		deltas := rapid.SliceOfN(rapid.Int32Range(-360, 360), len(gaps), len(gaps)).Draw(t, "deltas")

		type group struct {
			delta int32
			ticks int
		}
		var want []group
		var got []ScrollSpan

		now := int64(0)
		for i, g := range gaps {
			if i > 0 {
				now += g
			}
			if i == 0 || g >= gap {
				want = append(want, group{})
			}
			want[len(want)-1].delta += deltas[i]
			want[len(want)-1].ticks++

			if span, ok := s.Add(deltas[i], false, 0, 0, now, editor); ok {
				got = append(got, span)
			}
		}
		if span, ok := s.Flush(); ok {
			got = append(got, span)
		}

		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i].delta, got[i].Delta)
			assert.Equal(t, want[i].ticks, got[i].Ticks)
		}
	})
}

// =============================================================================
// Debouncer
// =============================================================================

func TestDebouncerEmitsFinalRectOnce(t *testing.T) {
	d := NewDebouncer(400 * time.Millisecond)
	const hwnd = 0x10

	for i := int64(0); i < 5; i++ {
		d.Observe(hwnd, event.NewRect(0, 0, int32(100+i), 100), editor, i*100)
		_, ok := d.Due(i*100+50, hwnd)
		assert.False(t, ok)
	}

	_, ok := d.Due(799, hwnd)
	assert.False(t, ok)

	p, ok := d.Due(800, hwnd)
	require.True(t, ok)
	assert.Equal(t, int32(104), p.Rect.Right)
	assert.Equal(t, int32(104), p.Rect.Width)

	_, ok = d.Due(2000, hwnd)
	assert.False(t, ok, "emitted once")
}

func TestDebouncerDropsStaleWindow(t *testing.T) {
	d := NewDebouncer(400 * time.Millisecond)
	d.Observe(0x10, event.NewRect(0, 0, 10, 10), editor, 0)

	_, ok := d.Due(500, 0x20)
	assert.False(t, ok)
	assert.False(t, d.Pending())
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(400 * time.Millisecond)
	d.Observe(0x10, event.NewRect(0, 0, 10, 10), editor, 0)
	d.Cancel()
	_, ok := d.Due(1000, 0x10)
	assert.False(t, ok)
}

// =============================================================================
// Dedupe
// =============================================================================

func TestDedupeWindow(t *testing.T) {
	d := NewDedupe(2 * time.Second)
	h := HashContent("text", []byte("hello"))

	assert.True(t, d.Check(h, 0))
	assert.False(t, d.Check(h, 500))
	assert.False(t, d.Check(h, 1999), "suppressed hits do not extend the window")
	assert.True(t, d.Check(h, 2000))

	other := HashContent("text", []byte("world"))
	assert.True(t, d.Check(other, 2001))
	assert.True(t, d.Check(h, 2002), "only the immediately preceding emission counts")
}

func TestHashContentLengthPrefixed(t *testing.T) {
	assert.NotEqual(t,
		HashContent("files", []byte("ab"), []byte("c")),
		HashContent("files", []byte("a"), []byte("bc")))
	assert.NotEqual(t,
		HashContent("text", []byte("x")),
		HashContent("files", []byte("x")))
	assert.Equal(t,
		HashContent("text", []byte("x")),
		HashContent("text", []byte("x")))
}

func TestDedupeNeverDoubleEmits(t *testing.T) {
	const window = 2000
	rapid.Check(t, func(t *rapid.T) {
		d := NewDedupe(window * time.Millisecond)
		hashes := []Hash{
			HashContent("text", []byte("a")),
			HashContent("text", []byte("b")),
		}

		type emission struct {
			h  Hash
			at int64
		}
		var emitted []emission
		now := int64(0)
		steps := rapid.IntRange(1, 100).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			now += rapid.Int64Range(0, 1500).Draw(t, "dt")
			h := hashes[rapid.IntRange(0, 1).Draw(t, "which")]
			if d.Check(h, now) {
				emitted = append(emitted, emission{h, now})
			}
		}

		for i := 1; i < len(emitted); i++ {
			prev, cur := emitted[i-1], emitted[i]
			if prev.h == cur.h {
				assert.GreaterOrEqual(t, cur.at-prev.at, int64(window))
			}
		}
	})
}
