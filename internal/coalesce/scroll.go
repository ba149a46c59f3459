package coalesce

import (
	"sync"
	"time"

	"deskrec/internal/event"
)

// ScrollSpan is an aggregated run of wheel ticks.
type ScrollSpan struct {
	Delta      int32
	Ticks      int
	StartMs    int64
	EndMs      int64
	X          int32
	Y          int32
	Horizontal bool
	// Window is the foreground window when the first tick arrived.
	Window event.WindowContext
}

// Scroll aggregates wheel ticks whose spacing stays under the gap.
type Scroll struct {
	mu     sync.Mutex
	gapMs  int64
	active bool
	cur    ScrollSpan
}

// NewScroll creates an idle aggregator.
func NewScroll(gap time.Duration) *Scroll {
	return &Scroll{gapMs: gap.Milliseconds()}
}

// SetGap changes the coalescing gap.
func (s *Scroll) SetGap(gap time.Duration) {
	s.mu.Lock()
	s.gapMs = gap.Milliseconds()
	s.mu.Unlock()
}

// Add records one tick at pointer position (x, y) over window w. If the
// previous tick is at least a gap old, or the axis or window changed, the
// previous aggregate is returned and a new one starts with this tick.
func (s *Scroll) Add(delta int32, horizontal bool, x, y int32, nowMs int64, w event.WindowContext) (ScrollSpan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var done ScrollSpan
	var emitted bool
	if s.active && (nowMs-s.cur.EndMs >= s.gapMs || horizontal != s.cur.Horizontal || w.Handle != s.cur.Window.Handle) {
		done, emitted = s.cur, true
		s.active = false
	}
	if !s.active {
		s.cur = ScrollSpan{StartMs: nowMs, X: x, Y: y, Horizontal: horizontal, Window: w}
		s.active = true
	}
	s.cur.Delta += delta
	s.cur.Ticks++
	s.cur.EndMs = nowMs
	return done, emitted
}

// FlushStale returns the aggregate once it has been quiet for the gap.
func (s *Scroll) FlushStale(nowMs int64) (ScrollSpan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || nowMs-s.cur.EndMs < s.gapMs {
		return ScrollSpan{}, false
	}
	s.active = false
	return s.cur, true
}

// Flush returns any open aggregate regardless of age.
func (s *Scroll) Flush() (ScrollSpan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return ScrollSpan{}, false
	}
	s.active = false
	return s.cur, true
}
