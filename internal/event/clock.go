package event

import (
	"sync"
	"time"
)

// Clock supplies the two timestamps every record carries. MonoMs is
// relative to session start and never goes backwards.
type Clock interface {
	WallMs() int64
	MonoMs() int64
}

type monoClock struct {
	start time.Time
}

// NewClock returns a Clock anchored at the current instant. Go keeps a
// monotonic reading in time.Now, so MonoMs is immune to wall-clock steps.
func NewClock() Clock {
	return &monoClock{start: time.Now()}
}

func (c *monoClock) WallMs() int64 { return time.Now().UnixMilli() }

func (c *monoClock) MonoMs() int64 { return time.Since(c.start).Milliseconds() }

// ManualClock is a Clock driven by hand, for tests.
type ManualClock struct {
	mu   sync.Mutex
	wall int64
	mono int64
}

// NewManualClock returns a ManualClock at the given wall time and mono zero.
func NewManualClock(wallMs int64) *ManualClock {
	return &ManualClock{wall: wallMs}
}

func (c *ManualClock) WallMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall
}

func (c *ManualClock) MonoMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mono
}

// Advance moves both clocks forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wall += d.Milliseconds()
	c.mono += d.Milliseconds()
}
