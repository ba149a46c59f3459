package platform

import "time"

// focusStale bounds how old a snapshot may be before the refresher is
// assumed stuck.
const focusStale = 300 * time.Millisecond

// focusSnapshot is one answer from the accessibility refresher, tagged
// with the foreground window it was taken for.
type focusSnapshot struct {
	el         FocusedElement
	err        error
	at         time.Time
	foreground uintptr
	permanent  bool
}

// answer resolves s against the current foreground window.
func (s *focusSnapshot) answer(foreground uintptr, now time.Time) (FocusedElement, error) {
	switch {
	case s == nil:
		return FocusedElement{}, ErrWarmingUp
	case s.permanent:
		return FocusedElement{}, s.err
	case s.foreground != foreground:
		return FocusedElement{}, ErrWarmingUp
	case now.Sub(s.at) > focusStale:
		return FocusedElement{}, ErrNotAvailable
	}
	return s.el, s.err
}
