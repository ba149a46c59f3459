package keys

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// combining maps the spacing accents layouts report for dead keys to the
// combining marks NFC composes with.
var combining = map[rune]rune{
	'`':      '\u0300',
	'\u00b4': '\u0301',
	'\'':     '\u0301',
	'^':      '\u0302',
	'~':      '\u0303',
	'\u00af': '\u0304',
	'\u02d8': '\u0306',
	'\u02d9': '\u0307',
	'\u00a8': '\u0308',
	'"':      '\u0308',
	'\u02da': '\u030a',
	'\u00b0': '\u030a',
	'\u02dd': '\u030b',
	'\u02c7': '\u030c',
	'\u00b8': '\u0327',
	'\u02db': '\u0328',
}

// Composer holds dead-key state between keystrokes. It is not safe for
// concurrent use; the keyboard producer owns one under its own lock.
type Composer struct {
	pending rune
}

// Dead records a dead-key accent awaiting its base character. A second
// dead key replaces the first.
func (c *Composer) Dead(accent rune) {
	c.pending = accent
}

// Pending reports whether an accent is waiting.
func (c *Composer) Pending() bool {
	return c.pending != 0
}

// Reset drops any pending accent.
func (c *Composer) Reset() {
	c.pending = 0
}

// Compose applies a pending accent to s. When the pair has no precomposed
// form the accent is emitted followed by s unchanged, and a space after a
// dead key yields the bare accent.
func (c *Composer) Compose(s string) string {
	if c.pending == 0 || s == "" {
		return s
	}
	accent := c.pending
	c.pending = 0

	if s == " " {
		return string(accent)
	}
	mark, ok := combining[accent]
	if !ok {
		return string(accent) + s
	}
	base, size := utf8.DecodeRuneInString(s)
	composed := norm.NFC.String(string(base) + string(mark))
	if utf8.RuneCountInString(composed) != 1 {
		return string(accent) + s
	}
	return composed + s[size:]
}
