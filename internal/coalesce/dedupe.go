package coalesce

import (
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Hash identifies clipboard content.
type Hash [blake2b.Size256]byte

// HashContent hashes a content kind and its parts. Parts are length
// prefixed so that ("ab", "c") and ("a", "bc") differ.
func HashContent(kind string, parts ...[]byte) Hash {
	size := 8 + len(kind)
	for _, p := range parts {
		size += 8 + len(p)
	}
	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(kind)))
	buf = append(buf, kind...)
	for _, p := range parts {
		buf = binary.BigEndian.AppendUint64(buf, uint64(len(p)))
		buf = append(buf, p...)
	}
	return blake2b.Sum256(buf)
}

// Dedupe suppresses a clipboard emission whose hash matches the previous
// emission within the window. Suppressed hits do not extend the window.
type Dedupe struct {
	mu       sync.Mutex
	windowMs int64
	last     Hash
	lastMs   int64
	have     bool
}

// NewDedupe creates a deduplicator with the given window.
func NewDedupe(window time.Duration) *Dedupe {
	return &Dedupe{windowMs: window.Milliseconds()}
}

// SetWindow changes the dedupe window.
func (d *Dedupe) SetWindow(window time.Duration) {
	d.mu.Lock()
	d.windowMs = window.Milliseconds()
	d.mu.Unlock()
}

// Check reports whether content with hash h should be emitted now, and
// if so records it as the latest emission.
func (d *Dedupe) Check(h Hash, nowMs int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.have && h == d.last && nowMs-d.lastMs < d.windowMs {
		return false
	}
	d.last = h
	d.lastMs = nowMs
	d.have = true
	return true
}
