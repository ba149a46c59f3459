// Package privacy decides whether content may be captured for the
// current target process and focused element.
package privacy

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"deskrec/internal/platform"
)

// Policy is the user-configurable part of the gate.
type Policy struct {
	// SafeTextOnly requires a focused, non-password edit or document
	// control before keystroke text is captured.
	SafeTextOnly bool
	Allow        []string
	Block        []string
}

type compiled struct {
	safeTextOnly bool
	allow        map[string]struct{}
	block        map[string]struct{}
}

func compile(p Policy) *compiled {
	c := &compiled{
		safeTextOnly: p.SafeTextOnly,
		allow:        make(map[string]struct{}, len(p.Allow)),
		block:        make(map[string]struct{}, len(p.Block)),
	}
	for _, name := range p.Allow {
		if n := Normalize(name); n != "" {
			c.allow[n] = struct{}{}
		}
	}
	for _, name := range p.Block {
		if n := Normalize(name); n != "" {
			c.block[n] = struct{}{}
		}
	}
	return c
}

// Normalize reduces a process path or name to its lower-case base name
// without the .exe suffix, the form list entries are compared in.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(platform.ProcessBase(strings.TrimSpace(name))))
	return strings.TrimSuffix(n, ".exe")
}

// Gate is safe for concurrent use. The policy is swapped atomically, so
// the keystroke path never takes a lock.
type Gate struct {
	policy atomic.Pointer[compiled]
	probe  platform.FocusProbe
	logger *slog.Logger

	warnOnce sync.Once
}

// New creates a gate. probe may be nil, in which case safe-text-only
// mode denies all text.
func New(p Policy, probe platform.FocusProbe, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{probe: probe, logger: logger.With("component", "privacy")}
	g.policy.Store(compile(p))
	return g
}

// Update replaces the policy.
func (g *Gate) Update(p Policy) {
	g.policy.Store(compile(p))
}

// SafeTextOnly reports whether the focus probe is consulted for text.
func (g *Gate) SafeTextOnly() bool {
	return g.policy.Load().safeTextOnly
}

// AllowProcess applies the block and allow lists only.
func (g *Gate) AllowProcess(process string) bool {
	return g.policy.Load().allowProcess(Normalize(process))
}

func (c *compiled) allowProcess(name string) bool {
	if _, blocked := c.block[name]; blocked {
		return false
	}
	if len(c.allow) > 0 {
		_, ok := c.allow[name]
		return ok
	}
	return true
}

// ShouldCapture reports whether content typed into process may be
// recorded. textTarget marks keystroke text, which is additionally
// subject to the focused-element check in safe-text-only mode.
func (g *Gate) ShouldCapture(process string, textTarget bool) bool {
	c := g.policy.Load()
	if !c.allowProcess(Normalize(process)) {
		return false
	}
	if !textTarget || !c.safeTextOnly {
		return true
	}
	return g.focusIsSafe()
}

func (g *Gate) focusIsSafe() bool {
	if g.probe == nil {
		g.warnUnavailable(platform.ErrNotAvailable)
		return false
	}
	el, err := g.probe.Focused()
	if errors.Is(err, platform.ErrWarmingUp) {
		return false
	}
	if err != nil {
		g.warnUnavailable(err)
		return false
	}
	if !el.Present || el.IsPassword {
		return false
	}
	return el.ControlType == platform.ControlEdit || el.ControlType == platform.ControlDocument
}

func (g *Gate) warnUnavailable(err error) {
	g.warnOnce.Do(func() {
		g.logger.Warn("accessibility query failed, safe-text capture is denying all text", "error", err)
	})
}
