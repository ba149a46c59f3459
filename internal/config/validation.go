package config

import (
	"errors"
	"fmt"
	"strings"

	"deskrec/internal/keys"
)

// ErrInvalidConfig is matched by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i := range e {
		errs[i] = &e[i]
	}
	return errs
}

// RangeError reports a value outside [min, max].
func RangeError(field string, min, max int) ValidationError {
	return ValidationError{Field: field, Message: fmt.Sprintf("must be between %d and %d", min, max)}
}

type checker struct {
	errs ValidationErrors
}

func (c *checker) between(field string, v, min, max int) {
	if v < min || v > max {
		c.errs = append(c.errs, RangeError(field, min, max))
	}
}

func (c *checker) oneOf(field, v string, allowed ...string) {
	for _, a := range allowed {
		if v == a {
			return
		}
	}
	c.errs = append(c.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf("invalid value %q (valid: %s)", v, strings.Join(allowed, ", ")),
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var v checker

	v.between("mouse_hz", c.MouseHz, 1, 1000)
	v.between("snapshot_hz", c.SnapshotHz, 0, 60)
	v.oneOf("click_mode", c.ClickMode, ClickPress, ClickRelease, ClickBoth)
	v.oneOf("raw_keys", c.RawKeys, RawKeysOff, RawKeysDown, RawKeysUp, RawKeysBoth)
	if c.MarkerHotkey != "" {
		if _, err := keys.ParseHotkey(c.MarkerHotkey); err != nil {
			v.errs = append(v.errs, ValidationError{Field: "marker_hotkey", Message: err.Error()})
		}
	}

	v.between("clipboard.poll_ms", c.Clipboard.PollMs, 10, 60_000)
	v.between("clipboard.debounce_ms", c.Clipboard.DebounceMs, 0, 60_000)
	v.between("clipboard.dedupe_ms", c.Clipboard.DedupeMs, 0, 3_600_000)
	v.between("clipboard.max_text_chars", c.Clipboard.MaxTextChars, 1, 10_000_000)

	v.between("window.poll_hz", c.Window.PollHz, 0, 60)
	v.between("window.rect_debounce_ms", c.Window.RectDebounceMs, 0, 60_000)

	v.between("text.flush_ms", c.Text.FlushMs, 50, 600_000)
	v.between("text.max_len", c.Text.MaxLen, 1, 1_000_000)
	v.between("scroll.gap_ms", c.Scroll.GapMs, 1, 60_000)

	v.between("writer.queue_size", c.Writer.QueueSize, 1, 10_000_000)
	v.between("writer.batch_size", c.Writer.BatchSize, 1, 100_000)
	v.between("writer.flush_ms", c.Writer.FlushMs, 1, 60_000)
	v.between("control.poll_ms", c.Control.PollMs, 10, 60_000)

	for _, name := range c.Privacy.AllowProcesses {
		if strings.TrimSpace(name) == "" {
			v.errs = append(v.errs, ValidationError{Field: "privacy.allow_processes", Message: "empty process name"})
			break
		}
	}
	for _, name := range c.Privacy.BlockProcesses {
		if strings.TrimSpace(name) == "" {
			v.errs = append(v.errs, ValidationError{Field: "privacy.block_processes", Message: "empty process name"})
			break
		}
	}

	v.oneOf("logging.level", c.Logging.Level, "debug", "info", "warn", "error")
	v.oneOf("logging.format", c.Logging.Format, "text", "json")
	v.oneOf("logging.output", c.Logging.Output, "stdout", "stderr", "file", "both")
	if c.Logging.MaxSizeMB < 1 {
		v.errs = append(v.errs, ValidationError{Field: "logging.max_size_mb", Message: "max size must be at least 1 MB"})
	}
	if c.Logging.MaxBackups < 0 {
		v.errs = append(v.errs, ValidationError{Field: "logging.max_backups", Message: "max backups cannot be negative"})
	}

	if len(v.errs) > 0 {
		return v.errs
	}
	return nil
}
