// Package config handles configuration loading, validation and defaults
// for the recorder.
package config

import (
	"time"
)

// FileName is the configuration file inside the data directory.
const FileName = "recorder_config.json"

// Click modes.
const (
	ClickPress   = "press"
	ClickRelease = "release"
	ClickBoth    = "both"
)

// Raw key modes.
const (
	RawKeysOff  = "off"
	RawKeysDown = "down"
	RawKeysUp   = "up"
	RawKeysBoth = "both"
)

// Config holds the complete recorder configuration.
type Config struct {
	// MouseHz caps mouse_move events per second.
	MouseHz int `json:"mouse_hz" toml:"mouse_hz" yaml:"mouse_hz"`

	// SnapshotHz is the periodic snapshot rate.
	SnapshotHz int `json:"snapshot_hz" toml:"snapshot_hz" yaml:"snapshot_hz"`

	EmitMouseMove   bool `json:"emit_mouse_move" toml:"emit_mouse_move" yaml:"emit_mouse_move"`
	EmitMouseClick  bool `json:"emit_mouse_click" toml:"emit_mouse_click" yaml:"emit_mouse_click"`
	EmitMouseScroll bool `json:"emit_mouse_scroll" toml:"emit_mouse_scroll" yaml:"emit_mouse_scroll"`
	EmitSnapshots   bool `json:"emit_snapshots" toml:"emit_snapshots" yaml:"emit_snapshots"`

	// ClickMode selects which button transitions are recorded:
	// "press", "release" or "both".
	ClickMode string `json:"click_mode" toml:"click_mode" yaml:"click_mode"`

	// RawKeys selects raw key_down/key_up emission: "off", "down", "up"
	// or "both".
	RawKeys string `json:"raw_keys" toml:"raw_keys" yaml:"raw_keys"`

	// SuppressShortcutRawKeys drops raw events for keys that formed a
	// shortcut; the key_shortcut event still carries them.
	SuppressShortcutRawKeys bool `json:"suppress_shortcut_raw_keys" toml:"suppress_shortcut_raw_keys" yaml:"suppress_shortcut_raw_keys"`

	// MarkerHotkey emits a marker event, e.g. "Ctrl+0".
	MarkerHotkey string `json:"marker_hotkey" toml:"marker_hotkey" yaml:"marker_hotkey"`

	Clipboard ClipboardConfig `json:"clipboard" toml:"clipboard" yaml:"clipboard"`
	Window    WindowConfig    `json:"window" toml:"window" yaml:"window"`
	Privacy   PrivacyConfig   `json:"privacy" toml:"privacy" yaml:"privacy"`
	Text      TextConfig      `json:"text" toml:"text" yaml:"text"`
	Scroll    ScrollConfig    `json:"scroll" toml:"scroll" yaml:"scroll"`
	Writer    WriterConfig    `json:"writer" toml:"writer" yaml:"writer"`
	Control   ControlConfig   `json:"control" toml:"control" yaml:"control"`
	Video     VideoConfig     `json:"video" toml:"video" yaml:"video"`
	Logging   LoggingConfig   `json:"logging" toml:"logging" yaml:"logging"`
}

// ClipboardConfig controls the clipboard producer.
type ClipboardConfig struct {
	Enabled bool `json:"enabled" toml:"enabled" yaml:"enabled"`

	// PollMs is how often the clipboard sequence number is checked.
	PollMs int `json:"poll_ms" toml:"poll_ms" yaml:"poll_ms"`

	// DebounceMs is how long the clipboard must stay unchanged before it
	// is read.
	DebounceMs int `json:"debounce_ms" toml:"debounce_ms" yaml:"debounce_ms"`

	// DedupeMs suppresses identical content within this window.
	DedupeMs int `json:"dedupe_ms" toml:"dedupe_ms" yaml:"dedupe_ms"`

	MaxTextChars int  `json:"max_text_chars" toml:"max_text_chars" yaml:"max_text_chars"`
	SaveImages   bool `json:"save_images" toml:"save_images" yaml:"save_images"`
}

// WindowConfig controls the window producer.
type WindowConfig struct {
	// EventHooks installs foreground and geometry hooks.
	EventHooks bool `json:"event_hooks" toml:"event_hooks" yaml:"event_hooks"`

	// PollHz enables the polling fallback even when hooks are live.
	// Zero polls only when hooks are unavailable.
	PollHz int `json:"poll_hz" toml:"poll_hz" yaml:"poll_hz"`

	RectDebounceMs int  `json:"rect_debounce_ms" toml:"rect_debounce_ms" yaml:"rect_debounce_ms"`
	Icons          bool `json:"icons" toml:"icons" yaml:"icons"`
}

// PrivacyConfig feeds the privacy gate.
type PrivacyConfig struct {
	SafeTextOnly   bool     `json:"safe_text_only" toml:"safe_text_only" yaml:"safe_text_only"`
	AllowProcesses []string `json:"allow_processes" toml:"allow_processes" yaml:"allow_processes"`
	BlockProcesses []string `json:"block_processes" toml:"block_processes" yaml:"block_processes"`
}

// TextConfig controls keystroke text composition.
type TextConfig struct {
	Enabled bool `json:"enabled" toml:"enabled" yaml:"enabled"`
	FlushMs int  `json:"flush_ms" toml:"flush_ms" yaml:"flush_ms"`
	MaxLen  int  `json:"max_len" toml:"max_len" yaml:"max_len"`
}

// ScrollConfig controls wheel aggregation.
type ScrollConfig struct {
	GapMs int `json:"gap_ms" toml:"gap_ms" yaml:"gap_ms"`
}

// WriterConfig sizes the queue and batches. Changes need a restart.
type WriterConfig struct {
	QueueSize int `json:"queue_size" toml:"queue_size" yaml:"queue_size"`
	BatchSize int `json:"batch_size" toml:"batch_size" yaml:"batch_size"`
	FlushMs   int `json:"flush_ms" toml:"flush_ms" yaml:"flush_ms"`
}

// ControlConfig controls the flag-file watcher. Changes need a restart.
type ControlConfig struct {
	PollMs int `json:"poll_ms" toml:"poll_ms" yaml:"poll_ms"`
}

// VideoConfig locates the externally recorded video for a session.
type VideoConfig struct {
	// Path is used verbatim when set.
	Path string `json:"path" toml:"path" yaml:"path"`
	// Dir is searched for the newest video modified after session start.
	Dir string `json:"dir" toml:"dir" yaml:"dir"`
}

// LoggingConfig holds diagnostic logging settings.
type LoggingConfig struct {
	Level      string `json:"level" toml:"level" yaml:"level"`
	Format     string `json:"format" toml:"format" yaml:"format"`
	Output     string `json:"output" toml:"output" yaml:"output"`
	MaxSizeMB  int    `json:"max_size_mb" toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" toml:"max_backups" yaml:"max_backups"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		MouseHz:                 30,
		SnapshotHz:              1,
		EmitMouseMove:           true,
		EmitMouseClick:          true,
		EmitMouseScroll:         true,
		EmitSnapshots:           true,
		ClickMode:               ClickBoth,
		RawKeys:                 RawKeysBoth,
		SuppressShortcutRawKeys: true,
		MarkerHotkey:            "Ctrl+0",
		Clipboard: ClipboardConfig{
			Enabled:      true,
			PollMs:       250,
			DebounceMs:   150,
			DedupeMs:     2000,
			MaxTextChars: 20000,
			SaveImages:   true,
		},
		Window: WindowConfig{
			EventHooks:     true,
			PollHz:         0,
			RectDebounceMs: 400,
			Icons:          true,
		},
		Privacy: PrivacyConfig{
			AllowProcesses: []string{},
			BlockProcesses: []string{},
		},
		Text: TextConfig{
			Enabled: true,
			FlushMs: 1500,
			MaxLen:  512,
		},
		Scroll: ScrollConfig{GapMs: 200},
		Writer: WriterConfig{
			QueueSize: 20000,
			BatchSize: 200,
			FlushMs:   250,
		},
		Control: ControlConfig{PollMs: 250},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			MaxSizeMB:  50,
			MaxBackups: 5,
		},
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Privacy.AllowProcesses = append([]string{}, c.Privacy.AllowProcesses...)
	clone.Privacy.BlockProcesses = append([]string{}, c.Privacy.BlockProcesses...)
	return &clone
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func perSecond(hz int) time.Duration {
	if hz <= 0 {
		return 0
	}
	return time.Second / time.Duration(hz)
}

// MouseInterval is the minimum spacing between mouse_move events.
func (c *Config) MouseInterval() time.Duration { return perSecond(c.MouseHz) }

// SnapshotInterval is the snapshot period, zero when disabled.
func (c *Config) SnapshotInterval() time.Duration {
	if !c.EmitSnapshots {
		return 0
	}
	return perSecond(c.SnapshotHz)
}

// WindowPollInterval is the window polling period, zero when disabled.
func (c *Config) WindowPollInterval() time.Duration { return perSecond(c.Window.PollHz) }

func (c *ClipboardConfig) Poll() time.Duration      { return ms(c.PollMs) }
func (c *ClipboardConfig) Debounce() time.Duration  { return ms(c.DebounceMs) }
func (c *ClipboardConfig) Dedupe() time.Duration    { return ms(c.DedupeMs) }
func (c *WindowConfig) RectDebounce() time.Duration { return ms(c.RectDebounceMs) }
func (c *TextConfig) Flush() time.Duration          { return ms(c.FlushMs) }
func (c *ScrollConfig) Gap() time.Duration          { return ms(c.GapMs) }
func (c *WriterConfig) Flush() time.Duration        { return ms(c.FlushMs) }
func (c *ControlConfig) Poll() time.Duration        { return ms(c.PollMs) }

// RestartRequired lists settings that differ between c and next but only
// take effect after a restart.
func (c *Config) RestartRequired(next *Config) []string {
	var fields []string
	if c.Writer.QueueSize != next.Writer.QueueSize {
		fields = append(fields, "writer.queue_size")
	}
	if c.Writer.BatchSize != next.Writer.BatchSize {
		fields = append(fields, "writer.batch_size")
	}
	if c.Writer.FlushMs != next.Writer.FlushMs {
		fields = append(fields, "writer.flush_ms")
	}
	if c.Control.PollMs != next.Control.PollMs {
		fields = append(fields, "control.poll_ms")
	}
	if c.Window.EventHooks != next.Window.EventHooks {
		fields = append(fields, "window.event_hooks")
	}
	if c.Logging != next.Logging {
		fields = append(fields, "logging")
	}
	return fields
}
