//go:build windows

package platform

import "log/slog"

// New returns the Win32 bindings. The accessibility probe starts polling
// immediately so it has an answer by the first keystroke.
func New(logger *slog.Logger, opts Options) (*Platform, error) {
	if logger == nil {
		logger = slog.Default()
	}
	focus := newFocusProbe(logger)
	focus.start()
	return &Platform{
		Hooks:        newHooks(logger, opts.WindowEvents),
		Introspector: winIntrospector{},
		Translator:   winTranslator{},
		Clipboard:    winClipboard{},
		Focus:        focus,
		Icons:        winIcons{},
		closers:      []func() error{focus.Close},
	}, nil
}
