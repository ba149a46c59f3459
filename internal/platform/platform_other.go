//go:build !windows

package platform

import "log/slog"

// New returns the bindings for this host. Only Windows has a capture
// backend; everywhere else the recorder fails to start.
func New(logger *slog.Logger, _ Options) (*Platform, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.With("component", "platform").Debug("no capture backend for this OS")
	return Unsupported(), nil
}
