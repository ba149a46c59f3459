package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"deskrec/internal/control"
)

// signalCmd builds a command that writes or removes a flag file.
func signalCmd(opts *rootOptions, use, short, done string, send func(control.Paths) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := send(opts.paths())
			if errors.Is(err, control.ErrNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "Recorder is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), done)
			return nil
		},
	}
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	return signalCmd(opts, "stop", "Ask the running recorder to stop", "Stop requested", control.RequestStop)
}

func newPauseCmd(opts *rootOptions) *cobra.Command {
	return signalCmd(opts, "pause", "Suspend recording until resumed", "Pause requested", control.RequestPause)
}

func newResumeCmd(opts *rootOptions) *cobra.Command {
	return signalCmd(opts, "resume", "Resume a paused recorder", "Resume requested", control.RequestResume)
}

func newReloadCmd(opts *rootOptions) *cobra.Command {
	return signalCmd(opts, "reload", "Re-read the configuration file", "Reload requested", control.RequestReload)
}
