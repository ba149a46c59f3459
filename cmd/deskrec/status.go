package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"deskrec/internal/control"
	"deskrec/internal/store"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a recorder is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := opts.paths()
			report, err := control.Status(paths)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, report)
			if report.Lock != nil {
				fmt.Fprintf(out, "  Session: %s\n", report.Lock.SessionID)
				fmt.Fprintf(out, "  PID:     %d\n", report.Lock.PID)
				fmt.Fprintf(out, "  Started: %s\n", report.Lock.StartWallISO)
			}
			if verbose {
				return printDetails(cmd.Context(), out, paths)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show the latest session and pipeline metrics")
	return cmd
}

func printDetails(ctx context.Context, out io.Writer, paths control.Paths) error {
	if _, err := os.Stat(paths.Database()); err == nil {
		st, err := store.Open(paths.Database())
		if err != nil {
			return err
		}
		defer st.Close()

		sess, err := st.LatestSession(ctx)
		switch {
		case errors.Is(err, store.ErrSessionNotFound):
			fmt.Fprintln(out, "\nNo sessions recorded")
		case err != nil:
			return err
		default:
			n, err := st.CountEvents(ctx, sess.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nLatest session: %s\n", sess.ID)
			fmt.Fprintf(out, "  Started: %s\n", sess.StartWallISO)
			fmt.Fprintf(out, "  Events:  %d\n", n)
			if sess.VideoPath != "" {
				fmt.Fprintf(out, "  Video:   %s\n", sess.VideoPath)
			}
		}
	}

	data, err := os.ReadFile(paths.Metrics())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\nMetrics from the last shutdown:")
	_, err = out.Write(data)
	return err
}
