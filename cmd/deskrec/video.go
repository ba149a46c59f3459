package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"deskrec/internal/store"
)

func newSetVideoCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "set-video PATH",
		Short: "Attach an externally recorded video file to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(opts.paths().Database())
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			if sessionID == "" {
				sess, err := st.LatestSession(ctx)
				if err != nil {
					return fmt.Errorf("latest session: %w", err)
				}
				sessionID = sess.ID
			}
			if err := st.SetVideoPath(ctx, sessionID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Video for session %s set to %s\n", sessionID, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: the latest session)")
	return cmd
}
