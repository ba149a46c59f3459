package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"deskrec/internal/config"
)

func newInitConfigCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := opts.paths()
			if err := paths.Ensure(); err != nil {
				return err
			}
			path := paths.Config()
			out := cmd.OutOrStdout()
			if force {
				if err := config.Save(config.DefaultConfig(), path); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote default configuration to %s\n", path)
				return nil
			}

			_, created, err := config.LoadOrCreate(path)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(out, "Wrote default configuration to %s\n", path)
			} else {
				fmt.Fprintf(out, "Configuration already exists at %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
