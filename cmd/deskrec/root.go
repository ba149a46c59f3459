package main

import (
	"github.com/spf13/cobra"

	"deskrec/internal/config"
	"deskrec/internal/control"
)

type rootOptions struct {
	dataDir string
}

func (o *rootOptions) paths() control.Paths {
	if o.dataDir != "" {
		return control.NewPaths(o.dataDir)
	}
	return control.NewPaths(config.DataDir())
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "deskrec",
		Short:        "Record desktop activity into a local event log",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "data directory (default per-user, or $DESKREC_DATA_DIR)")

	root.AddCommand(
		newRunCmd(opts),
		newStopCmd(opts),
		newPauseCmd(opts),
		newResumeCmd(opts),
		newReloadCmd(opts),
		newStatusCmd(opts),
		newSetVideoCmd(opts),
		newInitConfigCmd(opts),
	)
	return root
}
