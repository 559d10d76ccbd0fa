package main

import (
	"io"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "lifesync",
		Short: "Synchronize the LifeTracker snapshot with a remote",
		Long: `lifesync keeps the LifeTracker data snapshot in step with a WebDAV
server (or an SMB share). Files changed on both sides since the last
sync are handled by the configured conflict strategy; with the manual
strategy they are listed by "lifesync conflicts" and settled with
"lifesync resolve".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging on the console")

	root.AddCommand(
		newTestCmd(opts),
		newSyncCmd(opts),
		newDaemonCmd(opts),
		newConflictsCmd(opts),
		newResolveCmd(opts),
		newHistoryCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// withApp opens the application state for the duration of fn
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(a *app) error) error {
	a, err := newApp(opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
