package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/juste-un-gars/lifetracker_sync/internal/database"
	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
)

func newConflictsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicts waiting for a resolution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				conflicts, err := database.NewConflictStore(a.db).GetAll(cmd.Context())
				if err != nil {
					return err
				}
				printConflicts(a.out, conflicts)
				return nil
			})
		},
	}
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <conflict-id>=<use_local|use_remote|merge>...",
		Short: "Settle pending conflicts",
		Long: `Settle pending conflicts. use_local uploads the local copy, use_remote
downloads the remote copy and merge runs one full pass in which the
newer copy wins.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolutions, err := parseResolutions(args)
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(a *app) error {
				e, err := a.engine()
				if err != nil {
					return err
				}
				defer e.Close()

				lastSync, _, err := a.db.LastSync()
				if err != nil {
					return err
				}

				ctx, cancel := signalContext(cmd.Context())
				defer cancel()

				result, err := e.Resolve(ctx, resolutions, lastSync)
				if result != nil {
					// a resolution is not a full pass, so the last sync time stays
					if recErr := a.record(result, false); recErr != nil && err == nil {
						err = recErr
					}
					printResult(a.out, result)
				}
				if err != nil {
					return err
				}
				if !result.Success {
					return fmt.Errorf("resolution finished with %d failed items", result.Failed)
				}
				return nil
			})
		},
	}
}

// parseResolutions turns id=tag arguments into a resolution map
func parseResolutions(args []string) (map[string]syncpkg.Resolution, error) {
	resolutions := make(map[string]syncpkg.Resolution, len(args))
	for _, arg := range args {
		id, tag, ok := strings.Cut(arg, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid resolution %q, expected <conflict-id>=<resolution>", arg)
		}
		res, err := syncpkg.ParseResolution(strings.TrimSpace(tag))
		if err != nil {
			return nil, err
		}
		if prev, dup := resolutions[id]; dup && prev != res {
			return nil, fmt.Errorf("conflicting resolutions for %s", id)
		}
		resolutions[id] = res
	}
	return resolutions, nil
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync passes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				history, err := a.db.ListSyncHistory(limit)
				if err != nil {
					return err
				}
				lastSync, status, err := a.db.LastSync()
				if err != nil {
					return err
				}
				printHistory(a.out, history, lastSync, status)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of passes to show")
	return cmd
}
