package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/juste-un-gars/lifetracker_sync/internal/config"
	"github.com/juste-un-gars/lifetracker_sync/internal/exclude"
	"github.com/juste-un-gars/lifetracker_sync/internal/scheduler"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newTestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check that the remote is reachable and writable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				_, p, err := a.provider()
				if err != nil {
					return err
				}
				defer p.Close()

				ctx, cancel := signalContext(cmd.Context())
				defer cancel()

				ok, err := p.TestConnection(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("connection to %s failed", p.Name())
				}
				fmt.Fprintf(a.out, "Connection to %s OK\n", p.Name())
				return nil
			})
		},
	}
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				e, err := a.engine()
				if err != nil {
					return err
				}
				defer e.Close()

				ctx, cancel := signalContext(cmd.Context())
				defer cancel()

				result, err := a.runPass(ctx, e, dryRun)
				if result != nil {
					printResult(a.out, result)
				}
				if err != nil {
					return err
				}
				if !result.Success {
					return fmt.Errorf("sync finished with %d failed items", result.Failed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be transferred without changing anything")
	return cmd
}

func newDaemonCmd(opts *rootOptions) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Sync on the configured interval and after local changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if !a.cfg.Sync.AutoSync {
					return fmt.Errorf("auto sync is disabled (set sync.auto_sync: true)")
				}
				if err := config.ValidateInterval(a.cfg.Sync.IntervalMinutes); err != nil {
					return err
				}

				e, err := a.engine()
				if err != nil {
					return err
				}
				defer e.Close()

				matcher, err := exclude.New(a.cfg.Sync.IgnorePatterns)
				if err != nil {
					return err
				}
				schedCfg := scheduler.Config{
					Interval:   time.Duration(a.cfg.Sync.IntervalMinutes) * time.Minute,
					Debounce:   a.cfg.Debounce(),
					Ignore:     matcher.Excluded,
					RunOnStart: true,
				}
				if !noWatch {
					schedCfg.WatchDir = a.cfg.Sync.LocalDir
				}

				sched, err := scheduler.New(schedCfg, func(ctx context.Context, trigger scheduler.Trigger) error {
					result, err := a.runPass(ctx, e, false)
					if result != nil {
						a.logger.Info("Pass finished",
							zap.String("trigger", string(trigger)),
							zap.String("summary", result.Summary()),
						)
					}
					return err
				}, a.logger)
				if err != nil {
					return err
				}

				ctx, cancel := signalContext(cmd.Context())
				defer cancel()

				fmt.Fprintf(a.out, "Syncing every %d minutes, press Ctrl+C to stop\n", a.cfg.Sync.IntervalMinutes)
				return sched.Run(ctx)
			})
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not watch the local snapshot directory")
	return cmd
}
