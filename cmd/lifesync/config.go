package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/juste-un-gars/lifetracker_sync/internal/config"
	"github.com/juste-un-gars/lifetracker_sync/internal/smb"
	"github.com/juste-un-gars/lifetracker_sync/internal/webdav"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change the sync configuration",
	}
	cmd.AddCommand(
		newConfigShowCmd(opts),
		newConfigValidateCmd(opts),
		newConfigSetIntervalCmd(opts),
		newConfigSetWebDAVCmd(opts),
		newConfigSetSMBCmd(opts),
	)
	return cmd
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				file := a.cfg.File()
				if file == "" {
					file = "(defaults)"
				}
				fmt.Fprintf(a.out, "Config file: %s\n\n", file)
				printSettings(a.out, a.cfg.AllSettings())
				return nil
			})
		},
	}
}

func newConfigValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration without contacting the remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				sc, err := a.syncConfig()
				if err != nil {
					return err
				}
				if err := sc.Validate(a.registry); err != nil {
					return err
				}
				if err := config.ValidateInterval(sc.SyncInterval); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Configuration valid (provider %s, every %d minutes, %s conflicts)\n",
					sc.Provider, sc.SyncInterval, sc.ConflictStrategy)
				return nil
			})
		},
	}
}

func newConfigSetIntervalCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-interval <minutes>",
		Short: "Change the auto-sync interval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid interval %q: %w", args[0], err)
			}
			if err := config.ValidateInterval(minutes); err != nil {
				return err
			}

			return withApp(cmd, opts, func(a *app) error {
				if err := a.cfg.Set("sync.interval_minutes", minutes); err != nil {
					return err
				}
				if err := a.cfg.Save(); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Sync interval set to %d minutes\n", minutes)
				return nil
			})
		},
	}
}

func newConfigSetWebDAVCmd(opts *rootOptions) *cobra.Command {
	var settings struct {
		url, username, password, directory string
	}

	cmd := &cobra.Command{
		Use:   "set-webdav",
		Short: "Configure the WebDAV remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values := map[string]string{
				"url":       settings.url,
				"username":  settings.username,
				"password":  settings.password,
				"directory": settings.directory,
			}
			if err := webdav.ValidateSettings(values); err != nil {
				return err
			}

			return withApp(cmd, opts, func(a *app) error {
				return a.storeProvider(webdav.ProviderName, webdav.PasswordService, values)
			})
		},
	}

	cmd.Flags().StringVar(&settings.url, "url", "", "WebDAV server URL, e.g. https://cloud.example.com/remote.php/dav/files/alice")
	cmd.Flags().StringVar(&settings.username, "username", "", "Account name")
	cmd.Flags().StringVar(&settings.password, "password", "", "Account password, stored encrypted")
	cmd.Flags().StringVar(&settings.directory, "directory", webdav.DefaultDirectory, "Remote sync directory")
	return cmd
}

func newConfigSetSMBCmd(opts *rootOptions) *cobra.Command {
	var settings struct {
		host, share, port, domain, username, password, directory string
	}

	cmd := &cobra.Command{
		Use:   "set-smb",
		Short: "Configure an SMB share as the remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values := map[string]string{
				"host":      settings.host,
				"share":     settings.share,
				"port":      settings.port,
				"domain":    settings.domain,
				"username":  settings.username,
				"password":  settings.password,
				"directory": settings.directory,
			}
			if err := smb.ValidateSettings(values); err != nil {
				return err
			}

			return withApp(cmd, opts, func(a *app) error {
				return a.storeProvider(smb.ProviderName, smb.PasswordService, values)
			})
		},
	}

	cmd.Flags().StringVar(&settings.host, "host", "", "Server name or address")
	cmd.Flags().StringVar(&settings.share, "share", "", "Share name")
	cmd.Flags().StringVar(&settings.port, "port", strconv.Itoa(smb.DefaultPort), "Server port")
	cmd.Flags().StringVar(&settings.domain, "domain", "", "NTLM domain")
	cmd.Flags().StringVar(&settings.username, "username", "", "Account name")
	cmd.Flags().StringVar(&settings.password, "password", "", "Account password, stored encrypted")
	cmd.Flags().StringVar(&settings.directory, "directory", smb.DefaultDirectory, "Directory inside the share")
	return cmd
}

// storeProvider makes provider the active remote. The password is encrypted
// into the database; the config file keeps the other settings.
func (a *app) storeProvider(provider, service string, values map[string]string) error {
	password := values["password"]
	if password != "" {
		blob, err := a.creds.Encrypt(service, password)
		if err != nil {
			return err
		}
		if err := a.db.SetProviderPassword(provider, blob); err != nil {
			return err
		}
	}
	values["password"] = ""

	if err := a.cfg.Set("sync.provider", provider); err != nil {
		return err
	}
	if err := a.cfg.SetProviderSettings(values); err != nil {
		return err
	}
	if err := a.cfg.Save(); err != nil {
		return err
	}

	a.logger.Info("Remote configured", zap.String("provider", provider), zap.String("config", a.cfg.File()))
	fmt.Fprintf(a.out, "%s remote saved to %s\n", provider, a.cfg.File())
	return nil
}
