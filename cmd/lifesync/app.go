package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/juste-un-gars/lifetracker_sync/internal/config"
	"github.com/juste-un-gars/lifetracker_sync/internal/credentials"
	"github.com/juste-un-gars/lifetracker_sync/internal/database"
	"github.com/juste-un-gars/lifetracker_sync/internal/logger"
	"github.com/juste-un-gars/lifetracker_sync/internal/scanner"
	"github.com/juste-un-gars/lifetracker_sync/internal/smb"
	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
	"github.com/juste-un-gars/lifetracker_sync/internal/webdav"
)

// historyKeep bounds the sync_history table
const historyKeep = 200

// app wires configuration, persistence and providers for one command
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	creds    *credentials.Manager
	db       *database.DB
	registry *syncpkg.Registry
	hash     syncpkg.HashStrategy
	out      io.Writer
}

func newApp(opts *rootOptions, out io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	consoleLevel := cfg.Logging.Levels.Console
	if opts.verbose {
		consoleLevel = "debug"
	}
	log, err := logger.New(logger.Config{
		ConsoleLevel: consoleLevel,
		FileLevel:    cfg.Logging.Levels.File,
		OutputPath:   filepath.Join(cfg.Paths.LogDir, "lifesync.log"),
		MaxSizeMB:    cfg.Logging.Rotation.MaxSizeMB,
		MaxFiles:     cfg.Logging.Rotation.MaxFiles,
		Compress:     cfg.Logging.Rotation.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	creds := credentials.NewManager(log)
	key, err := creds.DatabaseKey()
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("failed to get database key: %w", err)
	}

	db, err := database.Open(database.Config{Path: cfg.Database.Path, EncryptionKey: key})
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	hash, err := syncpkg.HashStrategyByName(cfg.Sync.HashStrategy)
	if err != nil {
		db.Close()
		log.Sync()
		return nil, fmt.Errorf("invalid sync.hash_strategy: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: log,
		creds:  creds,
		db:     db,
		hash:   hash,
		out:    out,
	}
	a.registry = a.newRegistry()
	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("Failed to close database", zap.Error(err))
	}
	a.logger.Sync()
}

func (a *app) newRegistry() *syncpkg.Registry {
	reg := syncpkg.NewRegistry()
	reg.Register(webdav.ProviderName, webdav.Factory(a.creds, &webdav.Options{
		Timeout:      a.cfg.Timeout(),
		HashStrategy: a.hash,
	}))
	reg.Register(smb.ProviderName, smb.Factory(a.creds, a.hash))
	return reg
}

// syncConfig returns the engine config with the stored password filled in
func (a *app) syncConfig() (*syncpkg.SyncConfig, error) {
	sc := a.cfg.SyncConfig()
	if pw := sc.Settings["password"]; pw != "" && !credentials.IsEncrypted(pw) {
		a.logger.Warn("Password is stored in plaintext in the config file",
			zap.String("provider", sc.Provider),
			zap.String("config", a.cfg.File()),
		)
	}
	if sc.Settings["password"] == "" {
		blob, err := a.db.ProviderPassword(sc.Provider)
		if err != nil {
			return nil, err
		}
		if blob != "" {
			sc.Settings["password"] = blob
		}
	}
	return sc, nil
}

// provider validates the configuration and builds the configured backend
func (a *app) provider() (*syncpkg.SyncConfig, syncpkg.SyncProvider, error) {
	sc, err := a.syncConfig()
	if err != nil {
		return nil, nil, err
	}
	p, err := a.registry.Build(sc, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return sc, p, nil
}

// engine builds a sync engine over the local snapshot directory
func (a *app) engine() (*syncpkg.Engine, error) {
	sc, p, err := a.provider()
	if err != nil {
		return nil, err
	}

	local, err := scanner.NewScanner(scanner.Config{
		Root:           a.cfg.Sync.LocalDir,
		IgnorePatterns: sc.IgnorePatterns,
		HashStrategy:   a.hash,
	}, a.logger)
	if err != nil {
		p.Close()
		return nil, err
	}

	e, err := syncpkg.NewEngine(sc, p, local, database.NewConflictStore(a.db), a.logger.Named("engine"))
	if err != nil {
		p.Close()
		return nil, err
	}
	e.SetRetryPolicy(syncpkg.DefaultRetryPolicy(a.logger).WithMaxRetries(a.cfg.Network.MaxRetries))
	return e, nil
}

// runPass executes one pass and records it unless it was a dry run
func (a *app) runPass(ctx context.Context, e *syncpkg.Engine, dryRun bool) (*syncpkg.SyncResult, error) {
	lastSync, _, err := a.db.LastSync()
	if err != nil {
		return nil, err
	}

	result, err := e.Sync(ctx, &syncpkg.SyncRequest{LastSync: lastSync, DryRun: dryRun})
	if result != nil && !dryRun {
		if recErr := a.record(result, err == nil && result.Success); recErr != nil {
			err = errors.Join(err, recErr)
		}
	}
	return result, err
}

// record persists the outcome of a pass. The last sync time moves to the pass
// end only when advance is set: after an incomplete pass, changes made before
// it must still count as changed on the next one.
func (a *app) record(result *syncpkg.SyncResult, advance bool) error {
	status := database.ResultStatus(result)
	if advance {
		if err := a.db.SetLastSync(result.EndTime, status); err != nil {
			return err
		}
	} else if err := a.db.SetLastSyncStatus(status); err != nil {
		return err
	}

	if err := a.db.InsertSyncHistory(database.HistoryFromResult(a.cfg.Sync.Provider, result)); err != nil {
		return err
	}
	if _, err := a.db.PruneSyncHistory(historyKeep); err != nil {
		a.logger.Warn("Failed to prune sync history", zap.Error(err))
	}
	return nil
}
