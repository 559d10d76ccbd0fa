package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/juste-un-gars/lifetracker_sync/internal/exclude"
	"go.uber.org/zap"
)

// Engine is the sync orchestrator for one remote
type Engine struct {
	config *SyncConfig
	logger *zap.Logger

	// Components
	provider SyncProvider
	local    LocalStore
	store    ConflictStore
	resolver *ConflictResolver
	executor *Executor
	excluder *exclude.Matcher

	// State
	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	closed  bool
}

// NewEngine creates a new sync engine. cfg is expected to have been
// validated against the provider registry.
func NewEngine(cfg *SyncConfig, provider SyncProvider, local LocalStore, store ConflictStore, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	if local == nil {
		return nil, fmt.Errorf("local store cannot be nil")
	}
	if store == nil {
		store = NewMemoryConflictStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	strategy := cfg.ConflictStrategy
	if strategy == "" {
		strategy = StrategyManual
	}
	resolver, err := NewConflictResolver(strategy, logger.Named("resolver"))
	if err != nil {
		return nil, err
	}

	excluder, err := exclude.New(cfg.IgnorePatterns)
	if err != nil {
		return nil, ValidationError("ignore_patterns", err)
	}

	return &Engine{
		config:   cfg,
		logger:   logger,
		provider: provider,
		local:    local,
		store:    store,
		resolver: resolver,
		executor: NewExecutor(provider, local, logger.Named("executor")),
		excluder: excluder,
	}, nil
}

// SetRetryPolicy replaces the per-transfer retry policy
func (e *Engine) SetRetryPolicy(policy *RetryPolicy) {
	e.executor.SetRetryPolicy(policy)
}

// ConflictStore returns the store pending conflicts are written to
func (e *Engine) ConflictStore() ConflictStore {
	return e.store
}

// Sync runs one full pass. Per-item failures are reported in the result;
// an error is only returned when the pass could not run at all.
func (e *Engine) Sync(ctx context.Context, req *SyncRequest) (*SyncResult, error) {
	if req == nil {
		req = &SyncRequest{}
	}

	syncCtx, release, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	result := NewSyncResult()
	result.DryRun = req.DryRun

	e.logger.Info("starting sync",
		zap.String("pass_id", result.PassID),
		zap.String("provider", e.provider.Name()),
		zap.String("strategy", string(e.resolver.Strategy())),
		zap.Time("last_sync", req.LastSync),
		zap.Bool("dry_run", req.DryRun),
	)

	if err := e.executeSync(syncCtx, req, result); err != nil {
		e.logger.Error("sync failed", zap.String("pass_id", result.PassID), zap.Error(err))
		result.Errors = append(result.Errors, err.Error())
		result.Finalize()
		result.Success = false
		return result, err
	}

	result.Finalize()

	e.logger.Info("sync completed",
		zap.String("pass_id", result.PassID),
		zap.Bool("success", result.Success),
		zap.Int("uploaded", result.Uploaded),
		zap.Int("downloaded", result.Downloaded),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Int64("bytes", result.BytesTransferred),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// begin registers a running pass and returns its context
func (e *Engine) begin(ctx context.Context) (context.Context, func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, nil, ErrEngineClosed
	}
	if e.running {
		return nil, nil, ErrSyncInProgress
	}

	syncCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel

	return syncCtx, func() {
		cancel()
		e.mu.Lock()
		e.running = false
		e.cancel = nil
		e.mu.Unlock()
	}, nil
}

func (e *Engine) executeSync(ctx context.Context, req *SyncRequest, result *SyncResult) error {
	e.reportProgress(req, &SyncProgress{Phase: "listing", Percentage: 0})

	localItems := req.Items
	if localItems == nil {
		items, err := e.local.List(ctx)
		if err != nil {
			return SyncErr("list local", err)
		}
		localItems = items
	}

	remoteItems, err := e.provider.ListRemoteFiles(ctx, "")
	if err != nil {
		return fmt.Errorf("list remote: %w", err)
	}

	e.reportProgress(req, &SyncProgress{
		Phase:      "detecting",
		FilesTotal: len(localItems) + len(remoteItems),
		Percentage: 10,
	})

	decisions := Classify(localItems, remoteItems, DiffOptions{
		LastSync:    req.LastSync,
		Direction:   e.config.Direction,
		Excluder:    e.excluder,
		MaxFileSize: e.config.MaxFileSizeBytes(),
		NoConflict:  req.merged,
	})

	if err := e.holdPending(ctx, decisions, req.merged, req.DryRun); err != nil {
		return err
	}

	resolved, unresolved := e.resolver.ResolveConflicts(decisions)

	e.logger.Info("change detection completed",
		zap.Int("local", len(localItems)),
		zap.Int("remote", len(remoteItems)),
		zap.Int("decisions", len(decisions)),
		zap.Int("conflicts", CountConflicts(decisions)),
	)

	if err := e.surfaceConflicts(ctx, unresolved, result, req.DryRun); err != nil {
		return err
	}

	if req.DryRun {
		for _, d := range resolved {
			e.logger.Info("dry run",
				zap.String("name", d.Name),
				zap.String("action", string(d.Action)),
				zap.String("reason", d.Reason),
			)
			if d.Action == ActionNone {
				result.Skipped++
			}
		}
		return nil
	}

	e.executor.Execute(ctx, resolved, result, req.ProgressCallback)

	e.reportProgress(req, &SyncProgress{
		Phase:            "finalizing",
		BytesTransferred: result.BytesTransferred,
		Percentage:       100,
	})
	return nil
}

// holdPending keeps items with a stored conflict out of the pass until the
// conflict is resolved. A pair whose copies match again no longer conflicts
// and its entry is dropped from the store.
func (e *Engine) holdPending(ctx context.Context, decisions []*Decision, merged map[string]bool, dryRun bool) error {
	pending, err := e.store.GetAll(ctx)
	if err != nil {
		return SyncErr("load conflicts", err)
	}
	if len(pending) == 0 {
		return nil
	}

	byName := make(map[string][]*ConflictItem, len(pending))
	for _, c := range pending {
		if merged[c.Name] {
			continue
		}
		byName[c.Name] = append(byName[c.Name], c)
	}

	for _, d := range decisions {
		conflicts := byName[d.Name]
		if len(conflicts) == 0 {
			continue
		}

		if d.Local != nil && d.Remote != nil && sameContent(d.Local, d.Remote) {
			if dryRun {
				continue
			}
			for _, c := range conflicts {
				if _, err := e.store.Resolve(ctx, c.ID); err != nil && !errors.Is(err, ErrConflictNotFound) {
					return SyncErr("drop settled conflict", err)
				}
				e.logger.Info("conflict settled outside the engine",
					zap.String("conflict_id", c.ID),
					zap.String("name", c.Name),
				)
			}
			continue
		}

		d.Action, d.NeedsResolution, d.Reason = ActionNone, false, "conflict pending"
		if d.Local != nil {
			_ = d.Local.SetStatus(StatusConflictPending, "")
		}
		e.logger.Debug("held back by pending conflict",
			zap.String("name", d.Name),
			zap.String("conflict_id", conflicts[0].ID),
		)
	}
	return nil
}

// surfaceConflicts records manual conflicts without touching either copy
func (e *Engine) surfaceConflicts(ctx context.Context, unresolved []*Decision, result *SyncResult, dryRun bool) error {
	for _, d := range unresolved {
		_ = d.Local.SetStatus(StatusConflictPending, "")
		c := NewConflictItem(d.Local, d.Remote)
		result.AddConflict(c)

		if dryRun {
			continue
		}
		if err := e.store.Put(ctx, c); err != nil {
			return SyncErr("store conflict", err)
		}
		e.logger.Info("conflict pending",
			zap.String("conflict_id", c.ID),
			zap.String("name", c.Name),
			zap.String("local_modified", c.LocalModified),
			zap.String("remote_modified", c.RemoteModified),
		)
	}
	return nil
}

func (e *Engine) reportProgress(req *SyncRequest, progress *SyncProgress) {
	if req.ProgressCallback != nil {
		req.ProgressCallback(progress)
	}
}

// IsSyncing returns whether a pass is running
func (e *Engine) IsSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Cancel stops the running pass after the item in flight
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return false
	}
	e.cancel()
	return true
}

// Close cancels any running pass and closes the provider
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.cancel != nil {
		e.logger.Info("cancelling sync on close")
		e.cancel()
	}
	e.mu.Unlock()

	return e.provider.Close()
}
