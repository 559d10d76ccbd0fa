package sync

import (
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ConflictResolver turns conflict decisions into actions according to a strategy
type ConflictResolver struct {
	strategy ConflictStrategy
	logger   *zap.Logger
}

// NewConflictResolver creates a new conflict resolver
func NewConflictResolver(strategy ConflictStrategy, logger *zap.Logger) (*ConflictResolver, error) {
	if !strategy.IsValid() {
		return nil, ValidationError("conflict_strategy", fmt.Errorf("%w: %q", ErrInvalidStrategy, strategy))
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &ConflictResolver{
		strategy: strategy,
		logger:   logger,
	}, nil
}

// ResolveConflicts passes non-conflicts through and resolves conflicts.
// Under the manual strategy conflicts are returned in unresolved untouched.
func (cr *ConflictResolver) ResolveConflicts(decisions []*Decision) (resolved, unresolved []*Decision) {
	resolved = make([]*Decision, 0, len(decisions))
	unresolved = make([]*Decision, 0)
	conflicts := 0

	for _, d := range decisions {
		if !d.NeedsResolution {
			resolved = append(resolved, d)
			continue
		}
		conflicts++

		if r := cr.resolve(d); r != nil {
			resolved = append(resolved, r)
		} else {
			unresolved = append(unresolved, d)
		}
	}

	if conflicts > 0 {
		cr.logger.Info("conflict resolution complete",
			zap.Int("conflicts", conflicts),
			zap.Int("resolved", conflicts-len(unresolved)),
			zap.Int("unresolved", len(unresolved)),
			zap.String("strategy", string(cr.strategy)),
		)
	}

	return resolved, unresolved
}

func (cr *ConflictResolver) resolve(d *Decision) *Decision {
	r := &Decision{Name: d.Name, Local: d.Local, Remote: d.Remote}

	switch cr.strategy {
	case StrategyLocalWins:
		r.Action = ActionUpload
		r.Reason = "conflict resolved: local wins"

	case StrategyRemoteWins:
		r.Action = ActionDownload
		r.Reason = "conflict resolved: remote wins"

	case StrategyKeepBoth:
		r.Action = ActionKeepBoth
		r.KeepBothName = addServerSuffix(d.Name, timeNow())
		r.Reason = "conflict resolved: keep both (remote copy renamed)"

	case StrategyManual:
		cr.logger.Info("manual resolution required", zap.String("name", d.Name))
		return nil

	default:
		cr.logger.Error("unknown conflict strategy", zap.String("strategy", string(cr.strategy)))
		return nil
	}

	cr.logger.Debug("conflict resolved",
		zap.String("name", d.Name),
		zap.String("action", string(r.Action)),
	)
	return r
}

// addServerSuffix inserts ".server-<timestamp>" before the extension:
// "snapshot.json" -> "snapshot.server-20240102-150405.json"
func addServerSuffix(name string, at time.Time) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return base + ".server-" + at.UTC().Format("20060102-150405") + ext
}

// Strategy returns the current strategy
func (cr *ConflictResolver) Strategy() ConflictStrategy {
	return cr.strategy
}

// SetStrategy changes the strategy
func (cr *ConflictResolver) SetStrategy(strategy ConflictStrategy) error {
	if !strategy.IsValid() {
		return ValidationError("conflict_strategy", fmt.Errorf("%w: %q", ErrInvalidStrategy, strategy))
	}
	cr.strategy = strategy
	cr.logger.Info("conflict strategy changed", zap.String("strategy", string(strategy)))
	return nil
}
