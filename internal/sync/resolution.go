package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Resolution is the user's choice for a pending conflict
type Resolution string

const (
	// ResolutionUseLocal uploads the local copy of that item
	ResolutionUseLocal Resolution = "use_local"
	// ResolutionUseRemote downloads the remote copy of that item
	ResolutionUseRemote Resolution = "use_remote"
	// ResolutionMerge drops the conflict and runs one full pass where the item
	// settles by modification time
	ResolutionMerge Resolution = "merge"
)

// ParseResolution validates a resolution tag
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(s); r {
	case ResolutionUseLocal, ResolutionUseRemote, ResolutionMerge:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q (want use_local, use_remote or merge)", ErrInvalidResolution, s)
}

// Resolve applies resolutions keyed by conflict id. use_local and use_remote
// transfer only the item concerned; any number of merge entries trigger a
// single full pass. A conflict leaves the store once its transfer, or the
// merge pass, succeeds.
// Unknown ids and tags are reported in the result, not as an error.
func (e *Engine) Resolve(ctx context.Context, resolutions map[string]Resolution, lastSync time.Time) (*SyncResult, error) {
	syncCtx, release, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	result := NewSyncResult()

	ids := make([]string, 0, len(resolutions))
	for id := range resolutions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var direct []*Decision
	directIDs := make(map[*Decision]string)
	merged := make(map[string]bool)
	var mergedIDs []string

	for _, id := range ids {
		res := resolutions[id]
		c, err := e.store.Get(syncCtx, id)
		if err != nil {
			result.AddError(id, "resolve", err)
			continue
		}
		if c.Local == nil || c.Remote == nil {
			result.AddError(c.Name, "resolve", SyncErr("resolve", fmt.Errorf("conflict %s has no item pair", id)))
			continue
		}

		local, remote := c.Local.Clone(), c.Remote.Clone()
		local.Reset()
		remote.Reset()

		switch res {
		case ResolutionUseLocal:
			d := &Decision{Name: c.Name, Local: local, Remote: remote, Action: ActionUpload, Reason: "resolved: use local"}
			direct = append(direct, d)
			directIDs[d] = id
		case ResolutionUseRemote:
			d := &Decision{Name: c.Name, Local: local, Remote: remote, Action: ActionDownload, Reason: "resolved: use remote"}
			direct = append(direct, d)
			directIDs[d] = id
		case ResolutionMerge:
			merged[c.Name] = true
			mergedIDs = append(mergedIDs, id)
		default:
			result.AddError(c.Name, "resolve", fmt.Errorf("%w: %q", ErrInvalidResolution, res))
			continue
		}

		e.logger.Info("resolving conflict",
			zap.String("conflict_id", id),
			zap.String("name", c.Name),
			zap.String("resolution", string(res)),
		)
	}

	e.executor.Execute(syncCtx, direct, result, nil)
	for _, d := range direct {
		if d.Local.Status != StatusSuccess {
			continue
		}
		if _, err := e.store.Resolve(syncCtx, directIDs[d]); err != nil && !errors.Is(err, ErrConflictNotFound) {
			result.AddError(d.Name, "resolve", err)
		}
	}

	if len(merged) > 0 && !result.Cancelled {
		req := &SyncRequest{LastSync: lastSync, merged: merged}
		if err := e.executeSync(syncCtx, req, result); err != nil {
			result.Errors = append(result.Errors, err.Error())
			result.Finalize()
			result.Success = false
			return result, err
		}
		// merged conflicts stay pending when the pass did not complete
		if !result.Cancelled {
			for _, id := range mergedIDs {
				if _, err := e.store.Resolve(syncCtx, id); err != nil && !errors.Is(err, ErrConflictNotFound) {
					result.AddError(id, "resolve", err)
				}
			}
		}
	}

	result.Finalize()
	e.logger.Info("resolution completed",
		zap.String("pass_id", result.PassID),
		zap.Int("requested", len(resolutions)),
		zap.Int("merged", len(merged)),
		zap.String("summary", result.Summary()),
	)
	return result, nil
}
