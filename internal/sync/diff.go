package sync

import (
	"fmt"
	"sort"
	"time"

	"github.com/juste-un-gars/lifetracker_sync/internal/exclude"
)

// Action is what the executor does with one pairing
type Action string

const (
	ActionNone     Action = "none"
	ActionUpload   Action = "upload"
	ActionDownload Action = "download"
	ActionConflict Action = "conflict"
	// ActionKeepBoth downloads the remote copy under KeepBothName, uploads local,
	// then uploads the renamed copy
	ActionKeepBoth Action = "keep_both"
)

// Decision is the classification of one local/remote pairing
type Decision struct {
	Name   string
	Local  *SyncItem
	Remote *SyncItem

	Action Action
	Reason string

	// NeedsResolution is set for conflicts until a resolver picks an action
	NeedsResolution bool

	// KeepBothName is the local name the remote copy is saved under
	KeepBothName string
}

// DiffOptions carries the inputs of Classify besides the two listings
type DiffOptions struct {
	LastSync    time.Time
	Direction   SyncDirection
	Excluder    *exclude.Matcher
	MaxFileSize int64

	// NoConflict names pairs that fall back to newer-wins instead of conflicting
	NoConflict map[string]bool
}

// Classify pairs local items with remote items by name and decides an action
// for each pairing. Local items come first in name order, then remote-only
// items in name order, so a fixed input always yields the same plan.
func Classify(local, remote []*SyncItem, opts DiffOptions) []*Decision {
	remoteByName := make(map[string]*SyncItem, len(remote))
	for _, r := range remote {
		remoteByName[r.Name] = r
	}

	locals := sortedByName(local)
	seen := make(map[string]bool, len(locals))
	decisions := make([]*Decision, 0, len(locals)+len(remote))

	for _, l := range locals {
		seen[l.Name] = true
		d := classifyPair(l, remoteByName[l.Name], opts)
		decisions = append(decisions, d)
	}

	for _, r := range sortedByName(remote) {
		if seen[r.Name] {
			continue
		}
		d := &Decision{Name: r.Name, Remote: r, Action: ActionDownload, Reason: "new on remote"}
		applyFilters(d, opts)
		decisions = append(decisions, d)
	}

	return decisions
}

func classifyPair(local, remote *SyncItem, opts DiffOptions) *Decision {
	d := &Decision{Name: local.Name, Local: local, Remote: remote}

	switch {
	case remote == nil:
		d.Action = ActionUpload
		d.Reason = "not on remote"

	case sameContent(local, remote):
		d.Action = ActionNone
		d.Reason = "unchanged"

	case !opts.NoConflict[local.Name] && bothChangedSince(local, remote, opts.LastSync):
		d.Action = ActionConflict
		d.NeedsResolution = true
		d.Reason = fmt.Sprintf("both sides changed since %s", opts.LastSync.UTC().Format(time.RFC3339))

	case remote.RemoteModified == nil || !remote.RemoteModified.After(local.LocalModified):
		d.Action = ActionUpload
		d.Reason = "local is newer"

	default:
		d.Action = ActionDownload
		d.Reason = "remote is newer"
	}

	applyFilters(d, opts)
	return d
}

// sameContent compares identity hashes. When only one side carries an ETag
// the hashes come from different bases, so the weak name-size identity is used.
func sameContent(local, remote *SyncItem) bool {
	if local.Hash == remote.Hash {
		return true
	}
	if (local.ETag == "") != (remote.ETag == "") {
		weak := NameSizeHash{}
		return weak.Hash(local.Name, local.Size, "") == weak.Hash(remote.Name, remote.Size, "")
	}
	return false
}

// bothChangedSince requires a recorded last sync and a known remote time
func bothChangedSince(local, remote *SyncItem, lastSync time.Time) bool {
	if lastSync.IsZero() || remote.RemoteModified == nil {
		return false
	}
	return local.LocalModified.After(lastSync) && remote.RemoteModified.After(lastSync)
}

// applyFilters turns transfers the config disallows into skips
func applyFilters(d *Decision, opts DiffOptions) {
	if d.Action == ActionNone {
		return
	}

	if opts.Excluder.Excluded(d.Name) {
		d.Action, d.NeedsResolution, d.Reason = ActionNone, false, "ignored by pattern"
		return
	}

	if opts.MaxFileSize > 0 {
		for _, it := range []*SyncItem{d.Local, d.Remote} {
			if it != nil && it.Size > opts.MaxFileSize {
				d.Action, d.NeedsResolution = ActionNone, false
				d.Reason = fmt.Sprintf("larger than %d bytes", opts.MaxFileSize)
				return
			}
		}
	}

	switch d.Action {
	case ActionUpload:
		if !opts.Direction.AllowsUpload() {
			d.Action, d.Reason = ActionNone, "uploads disabled"
		}
	case ActionDownload:
		if !opts.Direction.AllowsDownload() {
			d.Action, d.Reason = ActionNone, "downloads disabled"
		}
	}
}

func sortedByName(items []*SyncItem) []*SyncItem {
	out := make([]*SyncItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CountConflicts counts the decisions that need resolution
func CountConflicts(decisions []*Decision) int {
	count := 0
	for _, d := range decisions {
		if d.NeedsResolution {
			count++
		}
	}
	return count
}
