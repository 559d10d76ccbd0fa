package sync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ItemStatus is the per-pass state of a SyncItem
type ItemStatus string

const (
	// StatusIdle means the item has not been touched in this pass
	StatusIdle ItemStatus = "idle"
	// StatusSyncing means a transfer is in flight
	StatusSyncing ItemStatus = "syncing"
	// StatusSuccess means the transfer completed
	StatusSuccess ItemStatus = "success"
	// StatusFailed means the transfer failed, see StatusReason
	StatusFailed ItemStatus = "failed"
	// StatusConflictPending means the item waits for an explicit resolution
	StatusConflictPending ItemStatus = "conflict_pending"
)

// SyncDirection restricts which way content may flow
type SyncDirection string

const (
	// DirectionUpload only pushes local content to the remote
	DirectionUpload SyncDirection = "upload"
	// DirectionDownload only pulls remote content
	DirectionDownload SyncDirection = "download"
	// DirectionBidirectional allows both
	DirectionBidirectional SyncDirection = "bidirectional"
)

// IsValid returns true for a known direction
func (d SyncDirection) IsValid() bool {
	switch d {
	case DirectionUpload, DirectionDownload, DirectionBidirectional:
		return true
	}
	return false
}

// AllowsUpload returns true if local content may be pushed
func (d SyncDirection) AllowsUpload() bool {
	return d == DirectionUpload || d == DirectionBidirectional || d == ""
}

// AllowsDownload returns true if remote content may be pulled
func (d SyncDirection) AllowsDownload() bool {
	return d == DirectionDownload || d == DirectionBidirectional || d == ""
}

// SyncItem is one file-like unit compared between local and remote.
// Items are rebuilt every pass from the local snapshot and the remote listing.
type SyncItem struct {
	// ID is stable across passes. For remote listings it is the href.
	ID         string `json:"id"`
	Name       string `json:"name"`
	LocalPath  string `json:"local_path,omitempty"`
	RemotePath string `json:"remote_path,omitempty"`
	Size       int64  `json:"size"`

	LocalModified time.Time `json:"local_modified"`
	// RemoteModified is nil until the item has been seen in a remote listing
	RemoteModified *time.Time `json:"remote_modified,omitempty"`

	// Hash is a weak identity, see HashStrategy
	Hash string `json:"hash"`
	ETag string `json:"etag,omitempty"`

	Status       ItemStatus    `json:"status"`
	StatusReason string        `json:"status_reason,omitempty"`
	Direction    SyncDirection `json:"direction"`
}

// SetStatus moves the item through Idle -> Syncing -> {Success|Failed|ConflictPending}.
func (i *SyncItem) SetStatus(status ItemStatus, reason string) error {
	from := i.Status
	if from == "" {
		from = StatusIdle
	}

	allowed := false
	switch from {
	case StatusIdle:
		allowed = status == StatusSyncing || status == StatusConflictPending
	case StatusSyncing:
		allowed = status == StatusSuccess || status == StatusFailed || status == StatusConflictPending
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}

	i.Status = status
	if status == StatusFailed {
		i.StatusReason = reason
	} else {
		i.StatusReason = ""
	}
	return nil
}

// Reset puts the item back to Idle for the next pass
func (i *SyncItem) Reset() {
	i.Status = StatusIdle
	i.StatusReason = ""
}

// Clone returns a shallow copy with its own RemoteModified pointer
func (i *SyncItem) Clone() *SyncItem {
	c := *i
	if i.RemoteModified != nil {
		t := *i.RemoteModified
		c.RemoteModified = &t
	}
	return &c
}

// ConflictType tags the nature of a conflict
type ConflictType string

const (
	// ConflictBothModified means both sides changed since the last sync
	ConflictBothModified ConflictType = "both_modified"
)

// ConflictItem is the projection of a conflicting pair surfaced for manual resolution
type ConflictItem struct {
	ID             string          `json:"id"`
	ItemID         string          `json:"item_id"`
	Name           string          `json:"name"`
	LocalModified  string          `json:"local_modified"`
	RemoteModified string          `json:"remote_modified"`
	ConflictType   ConflictType    `json:"conflict_type"`
	LocalPreview   json.RawMessage `json:"local_preview"`
	RemotePreview  json.RawMessage `json:"remote_preview"`
	FileSize       int64           `json:"file_size"`
	LocalHash      string          `json:"local_hash"`
	RemoteHash     string          `json:"remote_hash"`
	DetectedAt     time.Time       `json:"detected_at"`

	Local  *SyncItem `json:"local"`
	Remote *SyncItem `json:"remote"`
}

type itemPreview struct {
	Size      int64         `json:"size"`
	Hash      string        `json:"hash"`
	Modified  string        `json:"modified"`
	Direction SyncDirection `json:"direction"`
	Status    ItemStatus    `json:"status"`
}

// NewConflictItem builds a ConflictItem from a local/remote pair
func NewConflictItem(local, remote *SyncItem) *ConflictItem {
	remoteModified := ""
	if remote.RemoteModified != nil {
		remoteModified = remote.RemoteModified.UTC().Format(time.RFC3339)
	}
	localModified := ""
	if !local.LocalModified.IsZero() {
		localModified = local.LocalModified.UTC().Format(time.RFC3339)
	}

	localPreview, _ := json.Marshal(itemPreview{
		Size:      local.Size,
		Hash:      local.Hash,
		Modified:  localModified,
		Direction: local.Direction,
		Status:    local.Status,
	})
	remotePreview, _ := json.Marshal(itemPreview{
		Size:      remote.Size,
		Hash:      remote.Hash,
		Modified:  remoteModified,
		Direction: remote.Direction,
		Status:    remote.Status,
	})

	return &ConflictItem{
		ID:             uuid.NewString(),
		ItemID:         local.ID,
		Name:           local.Name,
		LocalModified:  localModified,
		RemoteModified: remoteModified,
		ConflictType:   ConflictBothModified,
		LocalPreview:   localPreview,
		RemotePreview:  remotePreview,
		FileSize:       local.Size,
		LocalHash:      local.Hash,
		RemoteHash:     remote.Hash,
		DetectedAt:     timeNow(),
		Local:          local.Clone(),
		Remote:         remote.Clone(),
	}
}

// SyncRequest describes one engine pass
type SyncRequest struct {
	// Items is the local snapshot. When nil the engine lists its LocalStore.
	Items []*SyncItem

	// LastSync is when the last pass ended, zero if none
	LastSync time.Time

	// DryRun classifies without transferring
	DryRun bool

	// ProgressCallback is called to report progress (optional)
	ProgressCallback ProgressCallback

	// merged names settle by modification time for this pass
	merged map[string]bool
}

// SyncResult is the outcome of one engine pass
type SyncResult struct {
	PassID  string
	Success bool

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Uploaded   int
	Downloaded int
	Skipped    int
	Failed     int

	BytesTransferred int64

	Errors    []string
	Conflicts []*ConflictItem

	// Cancelled is set when the context was cancelled between items
	Cancelled bool
	DryRun    bool
}

// NewSyncResult creates a new sync result
func NewSyncResult() *SyncResult {
	return &SyncResult{
		PassID:    uuid.NewString(),
		StartTime: timeNow(),
		Errors:    make([]string, 0),
		Conflicts: make([]*ConflictItem, 0),
	}
}

// Finalize sets the end time, duration and success flag
func (r *SyncResult) Finalize() {
	r.EndTime = timeNow()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Success = r.Failed == 0 && !r.Cancelled
}

// AddError records a failed item
func (r *SyncResult) AddError(name, operation string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s %s: %v", operation, name, err))
}

// AddConflict records an unresolved conflict
func (r *SyncResult) AddConflict(c *ConflictItem) {
	r.Conflicts = append(r.Conflicts, c)
}

// Summary renders the counts for display
func (r *SyncResult) Summary() string {
	s := fmt.Sprintf("uploaded %d, downloaded %d, skipped %d, %d failed",
		r.Uploaded, r.Downloaded, r.Skipped, r.Failed)
	if len(r.Conflicts) > 0 {
		s += fmt.Sprintf(", %d conflicts", len(r.Conflicts))
	}
	if r.Cancelled {
		s += " (cancelled)"
	}
	return s
}

// SyncProgress reports the current state of a pass
type SyncProgress struct {
	Phase            string
	CurrentFile      string
	CurrentAction    string
	FilesProcessed   int
	FilesTotal       int
	BytesTransferred int64
	Percentage       float64
}

// ProgressCallback receives progress updates
type ProgressCallback func(progress *SyncProgress)
