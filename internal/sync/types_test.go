package sync

import (
	"errors"
	"testing"
	"time"
)

func TestSyncItemLifecycle(t *testing.T) {
	item := &SyncItem{Name: "a.json"}

	if err := item.SetStatus(StatusSuccess, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("idle -> success should be rejected, got %v", err)
	}
	if err := item.SetStatus(StatusSyncing, ""); err != nil {
		t.Fatalf("idle -> syncing: %v", err)
	}
	if err := item.SetStatus(StatusFailed, "status 507"); err != nil {
		t.Fatalf("syncing -> failed: %v", err)
	}
	if item.StatusReason != "status 507" {
		t.Errorf("expected failure reason, got %q", item.StatusReason)
	}
	if err := item.SetStatus(StatusSyncing, ""); err == nil {
		t.Error("failed is terminal until reset")
	}

	item.Reset()
	if item.Status != StatusIdle || item.StatusReason != "" {
		t.Errorf("reset should return to idle, got %s %q", item.Status, item.StatusReason)
	}
	if err := item.SetStatus(StatusConflictPending, ""); err != nil {
		t.Errorf("idle -> conflict_pending: %v", err)
	}
	if err := item.SetStatus(StatusSyncing, ""); err == nil {
		t.Error("conflict_pending is terminal until reset")
	}
}

func TestSyncItemClone(t *testing.T) {
	modified := t1
	item := &SyncItem{Name: "a", RemoteModified: &modified}
	c := item.Clone()
	*c.RemoteModified = t2
	if !item.RemoteModified.Equal(t1) {
		t.Error("clone must not share RemoteModified")
	}
}

func TestSyncResultFinalize(t *testing.T) {
	r := NewSyncResult()
	if r.PassID == "" {
		t.Error("expected a pass id")
	}
	r.Uploaded = 3
	r.Downloaded = 1
	r.AddError("a.json", "upload", errors.New("boom"))
	r.AddError("b.json", "download", errors.New("boom"))
	r.Finalize()

	if r.Success {
		t.Error("result with failures should not be successful")
	}
	if r.Duration < 0 || r.EndTime.Before(r.StartTime) {
		t.Error("invalid timings")
	}
	if got := r.Summary(); got != "uploaded 3, downloaded 1, skipped 0, 2 failed" {
		t.Errorf("unexpected summary %q", got)
	}
}

func TestHashStrategies(t *testing.T) {
	if got := (NameSizeHash{}).Hash("tasks.json", 120, "\"abc\""); got != "tasks.json-120" {
		t.Errorf("NameSizeHash = %q", got)
	}
	if got := (ETagHash{}).Hash("tasks.json", 120, "\"abc\""); got != "\"abc\"" {
		t.Errorf("ETagHash with etag = %q", got)
	}
	if got := (ETagHash{}).Hash("tasks.json", 120, ""); got != "tasks.json-120" {
		t.Errorf("ETagHash fallback = %q", got)
	}

	if _, err := HashStrategyByName("sha256"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestNewConflictItemWithoutRemoteTime(t *testing.T) {
	c := NewConflictItem(localItem("a", 1, time.Time{}), remoteItem("a", 2, nil))
	if c.LocalModified != "" || c.RemoteModified != "" {
		t.Errorf("expected empty timestamps, got %q %q", c.LocalModified, c.RemoteModified)
	}
	if c.ID == "" || c.ItemID != "a" {
		t.Errorf("unexpected ids %q %q", c.ID, c.ItemID)
	}
}
