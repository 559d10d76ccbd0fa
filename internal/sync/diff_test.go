package sync

import (
	"testing"
	"time"

	"github.com/juste-un-gars/lifetracker_sync/internal/exclude"
)

func localItem(name string, size int64, modified time.Time) *SyncItem {
	return &SyncItem{
		ID:            name,
		Name:          name,
		Size:          size,
		LocalModified: modified,
		Hash:          NameSizeHash{}.Hash(name, size, ""),
	}
}

func remoteItem(name string, size int64, modified *time.Time) *SyncItem {
	return &SyncItem{
		ID:             "/dav/App/" + name,
		Name:           name,
		RemotePath:     "/dav/App/" + name,
		Size:           size,
		RemoteModified: modified,
		Hash:           NameSizeHash{}.Hash(name, size, ""),
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		local    *SyncItem
		remote   *SyncItem
		lastSync time.Time
		expected Action
	}{
		{"remote absent", localItem("a", 1, t2), nil, t1, ActionUpload},
		{"same hash", localItem("a", 1, t2), remoteItem("a", 1, timePtr(t3)), t1, ActionNone},
		{"local newer", localItem("a", 1, t3), remoteItem("a", 2, timePtr(t2)), time.Time{}, ActionUpload},
		{"equal times upload", localItem("a", 1, t2), remoteItem("a", 2, timePtr(t2)), time.Time{}, ActionUpload},
		{"remote time unknown", localItem("a", 1, t2), remoteItem("a", 2, nil), t1, ActionUpload},
		{"remote newer", localItem("a", 1, t2), remoteItem("a", 2, timePtr(t3)), time.Time{}, ActionDownload},
		{"both changed since last sync", localItem("a", 1, t2), remoteItem("a", 2, timePtr(t3)), t1, ActionConflict},
		{"both changed, local later", localItem("a", 1, t3), remoteItem("a", 2, timePtr(t2)), t1, ActionConflict},
		{"only remote changed", localItem("a", 1, t0), remoteItem("a", 2, timePtr(t3)), t1, ActionDownload},
		{"only local changed", localItem("a", 1, t3), remoteItem("a", 2, timePtr(t0)), t1, ActionUpload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var remote []*SyncItem
			if tt.remote != nil {
				remote = append(remote, tt.remote)
			}
			decisions := Classify([]*SyncItem{tt.local}, remote, DiffOptions{LastSync: tt.lastSync})
			if len(decisions) != 1 {
				t.Fatalf("expected 1 decision, got %d", len(decisions))
			}
			if decisions[0].Action != tt.expected {
				t.Errorf("expected %s, got %s (%s)", tt.expected, decisions[0].Action, decisions[0].Reason)
			}
			if (tt.expected == ActionConflict) != decisions[0].NeedsResolution {
				t.Errorf("NeedsResolution=%v for action %s", decisions[0].NeedsResolution, decisions[0].Action)
			}
		})
	}
}

func TestClassify_DeterministicOrder(t *testing.T) {
	local := []*SyncItem{localItem("c", 1, t1), localItem("a", 1, t1)}
	remote := []*SyncItem{remoteItem("z", 1, timePtr(t1)), remoteItem("b", 1, timePtr(t1)), remoteItem("a", 1, timePtr(t1))}

	for i := 0; i < 5; i++ {
		decisions := Classify(local, remote, DiffOptions{})
		var names []string
		for _, d := range decisions {
			names = append(names, d.Name)
		}
		expected := []string{"a", "c", "b", "z"}
		if len(names) != len(expected) {
			t.Fatalf("expected %v, got %v", expected, names)
		}
		for j := range expected {
			if names[j] != expected[j] {
				t.Fatalf("expected %v, got %v", expected, names)
			}
		}
	}
}

func TestClassify_RemoteOnlyRespectsDirection(t *testing.T) {
	remote := []*SyncItem{remoteItem("r", 1, timePtr(t1))}

	decisions := Classify(nil, remote, DiffOptions{Direction: DirectionUpload})
	if decisions[0].Action != ActionNone {
		t.Errorf("upload-only should not download, got %s", decisions[0].Action)
	}

	decisions = Classify(nil, remote, DiffOptions{Direction: DirectionBidirectional})
	if decisions[0].Action != ActionDownload {
		t.Errorf("expected download, got %s", decisions[0].Action)
	}
}

func TestClassify_IgnoredConflictIsSkipped(t *testing.T) {
	m, err := exclude.New([]string{"*.lock"})
	if err != nil {
		t.Fatalf("exclude.New: %v", err)
	}

	decisions := Classify(
		[]*SyncItem{localItem("db.lock", 1, t2)},
		[]*SyncItem{remoteItem("db.lock", 2, timePtr(t3))},
		DiffOptions{LastSync: t1, Excluder: m},
	)
	if decisions[0].Action != ActionNone || decisions[0].NeedsResolution {
		t.Errorf("ignored file should be skipped, got %s", decisions[0].Action)
	}
}

func TestClassify_NoConflictFallsBackToNewer(t *testing.T) {
	decisions := Classify(
		[]*SyncItem{localItem("a", 1, t2)},
		[]*SyncItem{remoteItem("a", 2, timePtr(t3))},
		DiffOptions{LastSync: t1, NoConflict: map[string]bool{"a": true}},
	)
	if decisions[0].Action != ActionDownload {
		t.Errorf("expected download, got %s", decisions[0].Action)
	}
}

func TestClassify_ETagAgainstLocal(t *testing.T) {
	remote := remoteItem("a", 3, timePtr(t3))
	remote.ETag = `"abc"`
	remote.Hash = ETagHash{}.Hash("a", 3, remote.ETag)

	decisions := Classify([]*SyncItem{localItem("a", 3, t2)}, []*SyncItem{remote}, DiffOptions{LastSync: t1})
	if decisions[0].Action != ActionNone {
		t.Errorf("same name and size with a remote-only ETag: got %s, want %s", decisions[0].Action, ActionNone)
	}

	remote.Size = 4
	decisions = Classify([]*SyncItem{localItem("a", 3, t2)}, []*SyncItem{remote}, DiffOptions{})
	if decisions[0].Action != ActionDownload {
		t.Errorf("size differs: got %s, want %s", decisions[0].Action, ActionDownload)
	}
}
