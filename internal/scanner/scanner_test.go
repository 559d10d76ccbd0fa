package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
)

var t0 = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

func TestScanner_List(t *testing.T) {
	h := newTestHelpers(t)
	h.createFile("b.json", "bb", t0.Add(time.Hour))
	h.createFile("a.json", "a", t0)
	h.createFile("sub/nested.json", "x", t0)
	h.createFile("draft.tmp", "x", t0)
	h.createFile("a.json.lifesync-tmp", "x", t0)
	h.createFile("notes.bak", "x", t0)

	items, err := h.scanner("*.bak").List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	a, b := items[0], items[1]
	if a.Name != "a.json" || b.Name != "b.json" {
		t.Fatalf("expected name order, got %s, %s", a.Name, b.Name)
	}
	if a.ID != "a.json" || a.LocalPath != filepath.Join(h.root, "a.json") {
		t.Errorf("unexpected id/path %q %q", a.ID, a.LocalPath)
	}
	if a.Size != 1 || a.Hash != "a.json-1" {
		t.Errorf("unexpected size/hash %d %q", a.Size, a.Hash)
	}
	if !b.LocalModified.Equal(t0.Add(time.Hour)) {
		t.Errorf("expected mtime %v, got %v", t0.Add(time.Hour), b.LocalModified)
	}
	if a.RemoteModified != nil {
		t.Error("local items carry no remote time")
	}
	if a.Status != syncpkg.StatusIdle {
		t.Errorf("expected idle, got %s", a.Status)
	}
}

func TestScanner_ListSkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	h := newTestHelpers(t)
	target := h.createFile("real.txt", "x", t0)
	if err := os.Symlink(target, filepath.Join(h.root, "link.txt")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	items, err := h.scanner().List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 || items[0].Name != "real.txt" {
		t.Errorf("expected only real.txt, got %v", items)
	}
}

func TestScanner_ReadWrite(t *testing.T) {
	h := newTestHelpers(t)
	s := h.scanner()
	ctx := context.Background()

	mtime := t0.Add(3 * time.Hour)
	if err := s.Write(ctx, "c.json", []byte(`{"c":1}`), mtime); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := h.readFile("c.json"); got != `{"c":1}` {
		t.Errorf("unexpected content %q", got)
	}
	if _, err := os.Stat(filepath.Join(h.root, "c.json"+tempSuffix)); !os.IsNotExist(err) {
		t.Error("temporary file should be gone")
	}

	items, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 || !items[0].LocalModified.Equal(mtime) {
		t.Fatalf("expected written file with mtime %v, got %v", mtime, items)
	}

	data, err := s.Read(ctx, items[0])
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != `{"c":1}` {
		t.Errorf("unexpected read %q", data)
	}

	// overwrite in place
	if err := s.Write(ctx, "c.json", []byte(`{"c":2}`), mtime.Add(time.Hour)); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if got := h.readFile("c.json"); got != `{"c":2}` {
		t.Errorf("unexpected content after overwrite %q", got)
	}
}

func TestScanner_RejectsUnsafeNames(t *testing.T) {
	h := newTestHelpers(t)
	s := h.scanner()
	ctx := context.Background()

	for _, name := range []string{"", ".", "..", "../escape.txt", `..\escape.txt`, "sub/file.txt"} {
		err := s.Write(ctx, name, []byte("x"), t0)
		if !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Write(%q): expected ErrInvalidPath, got %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(h.root), "escape.txt")); !os.IsNotExist(err) {
		t.Error("file escaped the sync root")
	}
}

func TestScanner_ReadMissing(t *testing.T) {
	h := newTestHelpers(t)
	_, err := h.scanner().Read(context.Background(), &syncpkg.SyncItem{Name: "gone.txt"})
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
	var scanErr *ScanError
	if !errors.As(err, &scanErr) || scanErr.Category != ErrorCategoryFS {
		t.Errorf("expected filesystem ScanError, got %v", err)
	}
}

func TestScanner_WriteOverDirectory(t *testing.T) {
	h := newTestHelpers(t)
	if err := os.Mkdir(filepath.Join(h.root, "folder"), 0755); err != nil {
		t.Fatal(err)
	}
	err := h.scanner().Write(context.Background(), "folder", []byte("x"), t0)
	if !errors.Is(err, ErrIsDirectory) {
		t.Errorf("expected ErrIsDirectory, got %v", err)
	}
}

func TestScanner_Cancelled(t *testing.T) {
	h := newTestHelpers(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.scanner().List(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewScanner_Invalid(t *testing.T) {
	if _, err := NewScanner(Config{}, nil); err == nil {
		t.Error("expected error for empty root")
	}
	if _, err := NewScanner(Config{Root: t.TempDir(), IgnorePatterns: []string{"/"}}, nil); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestNewScanner_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "snapshots", "lifetracker")
	s, err := NewScanner(Config{Root: root}, nil)
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}
	if info, err := os.Stat(s.Root()); err != nil || !info.IsDir() {
		t.Errorf("root not created: %v", err)
	}
}

// Scanner is what the engine lists and writes through
var _ syncpkg.LocalStore = (*Scanner)(nil)
