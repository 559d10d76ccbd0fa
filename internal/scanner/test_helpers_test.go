package scanner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// testHelpers provides utilities for scanner tests
type testHelpers struct {
	t    *testing.T
	root string
}

func newTestHelpers(t *testing.T) *testHelpers {
	t.Helper()
	return &testHelpers{t: t, root: t.TempDir()}
}

// createFile writes content and sets the modification time
func (h *testHelpers) createFile(name, content string, mtime time.Time) string {
	h.t.Helper()
	p := filepath.Join(h.root, name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		h.t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		h.t.Fatalf("failed to write %s: %v", name, err)
	}
	if err := os.Chtimes(p, mtime, mtime); err != nil {
		h.t.Fatalf("failed to set mtime on %s: %v", name, err)
	}
	return p
}

func (h *testHelpers) readFile(name string) string {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.root, name))
	if err != nil {
		h.t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func (h *testHelpers) scanner(patterns ...string) *Scanner {
	h.t.Helper()
	s, err := NewScanner(Config{Root: h.root, IgnorePatterns: patterns}, h.logger())
	if err != nil {
		h.t.Fatalf("failed to create scanner: %v", err)
	}
	return s
}

func (h *testHelpers) logger() *zap.Logger {
	return zaptest.NewLogger(h.t, zaptest.Level(zap.WarnLevel))
}
