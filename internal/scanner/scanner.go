package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/juste-un-gars/lifetracker_sync/internal/exclude"
	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
	"go.uber.org/zap"
)

// tempSuffix marks partial downloads; exclude.DefaultPatterns skips it
const tempSuffix = ".lifesync-tmp"

// Config configures a Scanner
type Config struct {
	// Root is the local snapshot directory
	Root           string
	IgnorePatterns []string
	// HashStrategy must match the one the remote provider uses
	HashStrategy syncpkg.HashStrategy
}

// Scanner implements syncpkg.LocalStore over one flat directory.
// Sub-directories are not descended.
type Scanner struct {
	root     string
	excluder *exclude.Matcher
	hash     syncpkg.HashStrategy
	logger   *zap.Logger
}

// NewScanner creates a scanner for cfg.Root, creating the directory if needed
func NewScanner(cfg Config, logger *zap.Logger) (*Scanner, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("root cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", cfg.Root, err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, NewScanError(root, "create root", err)
	}

	excluder, err := exclude.New(cfg.IgnorePatterns)
	if err != nil {
		return nil, err
	}

	hash := cfg.HashStrategy
	if hash == nil {
		hash = syncpkg.NameSizeHash{}
	}

	return &Scanner{
		root:     root,
		excluder: excluder,
		hash:     hash,
		logger:   logger.With(zap.String("component", "scanner")),
	}, nil
}

// Root returns the absolute snapshot directory
func (s *Scanner) Root() string { return s.root }

// List returns the regular files of the root in name order. Excluded names,
// sub-directories and symlinks are skipped.
func (s *Scanner) List(ctx context.Context) ([]*syncpkg.SyncItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, NewScanError(s.root, "list", err)
	}

	items := make([]*syncpkg.SyncItem, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		name := entry.Name()
		if res := s.excluder.Match(name, entry.IsDir()); res.Excluded {
			s.logger.Debug("excluded",
				zap.String("name", name),
				zap.String("pattern", res.Pattern),
				zap.String("level", res.Level.String()))
			skipped++
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			s.logger.Debug("skipping vanished entry", zap.String("name", name), zap.Error(err))
			continue
		}
		meta := metadataFromInfo(filepath.Join(s.root, name), info)
		if !meta.IsRegularFile() {
			skipped++
			continue
		}

		items = append(items, &syncpkg.SyncItem{
			ID:            name,
			Name:          name,
			LocalPath:     meta.Path,
			Size:          meta.Size,
			LocalModified: meta.MTime,
			Hash:          s.hash.Hash(name, meta.Size, ""),
			Status:        syncpkg.StatusIdle,
			Direction:     syncpkg.DirectionBidirectional,
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	s.logger.Debug("local snapshot listed",
		zap.String("root", s.root),
		zap.Int("files", len(items)),
		zap.Int("skipped", skipped))
	return items, nil
}

// Read returns the content of a listed item
func (s *Scanner) Read(ctx context.Context, item *syncpkg.SyncItem) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.pathFor(item.Name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, NewScanError(p, "read", err)
	}
	return data, nil
}

// Write stores data under name through a temporary file and a rename, then
// sets the modification time to modTime.
func (s *Scanner) Write(ctx context.Context, name string, data []byte, modTime time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.pathFor(name)
	if err != nil {
		return err
	}

	if meta, err := ExtractMetadata(p); err == nil && meta.IsDir {
		return NewScanError(p, "write", ErrIsDirectory)
	}

	tmp := p + tempSuffix
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return NewScanError(p, "write", fmt.Errorf("%w: %v", ErrWriteFailed, err))
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(tmp, modTime, modTime); err != nil {
			s.logger.Warn("failed to set modification time", zap.String("name", name), zap.Error(err))
		}
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return NewScanError(p, "write", fmt.Errorf("%w: %v", ErrWriteFailed, err))
	}

	s.logger.Debug("local file written", zap.String("name", name), zap.Int("bytes", len(data)))
	return nil
}

func (s *Scanner) pathFor(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", NewScanError(name, "resolve", fmt.Errorf("%w: %q", err, name))
	}
	return filepath.Join(s.root, name), nil
}
