package smb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
	"go.uber.org/zap"
)

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}

// remoteItem converts a directory entry, nil for directories and upload leftovers
func remoteItem(dir string, info fs.FileInfo, hash syncpkg.HashStrategy) *syncpkg.SyncItem {
	if info.IsDir() || strings.HasSuffix(info.Name(), UploadTempSuffix) {
		return nil
	}
	rel := path.Join(dir, info.Name())
	modified := info.ModTime().UTC()
	return &syncpkg.SyncItem{
		ID:             rel,
		Name:           info.Name(),
		RemotePath:     rel,
		Size:           info.Size(),
		RemoteModified: &modified,
		Hash:           hash.Hash(info.Name(), info.Size(), ""),
		Status:         syncpkg.StatusIdle,
		Direction:      syncpkg.DirectionBidirectional,
	}
}

var errTempKept = errors.New("previous copy removed, new content kept under the temporary name")

type renamer interface {
	Remove(name string) error
	Rename(oldpath, newpath string) error
}

// replaceFile moves tmp over target. Rename does not overwrite on SMB, so the
// target goes first; once it is gone tmp holds the only copy and is kept.
func replaceFile(fsys renamer, tmp, target string) error {
	if err := fsys.Remove(target); err != nil && !isNotExist(err) {
		_ = fsys.Remove(tmp)
		return err
	}
	if err := fsys.Rename(tmp, target); err != nil {
		return fmt.Errorf("%w: %v", errTempKept, err)
	}
	return nil
}

// TestConnection mounts the share and makes sure the sync directory exists
func (c *Client) TestConnection(ctx context.Context) (bool, error) {
	share, err := c.mount(ctx)
	if err != nil {
		c.logger.Warn("smb connection failed", zap.Error(err))
		return false, ctx.Err()
	}

	info, err := share.Stat(c.directory)
	switch {
	case err == nil && info.IsDir():
		return true, nil
	case err == nil:
		c.logger.Warn("sync path exists but is not a directory", zap.String("directory", c.directory))
		return false, nil
	case isNotExist(err):
		if err := share.MkdirAll(c.directory, 0755); err != nil {
			c.logger.Warn("failed to create sync directory", zap.Error(err))
			return false, ctx.Err()
		}
		c.logger.Info("created sync directory", zap.String("directory", c.directory))
		return true, nil
	default:
		// reachable; access to the directory is restricted
		c.logger.Info("smb connected with restricted access", zap.Error(err))
		return true, nil
	}
}

// ListRemoteFiles lists the regular files of a directory relative to the sync root
func (c *Client) ListRemoteFiles(ctx context.Context, dir string) ([]*syncpkg.SyncItem, error) {
	share, err := c.mount(ctx)
	if err != nil {
		return nil, err
	}

	full := c.remotePath(dir)
	entries, err := share.ReadDir(full)
	if err != nil {
		return nil, c.fail("list", full, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	items := make([]*syncpkg.SyncItem, 0, len(entries))
	for _, info := range entries {
		if item := remoteItem(dir, info, c.hash); item != nil {
			items = append(items, item)
		}
	}

	c.logger.Debug("listed remote directory", zap.String("path", full), zap.Int("files", len(items)))
	return items, nil
}

// UploadFile writes to a temporary name and renames it over the target
func (c *Client) UploadFile(ctx context.Context, item *syncpkg.SyncItem, data []byte) error {
	share, err := c.mount(ctx)
	if err != nil {
		return err
	}

	target := c.remotePath(remoteRel(item))
	if dir := path.Dir(target); dir != "." {
		_ = share.MkdirAll(dir, 0755)
	}

	tmp := target + UploadTempSuffix
	if err := share.WriteFile(tmp, data, 0644); err != nil {
		_ = share.Remove(tmp)
		return c.fail("upload", target, err)
	}

	if err := replaceFile(share, tmp, target); err != nil {
		if errors.Is(err, errTempKept) {
			c.logger.Warn("upload left in temporary file", zap.String("path", tmp), zap.Error(err))
		}
		return c.fail("upload", target, err)
	}

	c.logger.Debug("uploaded file", zap.String("name", item.Name), zap.Int("bytes", len(data)))
	return nil
}

// DownloadFile reads the whole remote file
func (c *Client) DownloadFile(ctx context.Context, item *syncpkg.SyncItem) ([]byte, error) {
	share, err := c.mount(ctx)
	if err != nil {
		return nil, err
	}

	target := c.remotePath(remoteRel(item))
	data, err := share.ReadFile(target)
	if err != nil {
		return nil, c.fail("download", target, err)
	}
	return data, nil
}

// DeleteRemoteFile removes the item. An already absent file is a success.
func (c *Client) DeleteRemoteFile(ctx context.Context, item *syncpkg.SyncItem) error {
	share, err := c.mount(ctx)
	if err != nil {
		return err
	}

	target := c.remotePath(remoteRel(item))
	if err := share.Remove(target); err != nil && !isNotExist(err) {
		return c.fail("delete", target, err)
	}
	return nil
}

// CreateRemoteDirectory creates a directory relative to the sync root. An
// existing directory is a success.
func (c *Client) CreateRemoteDirectory(ctx context.Context, dir string) error {
	share, err := c.mount(ctx)
	if err != nil {
		return err
	}

	target := c.remotePath(dir)
	if err := share.MkdirAll(target, 0755); err != nil {
		return c.fail("mkdir", target, err)
	}
	return nil
}

// GetFileMetadata stats one file relative to the sync root
func (c *Client) GetFileMetadata(ctx context.Context, p string) (*syncpkg.SyncItem, error) {
	share, err := c.mount(ctx)
	if err != nil {
		return nil, err
	}

	target := c.remotePath(p)
	info, err := share.Stat(target)
	if err != nil {
		if isNotExist(err) {
			return nil, syncpkg.SyncErr("get file metadata", fmt.Errorf("%w: %s", syncpkg.ErrNotFound, p))
		}
		return nil, c.fail("stat", target, err)
	}
	if info.IsDir() {
		return nil, syncpkg.SyncErr("get file metadata", fmt.Errorf("%w: %s is a directory", syncpkg.ErrNotFound, p))
	}

	modified := info.ModTime().UTC()
	return &syncpkg.SyncItem{
		ID:             p,
		Name:           info.Name(),
		RemotePath:     p,
		Size:           info.Size(),
		RemoteModified: &modified,
		Hash:           c.hash.Hash(info.Name(), info.Size(), ""),
		Status:         syncpkg.StatusIdle,
		Direction:      syncpkg.DirectionBidirectional,
	}, nil
}

func remoteRel(item *syncpkg.SyncItem) string {
	if item.RemotePath != "" {
		return item.RemotePath
	}
	return item.Name
}
