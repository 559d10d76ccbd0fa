package webdav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
	"go.uber.org/zap"
)

// propfind issues a PROPFIND and returns the response; the caller owns the body
func (c *Client) propfind(ctx context.Context, target, depth, body string) (*http.Response, error) {
	return c.do(ctx, "PROPFIND", target, strings.NewReader(body), map[string]string{
		"Depth":        depth,
		"Content-Type": "application/xml",
	})
}

// ListRemoteFiles lists the files of a directory relative to the sync root
func (c *Client) ListRemoteFiles(ctx context.Context, dir string) ([]*syncpkg.SyncItem, error) {
	target := c.buildRemotePath(dir)
	resp, err := c.propfind(ctx, target, "1", propfindAllProp)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	// a sync directory that does not exist yet is empty; the first PUT creates it
	if resp.StatusCode == http.StatusNotFound && strings.Trim(dir, "/") == "" {
		c.logger.Info("sync directory missing, treating it as empty",
			zap.String("path", resp.Request.URL.Path),
		)
		return []*syncpkg.SyncItem{}, nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultiStatus {
		return nil, syncpkg.StatusError("PROPFIND", resp.Request.URL.Path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, syncpkg.NetworkError("PROPFIND", resp.Request.URL.Path, err)
	}

	items, err := parseMultistatus(body, c.hash)
	if err != nil {
		return nil, syncpkg.NetworkError("PROPFIND", resp.Request.URL.Path, err)
	}

	c.logger.Debug("listed remote directory",
		zap.String("path", resp.Request.URL.Path),
		zap.Int("files", len(items)),
	)
	return items, nil
}

// UploadFile PUTs data at the item's remote path, creating the parent first
func (c *Client) UploadFile(ctx context.Context, item *syncpkg.SyncItem, data []byte) error {
	target := c.buildFullURL(remotePathOf(item))
	c.ensureParent(ctx, target)

	resp, err := c.do(ctx, http.MethodPut, target, bytes.NewReader(data), nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		c.logger.Debug("uploaded file",
			zap.String("name", item.Name),
			zap.Int("bytes", len(data)),
		)
		return nil
	}
	return syncpkg.StatusError("PUT", resp.Request.URL.Path, resp.StatusCode)
}

// ensureParent MKCOLs the parent of target once per client. Failures are
// left for the PUT to report.
func (c *Client) ensureParent(ctx context.Context, target string) {
	idx := strings.LastIndex(target, "/")
	if idx <= 0 {
		return
	}
	parent := target[:idx]

	c.mu.Lock()
	known := c.ensured[parent]
	c.mu.Unlock()
	if known {
		return
	}

	if err := c.mkcol(ctx, parent); err != nil {
		c.logger.Debug("parent directory not created", zap.String("url", parent), zap.Error(err))
		return
	}

	c.mu.Lock()
	c.ensured[parent] = true
	c.mu.Unlock()
}

// DownloadFile GETs the item's remote path
func (c *Client) DownloadFile(ctx context.Context, item *syncpkg.SyncItem) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, c.buildFullURL(remotePathOf(item)), nil, nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, syncpkg.StatusError("GET", resp.Request.URL.Path, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, syncpkg.NetworkError("GET", resp.Request.URL.Path, err)
	}
	return data, nil
}

// DeleteRemoteFile removes the item. An already absent file is a success.
func (c *Client) DeleteRemoteFile(ctx context.Context, item *syncpkg.SyncItem) error {
	resp, err := c.do(ctx, http.MethodDelete, c.buildFullURL(remotePathOf(item)), nil, nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return syncpkg.StatusError("DELETE", resp.Request.URL.Path, resp.StatusCode)
}

// CreateRemoteDirectory MKCOLs a directory relative to the sync root
func (c *Client) CreateRemoteDirectory(ctx context.Context, dir string) error {
	target := c.buildRemotePath(dir)
	if err := c.mkcol(ctx, target); err != nil {
		return err
	}
	c.mu.Lock()
	c.ensured[target] = true
	c.mu.Unlock()
	return nil
}

// mkcol treats 405 as "already exists"; 409 and 403 fail
func (c *Client) mkcol(ctx context.Context, target string) error {
	resp, err := c.do(ctx, "MKCOL", target, nil, nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusMethodNotAllowed:
		return nil
	}
	return syncpkg.StatusError("MKCOL", resp.Request.URL.Path, resp.StatusCode)
}

// GetFileMetadata finds one file by listing its parent directory
func (c *Client) GetFileMetadata(ctx context.Context, p string) (*syncpkg.SyncItem, error) {
	p = strings.Trim(p, "/")
	dir, name := path.Split(p)
	dir = strings.TrimRight(dir, "/")

	items, err := c.ListRemoteFiles(ctx, dir)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.Name == name {
			return it, nil
		}
	}
	return nil, syncpkg.SyncErr("get file metadata", fmt.Errorf("%w: %s", syncpkg.ErrNotFound, p))
}

// remotePathOf falls back to the display name for items never listed remotely
func remotePathOf(item *syncpkg.SyncItem) string {
	if item.RemotePath != "" {
		return item.RemotePath
	}
	return item.Name
}
