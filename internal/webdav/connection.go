package webdav

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// TestConnection checks the server root, then the sync directory, creating
// it when missing. Status codes are interpreted into a boolean; only a
// cancelled context is returned as an error.
func (c *Client) TestConnection(ctx context.Context) (bool, error) {
	c.logger.Info("testing webdav connection", zap.String("server", c.base.Host))

	code, err := c.propfindStatus(ctx, c.baseURL+"/", "0", propfindResourceType)
	if err != nil {
		return false, c.checkFailed(ctx, "server root", err)
	}
	switch code {
	case http.StatusOK, http.StatusMultiStatus, http.StatusNotFound, http.StatusForbidden:
	case http.StatusUnauthorized:
		c.logger.Warn("webdav authentication failed")
		return false, nil
	default:
		c.logger.Warn("unexpected status from server root", zap.Int("status", code))
		return false, nil
	}

	dir := c.buildRemotePath("")
	code, err = c.propfindStatus(ctx, dir, "1", propfindAllProp)
	if err != nil {
		return false, c.checkFailed(ctx, "sync directory", err)
	}
	switch code {
	case http.StatusOK, http.StatusMultiStatus:
		c.logger.Info("webdav connection ok", zap.String("directory", c.directory))
		return true, nil
	case http.StatusConflict, http.StatusForbidden:
		c.logger.Info("webdav connected with restricted access to sync directory",
			zap.String("directory", c.directory),
			zap.Int("status", code),
		)
		return true, nil
	case http.StatusUnauthorized:
		c.logger.Warn("webdav authentication failed on sync directory")
		return false, nil
	case http.StatusNotFound:
	default:
		c.logger.Warn("unexpected status from sync directory", zap.Int("status", code))
		return false, nil
	}

	c.logger.Info("sync directory missing, creating it", zap.String("directory", c.directory))
	if err := c.CreateRemoteDirectory(ctx, ""); err != nil {
		c.logger.Warn("failed to create sync directory", zap.Error(err))
		return false, ctx.Err()
	}

	// Some servers keep answering 404 right after creation. The MKCOL
	// succeeding is enough.
	code, err = c.propfindStatus(ctx, dir, "1", propfindAllProp)
	if err != nil || code == http.StatusNotFound {
		c.logger.Info("sync directory created but not yet listable", zap.Int("status", code), zap.Error(err))
	}
	return true, nil
}

func (c *Client) propfindStatus(ctx context.Context, target, depth, body string) (int, error) {
	resp, err := c.propfind(ctx, target, depth, body)
	if err != nil {
		return 0, err
	}
	drain(resp)
	return resp.StatusCode, nil
}

func (c *Client) checkFailed(ctx context.Context, stage string, err error) error {
	c.logger.Warn("webdav connection check failed", zap.String("stage", stage), zap.Error(err))
	return ctx.Err()
}
