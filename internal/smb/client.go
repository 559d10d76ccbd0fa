// Package smb implements the SMB sync provider over one flat directory of a share.
package smb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hirochachacha/go-smb2"
	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
	"go.uber.org/zap"
)

const (
	// ProviderName is the registry name of this backend
	ProviderName = "smb"

	// DefaultPort is the standard SMB port
	DefaultPort = 445

	// DefaultDirectory is the sync root inside the share
	DefaultDirectory = "LifeTracker"

	// PasswordService is the label encrypted passwords are bound to
	PasswordService = "lifetracker-smb"

	// UploadTempSuffix marks partial uploads; the default ignore patterns skip it
	UploadTempSuffix = ".lifesync-tmp"

	defaultDialTimeout = 30 * time.Second
)

// Decrypter turns a stored password blob back into plaintext
type Decrypter interface {
	Decrypt(service, blob string) (string, error)
}

// Client is an SMB share seen as a SyncProvider. The session is opened on
// first use and dropped after a transport failure.
type Client struct {
	server    string
	share     string
	port      int
	directory string

	username string
	password string
	domain   string

	dialTimeout time.Duration
	hash        syncpkg.HashStrategy

	mu      sync.Mutex
	conn    net.Conn
	session *smb2.Session
	fs      *smb2.Share

	logger *zap.Logger
}

// ValidateSettings checks the settings map before any network call
func ValidateSettings(settings map[string]string) error {
	if err := syncpkg.RequireSettings(settings, "host", "share", "username"); err != nil {
		return err
	}
	if p := settings["port"]; p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return syncpkg.ValidationError("port", fmt.Errorf("invalid port %q", p))
		}
	}
	if strings.ContainsAny(settings["share"], `/\`) {
		return syncpkg.ValidationError("share", fmt.Errorf("share must be a bare name, got %q", settings["share"]))
	}
	return nil
}

// Factory registers the SMB backend. hash may be nil for the name+size default.
func Factory(dec Decrypter, hash syncpkg.HashStrategy) syncpkg.ProviderFactory {
	return syncpkg.ProviderFactory{
		Validate: ValidateSettings,
		Build: func(cfg *syncpkg.SyncConfig, logger *zap.Logger) (syncpkg.SyncProvider, error) {
			c, err := NewClient(cfg, dec, logger)
			if err != nil {
				return nil, err
			}
			c.SetHashStrategy(hash)
			return c, nil
		},
	}
}

// NewClient creates a client from an smb SyncConfig. No connection is made.
func NewClient(cfg *syncpkg.SyncConfig, dec Decrypter, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, syncpkg.SyncErr("new smb client", fmt.Errorf("config cannot be nil"))
	}
	if err := ValidateSettings(cfg.Settings); err != nil {
		return nil, syncpkg.SyncErr("new smb client", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "smb"))

	port := DefaultPort
	if p := cfg.Settings["port"]; p != "" {
		port, _ = strconv.Atoi(p)
	}

	password := cfg.Settings["password"]
	if dec != nil && (strings.HasPrefix(password, "{") || strings.HasPrefix(password, "[")) {
		plain, err := dec.Decrypt(PasswordService, password)
		if err != nil {
			logger.Warn("password decryption failed, using stored value as plaintext", zap.Error(err))
		} else {
			password = plain
		}
	}

	directory := strings.Trim(cfg.Setting("directory", DefaultDirectory), `/\`)
	if directory == "" {
		directory = DefaultDirectory
	}

	return &Client{
		server:      cfg.Settings["host"],
		share:       cfg.Settings["share"],
		port:        port,
		directory:   directory,
		username:    cfg.Settings["username"],
		password:    password,
		domain:      cfg.Settings["domain"],
		dialTimeout: defaultDialTimeout,
		hash:        syncpkg.NameSizeHash{},
		logger:      logger,
	}, nil
}

// Name implements syncpkg.SyncProvider
func (c *Client) Name() string { return ProviderName }

// SetHashStrategy replaces the default name+size hash
func (c *Client) SetHashStrategy(h syncpkg.HashStrategy) {
	if h != nil {
		c.hash = h
	}
}

// mount returns the share bound to ctx, connecting when needed
func (c *Client) mount(ctx context.Context) (*smb2.Share, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fs != nil {
		return c.fs.WithContext(ctx), nil
	}

	addr := net.JoinHostPort(c.server, strconv.Itoa(c.port))
	c.logger.Info("connecting to SMB server",
		zap.String("server", c.server),
		zap.String("share", c.share),
		zap.Int("port", c.port))

	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, syncpkg.NetworkError("connect", addr, err)
	}

	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     c.username,
			Password: c.password,
			Domain:   c.domain,
		},
	}
	session, err := dialer.DialContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, syncpkg.NetworkError("session", addr, err)
	}

	fs, err := session.Mount(c.share)
	if err != nil {
		session.Logoff()
		conn.Close()
		return nil, syncpkg.NetworkError("mount", c.share, err)
	}

	c.conn, c.session, c.fs = conn, session, fs
	c.logger.Info("connected to SMB server", zap.String("server", c.server))
	return fs.WithContext(ctx), nil
}

// Close unmounts the share and closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
	return nil
}

func (c *Client) disconnectLocked() {
	if c.fs == nil && c.session == nil && c.conn == nil {
		return
	}
	if c.fs != nil {
		if err := c.fs.Umount(); err != nil {
			c.logger.Debug("failed to unmount share", zap.Error(err))
		}
		c.fs = nil
	}
	if c.session != nil {
		if err := c.session.Logoff(); err != nil {
			c.logger.Debug("failed to logoff session", zap.Error(err))
		}
		c.session = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.logger.Info("disconnected from SMB server")
}

// fail wraps err as a Network error and drops the session when the
// transport itself broke, so the next call reconnects.
func (c *Client) fail(op, p string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		c.mu.Lock()
		c.disconnectLocked()
		c.mu.Unlock()
	}
	return syncpkg.NetworkError(op, p, err)
}

// remotePath maps a path relative to the sync directory onto the share
func (c *Client) remotePath(rel string) string {
	rel = strings.ReplaceAll(rel, `\`, "/")
	return path.Join(c.directory, strings.TrimPrefix(rel, "/"))
}
