// Package webdav implements the WebDAV sync provider.
package webdav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
	"go.uber.org/zap"
)

const (
	// ProviderName is the registry name of this backend
	ProviderName = "webdav"

	// DefaultDirectory is the sync root created under the server URL
	DefaultDirectory = "LifeTracker"

	// DefaultTimeout bounds every request
	DefaultTimeout = 30 * time.Second

	// PasswordService is the label encrypted passwords are bound to
	PasswordService = "lifetracker-webdav"
)

// Decrypter turns a stored password blob back into plaintext
type Decrypter interface {
	Decrypt(service, blob string) (string, error)
}

// Options tune a Client beyond its SyncConfig
type Options struct {
	Timeout      time.Duration
	HTTPClient   *http.Client
	HashStrategy syncpkg.HashStrategy
}

// Client speaks WebDAV to one server and one flat sync directory
type Client struct {
	baseURL   string // trailing slash stripped
	base      *url.URL
	directory string

	username string
	password string

	httpClient *http.Client
	hash       syncpkg.HashStrategy

	mu      sync.Mutex
	ensured map[string]bool // directories known to exist

	logger *zap.Logger
}

// ValidateSettings checks the settings map before any network call. The
// directory is required here even though NewClient falls back to
// DefaultDirectory; the config layer always writes one.
func ValidateSettings(settings map[string]string) error {
	if err := syncpkg.RequireSettings(settings, "url", "username", "password", "directory"); err != nil {
		return err
	}
	u := settings["url"]
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return syncpkg.ValidationError("url", fmt.Errorf("%w: %q", syncpkg.ErrInvalidURL, u))
	}
	if _, err := url.Parse(u); err != nil {
		return syncpkg.ValidationError("url", err)
	}
	return nil
}

// Factory registers the WebDAV backend. dec may be nil when passwords are stored in plaintext.
func Factory(dec Decrypter, opts *Options) syncpkg.ProviderFactory {
	return syncpkg.ProviderFactory{
		Validate: ValidateSettings,
		Build: func(cfg *syncpkg.SyncConfig, logger *zap.Logger) (syncpkg.SyncProvider, error) {
			return NewClient(cfg, dec, logger, opts)
		},
	}
}

// NewClient builds a client from a webdav SyncConfig. A password that looks
// encrypted is decrypted through dec; if that fails the value is used as is.
func NewClient(cfg *syncpkg.SyncConfig, dec Decrypter, logger *zap.Logger, opts *Options) (*Client, error) {
	if cfg == nil {
		return nil, syncpkg.SyncErr("new webdav client", fmt.Errorf("config cannot be nil"))
	}
	if cfg.Provider != ProviderName {
		return nil, syncpkg.SyncErr("new webdav client", fmt.Errorf("provider is %q, not %q", cfg.Provider, ProviderName))
	}
	for _, key := range []string{"url", "username", "password"} {
		if cfg.Settings[key] == "" {
			return nil, syncpkg.SyncErr("new webdav client", fmt.Errorf("%w: %s", syncpkg.ErrMissingSetting, key))
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts == nil {
		opts = &Options{}
	}
	logger = logger.With(zap.String("component", "webdav"))

	baseURL := strings.TrimRight(cfg.Settings["url"], "/")
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, syncpkg.SyncErr("new webdav client", fmt.Errorf("%w: %q", syncpkg.ErrInvalidURL, cfg.Settings["url"]))
	}

	password := cfg.Settings["password"]
	if looksEncrypted(password) && dec != nil {
		plain, err := dec.Decrypt(PasswordService, password)
		if err != nil {
			logger.Warn("password decryption failed, using stored value as plaintext", zap.Error(err))
		} else {
			password = plain
		}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	hash := opts.HashStrategy
	if hash == nil {
		hash = syncpkg.NameSizeHash{}
	}

	directory := strings.Trim(cfg.Setting("directory", DefaultDirectory), "/")
	if directory == "" {
		directory = DefaultDirectory
	}

	logger.Debug("webdav client created",
		zap.String("server", base.Host),
		zap.String("directory", directory),
	)

	return &Client{
		baseURL:    baseURL,
		base:       base,
		directory:  directory,
		username:   cfg.Settings["username"],
		password:   password,
		httpClient: httpClient,
		hash:       hash,
		ensured:    make(map[string]bool),
		logger:     logger,
	}, nil
}

// looksEncrypted matches the JSON blobs the credential store produces
func looksEncrypted(s string) bool {
	return strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{")
}

// Name implements syncpkg.SyncProvider
func (c *Client) Name() string { return ProviderName }

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// buildRemotePath joins base URL, sync directory and path. An empty path is
// the directory itself; a leading slash is appended without a separator.
func (c *Client) buildRemotePath(p string) string {
	root := c.baseURL + "/" + escapePath(c.directory)
	switch {
	case p == "":
		return root
	case strings.HasPrefix(p, "/"):
		return root + escapePath(p)
	default:
		return root + "/" + escapePath(p)
	}
}

// buildFullURL resolves a path as returned in listings. Full URLs pass
// through, absolute hrefs go straight onto scheme://host, anything else is
// relative to the sync directory.
func (c *Client) buildFullURL(p string) string {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	if c.isAbsoluteHref(p) {
		return c.base.Scheme + "://" + c.base.Host + p
	}
	return c.buildRemotePath(p)
}

func (c *Client) isAbsoluteHref(p string) bool {
	if strings.HasPrefix(p, "/dav/") {
		return true
	}
	basePath := strings.TrimRight(c.base.Path, "/")
	return basePath != "" && strings.HasPrefix(p, basePath+"/")
}

// escapePath escapes each segment, keeping the slashes
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// do sends an authenticated request. Transport failures are Network errors.
func (c *Client) do(ctx context.Context, method, target string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, syncpkg.NetworkError(method, target, err)
	}
	req.SetBasicAuth(c.username, c.password)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, syncpkg.NetworkError(method, req.URL.Path, err)
	}

	c.logger.Debug("webdav request",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// drain discards and closes a response body so the connection can be reused
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
