package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SyncProvider is the capability set every remote backend must satisfy.
// The engine only depends on this interface.
type SyncProvider interface {
	// Name returns the registry name of the backend
	Name() string

	// TestConnection checks reachability and permissions. Protocol quirks are
	// folded into the boolean; an error is only returned for hard failures.
	TestConnection(ctx context.Context) (bool, error)

	// ListRemoteFiles lists the files directly under path ("" is the sync root)
	ListRemoteFiles(ctx context.Context, path string) ([]*SyncItem, error)

	UploadFile(ctx context.Context, item *SyncItem, data []byte) error
	DownloadFile(ctx context.Context, item *SyncItem) ([]byte, error)

	// DeleteRemoteFile succeeds when the file is already absent
	DeleteRemoteFile(ctx context.Context, item *SyncItem) error

	// CreateRemoteDirectory succeeds when the directory already exists
	CreateRemoteDirectory(ctx context.Context, path string) error

	// GetFileMetadata returns the listing entry for path, ErrNotFound (Sync kind) if absent
	GetFileMetadata(ctx context.Context, path string) (*SyncItem, error)

	Close() error
}

// LocalStore is the local snapshot the engine reads from and writes into
type LocalStore interface {
	List(ctx context.Context) ([]*SyncItem, error)
	Read(ctx context.Context, item *SyncItem) ([]byte, error)
	// Write stores data under name and stamps it with modTime
	Write(ctx context.Context, name string, data []byte, modTime time.Time) error
}

// ProviderFactory validates settings and builds a provider from a SyncConfig
type ProviderFactory struct {
	Validate func(settings map[string]string) error
	Build    func(cfg *SyncConfig, logger *zap.Logger) (SyncProvider, error)
}

// Registry maps provider names to their factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// Register adds or replaces a factory
func (r *Registry) Register(name string, f ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Has returns true if name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered provider names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) factory(name string) (ProviderFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return ProviderFactory{}, ValidationError("provider", fmt.Errorf("%w: %q", ErrProviderNotRegistered, name))
	}
	return f, nil
}

// Build validates cfg and constructs its provider
func (r *Registry) Build(cfg *SyncConfig, logger *zap.Logger) (SyncProvider, error) {
	if err := cfg.Validate(r); err != nil {
		return nil, err
	}
	f, err := r.factory(cfg.Provider)
	if err != nil {
		return nil, err
	}
	return f.Build(cfg, logger)
}
