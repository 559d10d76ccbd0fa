package sync

import (
	"fmt"

	"github.com/juste-un-gars/lifetracker_sync/internal/exclude"
)

// ConflictStrategy is the configured policy for pairs changed on both sides
type ConflictStrategy string

const (
	// StrategyLocalWins uploads the local copy over the remote one
	StrategyLocalWins ConflictStrategy = "local_wins"
	// StrategyRemoteWins downloads the remote copy over the local one
	StrategyRemoteWins ConflictStrategy = "remote_wins"
	// StrategyKeepBoth saves the remote copy under a suffixed name, then uploads local
	StrategyKeepBoth ConflictStrategy = "keep_both"
	// StrategyManual surfaces a ConflictItem and transfers nothing
	StrategyManual ConflictStrategy = "manual"
)

// IsValid returns true for a known strategy
func (s ConflictStrategy) IsValid() bool {
	switch s {
	case StrategyLocalWins, StrategyRemoteWins, StrategyKeepBoth, StrategyManual:
		return true
	}
	return false
}

// SyncConfig is the sync policy for one remote
type SyncConfig struct {
	Provider string
	// Settings holds provider keys (url, username, password, directory for webdav)
	Settings map[string]string

	// SyncInterval is in minutes. Bounds are enforced by the caller.
	SyncInterval     int
	AutoSync         bool
	ConflictStrategy ConflictStrategy
	IgnorePatterns   []string
	// MaxFileSizeMB skips larger files, 0 disables the limit
	MaxFileSizeMB int
	// Compression is stored and reported; transfers are always whole-file
	Compression bool
	Direction   SyncDirection
}

// Setting returns a setting value, or def when unset or empty
func (c *SyncConfig) Setting(key, def string) string {
	if v, ok := c.Settings[key]; ok && v != "" {
		return v
	}
	return def
}

// MaxFileSizeBytes returns the size limit in bytes, 0 when unlimited
func (c *SyncConfig) MaxFileSizeBytes() int64 {
	if c.MaxFileSizeMB <= 0 {
		return 0
	}
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// Validate checks the config shape before any I/O: the provider must be
// registered and its settings accepted by the provider factory.
func (c *SyncConfig) Validate(reg *Registry) error {
	if c.Provider == "" {
		return ValidationError("provider", fmt.Errorf("provider cannot be empty"))
	}
	if reg != nil {
		f, err := reg.factory(c.Provider)
		if err != nil {
			return err
		}
		if f.Validate != nil {
			if err := f.Validate(c.Settings); err != nil {
				return err
			}
		}
	}

	if c.ConflictStrategy != "" && !c.ConflictStrategy.IsValid() {
		return ValidationError("conflict_strategy", fmt.Errorf("%w: %q", ErrInvalidStrategy, c.ConflictStrategy))
	}
	if c.Direction != "" && !c.Direction.IsValid() {
		return ValidationError("direction", fmt.Errorf("%w: %q", ErrInvalidDirection, c.Direction))
	}
	if c.MaxFileSizeMB < 0 {
		return ValidationError("max_file_size_mb", fmt.Errorf("cannot be negative: %d", c.MaxFileSizeMB))
	}
	if err := exclude.Validate(c.IgnorePatterns); err != nil {
		return ValidationError("ignore_patterns", err)
	}
	return nil
}

// RequireSettings returns a Validation error naming the first missing key
func RequireSettings(settings map[string]string, keys ...string) error {
	for _, k := range keys {
		if settings[k] == "" {
			return ValidationError("settings", fmt.Errorf("%w: %s", ErrMissingSetting, k))
		}
	}
	return nil
}
