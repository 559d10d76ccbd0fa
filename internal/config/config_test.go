package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
)

const sampleConfig = `
app:
  log_level: debug
sync:
  provider: webdav
  settings:
    url: https://cloud.example.com/remote.php/dav/files/alice
    username: alice
    directory: LifeTracker
  interval_minutes: 15
  auto_sync: true
  conflict_strategy: local_wins
  ignore_patterns: ["*.bak"]
  max_file_size_mb: 10
network:
  timeout_seconds: 5
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "webdav", cfg.Sync.Provider)
	assert.Equal(t, "alice", cfg.Sync.Settings["username"])
	assert.Equal(t, 15, cfg.Sync.IntervalMinutes)
	assert.True(t, cfg.Sync.AutoSync)
	assert.Equal(t, []string{"*.bak"}, cfg.Sync.IgnorePatterns)
	assert.Equal(t, 5*time.Second, cfg.Timeout())

	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Network.MaxRetries)
	assert.Equal(t, 10, cfg.Logging.Rotation.MaxSizeMB)
	assert.Equal(t, "bidirectional", cfg.Sync.Direction)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Sync.IntervalMinutes)
	assert.Equal(t, "manual", cfg.Sync.ConflictStrategy)
	assert.Equal(t, 50, cfg.Sync.MaxFileSizeMB)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, 10*time.Second, cfg.Debounce())
	assert.NotEmpty(t, cfg.Sync.LocalDir)
	assert.NotNil(t, cfg.Sync.Settings)
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load(writeConfig(t, "sync: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("LIFESYNC_SYNC_INTERVAL_MINUTES", "45")
	t.Setenv("LIFESYNC_SYNC_CONFLICT_STRATEGY", "remote_wins")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.Sync.IntervalMinutes)
	assert.Equal(t, "remote_wins", cfg.Sync.ConflictStrategy)
}

func TestExpandPath(t *testing.T) {
	t.Setenv("LIFESYNC_TEST_DIR", "/data")
	assert.Equal(t, "/data/snap", expandPath("${LIFESYNC_TEST_DIR}/snap"))
	assert.Equal(t, "", expandPath(""))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x"), expandPath(filepath.Join("$HOME", "x")))
}

func TestSyncConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	sc := cfg.SyncConfig()
	assert.Equal(t, "webdav", sc.Provider)
	assert.Equal(t, 15, sc.SyncInterval)
	assert.Equal(t, syncpkg.StrategyLocalWins, sc.ConflictStrategy)
	assert.Equal(t, syncpkg.DirectionBidirectional, sc.Direction)
	assert.Equal(t, "https://cloud.example.com/remote.php/dav/files/alice", sc.Settings["url"])
	assert.EqualValues(t, 10*1024*1024, sc.MaxFileSizeBytes())

	// the engine config is a copy
	sc.Settings["url"] = "changed"
	assert.NotEqual(t, "changed", cfg.Sync.Settings["url"])
}

func TestValidateInterval(t *testing.T) {
	tests := []struct {
		minutes int
		wantErr bool
	}{
		{30, false},
		{5, false},
		{4, true},
		{3, true},
		{0, true},
	}

	for _, tt := range tests {
		err := ValidateInterval(tt.minutes)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrIntervalTooShort, "minutes=%d", tt.minutes)
			assert.EqualError(t, err, "sync interval must be at least 5 minutes")
		} else {
			assert.NoError(t, err, "minutes=%d", tt.minutes)
		}
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Set("sync.interval_minutes", 20))
	require.NoError(t, cfg.SetProviderSettings(map[string]string{"url": "https://dav.example.com"}))
	require.NoError(t, cfg.SetProviderSettings(map[string]string{"username": "bob"}))
	assert.Equal(t, "https://dav.example.com", cfg.Sync.Settings["url"])
	assert.Equal(t, 20, cfg.Sync.IntervalMinutes)
	require.NoError(t, cfg.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, reloaded.Sync.IntervalMinutes)
	assert.Equal(t, "https://dav.example.com", reloaded.Sync.Settings["url"])
	assert.Equal(t, "bob", reloaded.Sync.Settings["username"])
	assert.Equal(t, path, reloaded.File())
}
