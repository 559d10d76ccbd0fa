package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
)

// MinSyncInterval is the shortest interval, in minutes, the command layer accepts
const MinSyncInterval = 5

// ErrIntervalTooShort is returned by ValidateInterval
var ErrIntervalTooShort = errors.New("sync interval must be at least 5 minutes")

// Config is the application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Network  NetworkConfig  `mapstructure:"network"`

	v *viper.Viper
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type PathsConfig struct {
	ConfigDir string `mapstructure:"config_dir"`
	LogDir    string `mapstructure:"log_dir"`
}

type LoggingConfig struct {
	Rotation LogRotationConfig `mapstructure:"rotation"`
	Levels   LogLevelsConfig   `mapstructure:"levels"`
}

type LogRotationConfig struct {
	MaxSizeMB int  `mapstructure:"max_size_mb"`
	MaxFiles  int  `mapstructure:"max_files"`
	Compress  bool `mapstructure:"compress"`
}

type LogLevelsConfig struct {
	Console string `mapstructure:"console"`
	File    string `mapstructure:"file"`
}

type SyncConfig struct {
	Provider         string            `mapstructure:"provider"`
	Settings         map[string]string `mapstructure:"settings"`
	IntervalMinutes  int               `mapstructure:"interval_minutes"`
	AutoSync         bool              `mapstructure:"auto_sync"`
	ConflictStrategy string            `mapstructure:"conflict_strategy"`
	IgnorePatterns   []string          `mapstructure:"ignore_patterns"`
	MaxFileSizeMB    int               `mapstructure:"max_file_size_mb"`
	Compression      bool              `mapstructure:"compression"`
	Direction        string            `mapstructure:"direction"`
	HashStrategy     string            `mapstructure:"hash_strategy"`
	LocalDir         string            `mapstructure:"local_dir"`
	DebounceSeconds  int               `mapstructure:"debounce_seconds"`
}

type NetworkConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxRetries     int `mapstructure:"max_retries"`
}

// Load reads the configuration from configPath, or from the standard
// locations when configPath is empty. A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath(getDefaultConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configPath != "" && os.IsNotExist(err)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	setDefaults(v)

	v.SetEnvPrefix("LIFESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{v: v}
	if err := cfg.decode(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode refreshes the fields from viper into a fresh struct, so removed
// map entries and shortened lists do not linger
func (c *Config) decode() error {
	fresh := Config{v: c.v}
	if err := c.v.Unmarshal(&fresh); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	fresh.Paths.ConfigDir = expandPath(fresh.Paths.ConfigDir)
	fresh.Paths.LogDir = expandPath(fresh.Paths.LogDir)
	fresh.Database.Path = expandPath(fresh.Database.Path)
	fresh.Sync.LocalDir = expandPath(fresh.Sync.LocalDir)
	if fresh.Sync.Settings == nil {
		fresh.Sync.Settings = make(map[string]string)
	}
	*c = fresh
	return nil
}

// Set changes one key and refreshes the decoded fields
func (c *Config) Set(key string, value any) error {
	c.v.Set(key, value)
	return c.decode()
}

// SetProviderSettings merges values into the provider settings, e.g. the webdav url
func (c *Config) SetProviderSettings(values map[string]string) error {
	settings := make(map[string]any, len(c.Sync.Settings)+len(values))
	for k, v := range c.Sync.Settings {
		settings[k] = v
	}
	for k, v := range values {
		settings[k] = v
	}
	return c.Set("sync.settings", settings)
}

// Save writes the configuration to the file it was read from, or to
// config.yaml in the config directory
func (c *Config) Save() error {
	path := c.v.ConfigFileUsed()
	if path == "" {
		path = filepath.Join(c.Paths.ConfigDir, "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := c.v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	c.v.SetConfigFile(path)
	return nil
}

// File returns the path of the loaded config file, empty when defaults are used
func (c *Config) File() string {
	return c.v.ConfigFileUsed()
}

// AllSettings returns the effective configuration as a nested map
func (c *Config) AllSettings() map[string]any {
	return c.v.AllSettings()
}

// SyncConfig builds the engine configuration. It does not validate.
func (c *Config) SyncConfig() *syncpkg.SyncConfig {
	settings := make(map[string]string, len(c.Sync.Settings))
	for k, v := range c.Sync.Settings {
		settings[k] = v
	}

	patterns := make([]string, len(c.Sync.IgnorePatterns))
	copy(patterns, c.Sync.IgnorePatterns)

	return &syncpkg.SyncConfig{
		Provider:         c.Sync.Provider,
		Settings:         settings,
		SyncInterval:     c.Sync.IntervalMinutes,
		AutoSync:         c.Sync.AutoSync,
		ConflictStrategy: syncpkg.ConflictStrategy(c.Sync.ConflictStrategy),
		IgnorePatterns:   patterns,
		MaxFileSizeMB:    c.Sync.MaxFileSizeMB,
		Compression:      c.Sync.Compression,
		Direction:        syncpkg.SyncDirection(c.Sync.Direction),
	}
}

// Timeout returns the network timeout
func (c *Config) Timeout() time.Duration {
	if c.Network.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Network.TimeoutSeconds) * time.Second
}

// Debounce returns the delay between a local change and the triggered pass
func (c *Config) Debounce() time.Duration {
	if c.Sync.DebounceSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Sync.DebounceSeconds) * time.Second
}

// ValidateInterval enforces the minimum interval accepted from users
func ValidateInterval(minutes int) error {
	if minutes < MinSyncInterval {
		return ErrIntervalTooShort
	}
	return nil
}

// getDefaultConfigDir returns the per-OS configuration directory
func getDefaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "LifeTracker")
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "LifeTracker")
	default:
		return filepath.Join(os.Getenv("HOME"), ".config", "lifetracker")
	}
}

// expandPath replaces ${HOME} and other variables in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	home, _ := os.UserHomeDir()
	return os.Expand(path, func(key string) string {
		switch key {
		case "HOME":
			return home
		default:
			return os.Getenv(key)
		}
	})
}

func setDefaults(v *viper.Viper) {
	dir := getDefaultConfigDir()

	v.SetDefault("app.name", "LifeTracker Sync")
	v.SetDefault("app.version", "0.1.0-dev")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.path", filepath.Join(dir, "lifesync.db"))

	v.SetDefault("paths.config_dir", dir)
	v.SetDefault("paths.log_dir", filepath.Join(dir, "logs"))

	v.SetDefault("logging.rotation.max_size_mb", 10)
	v.SetDefault("logging.rotation.max_files", 5)
	v.SetDefault("logging.rotation.compress", true)
	v.SetDefault("logging.levels.console", "info")
	v.SetDefault("logging.levels.file", "debug")

	v.SetDefault("sync.provider", "webdav")
	v.SetDefault("sync.interval_minutes", 30)
	v.SetDefault("sync.auto_sync", false)
	v.SetDefault("sync.conflict_strategy", string(syncpkg.StrategyManual))
	v.SetDefault("sync.ignore_patterns", []string{"*.tmp", "*.lifesync-tmp", ".DS_Store"})
	v.SetDefault("sync.max_file_size_mb", 50)
	v.SetDefault("sync.compression", false)
	v.SetDefault("sync.direction", string(syncpkg.DirectionBidirectional))
	v.SetDefault("sync.hash_strategy", "name_size")
	v.SetDefault("sync.local_dir", filepath.Join(dir, "snapshot"))
	v.SetDefault("sync.debounce_seconds", 10)

	v.SetDefault("network.timeout_seconds", 30)
	v.SetDefault("network.max_retries", 3)
}
