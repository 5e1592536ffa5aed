package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jamesainslie/hotreload/pkg/reload/logging"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// Logging converts the file settings into a logging.Config.
func (c LoggingConfig) Logging() (logging.Config, error) {
	rot := logging.RotationConfig{
		MaxAge:     c.Rotation.MaxAge,
		MaxBackups: c.Rotation.MaxBackups,
		Daily:      c.Rotation.Daily,
	}
	if c.Rotation.MaxSize != "" {
		n, err := humanize.ParseBytes(c.Rotation.MaxSize)
		if err != nil {
			return logging.Config{}, fmt.Errorf("invalid logging.rotation.max_size %q: %w", c.Rotation.MaxSize, err)
		}
		rot.MaxSize = int64(n)
	}

	return logging.Config{
		Level:      c.Level,
		Path:       c.Path,
		Rotation:   rot,
		Components: c.Components,
	}, nil
}

// CacheConfig configures the content cache snapshot.
type CacheConfig struct {
	Persist bool   `mapstructure:"persist"`
	Path    string `mapstructure:"path"`
}

// DaemonConfig configures `hotreload serve`.
type DaemonConfig struct {
	SocketPath  string `mapstructure:"socket_path"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	PIDPath     string `mapstructure:"pid_path"`
}

// Config represents the application configuration.
type Config struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	Patterns     []string      `mapstructure:"patterns"`
	RemovePolicy string        `mapstructure:"remove_policy"`
	Cache        CacheConfig   `mapstructure:"cache"`
	Logging      LoggingConfig `mapstructure:"logging"`
	Daemon       DaemonConfig  `mapstructure:"daemon"`
}

// SnapshotPath returns the cache snapshot directory, or "" when
// persistence is off.
func (c *Config) SnapshotPath() string {
	if !c.Cache.Persist {
		return ""
	}
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return DefaultSnapshotPath()
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %s", c.Debounce)
	}
	switch c.RemovePolicy {
	case "keep", "drop":
	default:
		return fmt.Errorf("remove_policy must be keep or drop, got %q", c.RemovePolicy)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// New returns a viper instance with search paths, environment binding and
// defaults applied. Callers may bind flags before calling Load.
func New() (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, AppName))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", AppName))

	v.SetEnvPrefix("HOTRELOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("debounce", DefaultDebounce)
	v.SetDefault("patterns", DefaultPatterns)
	v.SetDefault("remove_policy", DefaultRemovePolicy)

	v.SetDefault("cache.persist", false)
	v.SetDefault("cache.path", "") // Empty means use DefaultSnapshotPath

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use logging.DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 14)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"engine":   "info",
		"watcher":  "info",
		"detector": "warn",
		"reloader": "info",
		"daemon":   "info",
		"tui":      "info",
	})

	v.SetDefault("daemon.socket_path", "") // Empty means use DefaultSocketPath
	v.SetDefault("daemon.metrics_addr", DefaultMetricsAddr)
	v.SetDefault("daemon.pid_path", "") // Empty means use DefaultPIDPath

	return v, nil
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/hotreload/config.yaml
//   - $HOME/.config/hotreload/config.yaml
//
// Environment variables are prefixed with HOTRELOAD_ (e.g., HOTRELOAD_DEBOUNCE).
func Load() (*Config, error) {
	v, err := New()
	if err != nil {
		return nil, err
	}
	return LoadFrom(v)
}

// LoadFrom reads the config file into v, if one exists, and decodes it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.Cache.Path, &cfg.Logging.Path, &cfg.Daemon.SocketPath, &cfg.Daemon.PIDPath} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, AppName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", AppName), nil
}

// ConfigPath returns the path of the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# hotreload configuration

# Quiet period after the last filesystem event before a file is re-read
debounce: %s

# Files picked up when a directory is watched
patterns:
  - "*.yaml"
  - "*.yml"

# What to do with a document whose file is deleted: keep or drop
remove_policy: %s

# Persist content hashes across restarts so unchanged files stay quiet
cache:
  persist: false
  # Snapshot directory (empty means use default: %s)
  path: ""

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: %s)
  path: ""
  rotation:
    max_size: 10MB
    max_age: 14       # days
    max_backups: 5
    daily: true
  # Per-component log levels
  components:
    engine: info
    watcher: info
    detector: warn
    reloader: info
    daemon: info
    tui: info

# Diagnostics server (hotreload serve)
daemon:
  # Unix socket for gRPC health (empty means use default: %s)
  socket_path: ""
  # HTTP address for /metrics, /state and /healthz
  metrics_addr: %s
  # PID file path (empty means use default: %s)
  pid_path: ""
`, DefaultDebounce, DefaultRemovePolicy, DefaultSnapshotPath(), logging.DefaultLogPath(),
		DefaultSocketPath(), DefaultMetricsAddr, DefaultPIDPath())

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/hotreload/ for the snapshot, socket and pid files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// StateDir returns $XDG_STATE_HOME/hotreload/ for log and status files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// DefaultSocketPath returns the default Unix socket path.
func DefaultSocketPath() string {
	return filepath.Join(DataDir(), "hotreload.sock")
}

// DefaultPIDPath returns the default PID file path.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), "hotreload.pid")
}

// DefaultSnapshotPath returns the default cache snapshot directory.
func DefaultSnapshotPath() string {
	return filepath.Join(DataDir(), "snapshot")
}

// DefaultStatusPath returns the default daemon status file path.
func DefaultStatusPath() string {
	return filepath.Join(StateDir(), "status.json")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}
