package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid config")
)

const (
	// CurrentConfigVersion is written by Save.
	CurrentConfigVersion = "1.0.0"
	// SupportedConfigVersions is the range of config_version values Load accepts.
	SupportedConfigVersions = "^1"

	DefaultBindAddress     = "127.0.0.1"
	DefaultPort            = 7338
	DefaultPageSize        = 100
	DefaultWatchDebounceMs = 500

	configDirName  = ".githistory"
	configFileName = "config.yaml"
)

// History backends.
const (
	BackendGoGit = "go-git" // default: read the object store in-process
	BackendGit   = "git"    // shell out to the git binary
)

// Config represents the application configuration.
type Config struct {
	ConfigVersion string         `yaml:"config_version,omitempty"`
	LogLevel      string         `yaml:"log_level,omitempty"`
	Network       *NetworkConfig `yaml:"network,omitempty"`
	History       *HistoryConfig `yaml:"history,omitempty"`
	Watch         *WatchConfig   `yaml:"watch,omitempty"`
	// Workspaces are registered when the daemon starts.
	Workspaces []string `yaml:"workspaces,omitempty"`

	// path is the file path where this config was loaded from or should be saved to.
	path string `yaml:"-"`
}

// NetworkConfig controls server binding.
type NetworkConfig struct {
	BindAddress string `yaml:"bind_address,omitempty"`
	Port        int    `yaml:"port,omitempty"`
}

// HistoryConfig controls how history is read.
type HistoryConfig struct {
	Backend         string `yaml:"backend,omitempty"`
	DefaultPageSize int    `yaml:"default_page_size,omitempty"`
	FetchTimeoutMs  int    `yaml:"fetch_timeout_ms,omitempty"`
}

// WatchConfig controls the .git watcher.
type WatchConfig struct {
	Enabled    *bool `yaml:"enabled,omitempty"` // nil = enabled
	DebounceMs int   `yaml:"debounce_ms,omitempty"`
}

// DefaultPath returns ~/.githistory/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, configDirName, configFileName), nil
}

// Dir returns the directory holding the config file, pid file and logs.
func Dir() (string, error) {
	p, err := DefaultPath()
	if err != nil {
		return "", err
	}
	return filepath.Dir(p), nil
}

// CreateDefault creates a default config with the given config file path.
// The path is stored so that subsequent Save() calls write to the same location.
func CreateDefault(configPath string) *Config {
	return &Config{
		ConfigVersion: CurrentConfigVersion,
		LogLevel:      "info",
		Network:       &NetworkConfig{BindAddress: DefaultBindAddress, Port: DefaultPort},
		History:       &HistoryConfig{Backend: BackendGoGit, DefaultPageSize: DefaultPageSize},
		Watch:         &WatchConfig{DebounceMs: DefaultWatchDebounceMs},
		Workspaces:    []string{},
		path:          configPath,
	}
}

// Load loads the configuration from the specified path.
// The path is stored so that subsequent Save() calls write to the same location.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.path = configPath

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	for i, ws := range cfg.Workspaces {
		cfg.Workspaces[i] = expandHome(ws, homeDir)
	}

	return &cfg, nil
}

func expandHome(p, homeDir string) string {
	if p == "~" {
		return homeDir
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir, p[2:])
	}
	return p
}

// Validate checks the config version and value ranges.
func (c *Config) Validate() error {
	if c.ConfigVersion != "" {
		v, err := semver.NewVersion(c.ConfigVersion)
		if err != nil {
			return fmt.Errorf("%w: config_version %q is not a semantic version", ErrInvalidConfig, c.ConfigVersion)
		}
		constraint, err := semver.NewConstraint(SupportedConfigVersions)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if !constraint.Check(v) {
			return fmt.Errorf("%w: config_version %s is not supported (want %s)", ErrInvalidConfig, c.ConfigVersion, SupportedConfigVersions)
		}
	}
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("%w: log_level %q is not a level", ErrInvalidConfig, c.LogLevel)
		}
	}
	if c.Network != nil && (c.Network.Port < 0 || c.Network.Port > 65535) {
		return fmt.Errorf("%w: network.port must be between 1 and 65535", ErrInvalidConfig)
	}
	if c.History != nil {
		switch c.History.Backend {
		case "", BackendGoGit, BackendGit:
		default:
			return fmt.Errorf("%w: history.backend must be %q or %q", ErrInvalidConfig, BackendGoGit, BackendGit)
		}
		if c.History.DefaultPageSize < 0 {
			return fmt.Errorf("%w: history.default_page_size must be >= 0", ErrInvalidConfig)
		}
		if c.History.FetchTimeoutMs < 0 {
			return fmt.Errorf("%w: history.fetch_timeout_ms must be >= 0", ErrInvalidConfig)
		}
	}
	if c.Watch != nil && c.Watch.DebounceMs < 0 {
		return fmt.Errorf("%w: watch.debounce_ms must be >= 0", ErrInvalidConfig)
	}
	for _, ws := range c.Workspaces {
		if strings.TrimSpace(ws) == "" {
			return fmt.Errorf("%w: workspaces must not contain empty paths", ErrInvalidConfig)
		}
	}
	return nil
}

// Save writes the config to the path it was loaded from or created with.
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("config path not set: use Load() or CreateDefault() with a path")
	}

	c.ConfigVersion = CurrentConfigVersion

	dir := filepath.Dir(c.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to a temporary file first, then rename for atomicity
	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Path returns the file the config is saved to.
func (c *Config) Path() string {
	return c.path
}

// AddWorkspace appends path to the startup workspaces unless present.
// Reports whether the list changed.
func (c *Config) AddWorkspace(path string) bool {
	clean := filepath.Clean(path)
	if slices.Contains(c.Workspaces, clean) {
		return false
	}
	c.Workspaces = append(c.Workspaces, clean)
	return true
}

// GetLogLevel returns the log level. Defaults to "info".
func (c *Config) GetLogLevel() string {
	if c.LogLevel == "" {
		return "info"
	}
	return c.LogLevel
}

// GetBindAddress returns the address to bind the server to.
// Defaults to "127.0.0.1" (localhost only).
func (c *Config) GetBindAddress() string {
	if c.Network == nil || c.Network.BindAddress == "" {
		return DefaultBindAddress
	}
	return c.Network.BindAddress
}

// GetPort returns the server port. Defaults to 7338.
func (c *Config) GetPort() int {
	if c.Network == nil || c.Network.Port <= 0 {
		return DefaultPort
	}
	return c.Network.Port
}

// GetHistoryBackend returns the history backend. Defaults to go-git.
func (c *Config) GetHistoryBackend() string {
	if c.History == nil || c.History.Backend == "" {
		return BackendGoGit
	}
	return c.History.Backend
}

// GetDefaultPageSize returns the page size used when a query has none.
func (c *Config) GetDefaultPageSize() int {
	if c.History == nil || c.History.DefaultPageSize <= 0 {
		return DefaultPageSize
	}
	return c.History.DefaultPageSize
}

// FetchTimeout bounds each history fetch. Zero means unbounded.
func (c *Config) FetchTimeout() time.Duration {
	if c.History == nil || c.History.FetchTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.History.FetchTimeoutMs) * time.Millisecond
}

// GetWatchEnabled returns whether workspaces are watched for changes.
func (c *Config) GetWatchEnabled() bool {
	if c.Watch == nil || c.Watch.Enabled == nil {
		return true
	}
	return *c.Watch.Enabled
}

// WatchDebounce returns how long the watcher waits for changes to settle.
func (c *Config) WatchDebounce() time.Duration {
	if c.Watch == nil || c.Watch.DebounceMs <= 0 {
		return DefaultWatchDebounceMs * time.Millisecond
	}
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}

// GetWorkspaces returns the workspaces registered at startup.
func (c *Config) GetWorkspaces() []string {
	return c.Workspaces
}
