// Package config loads and validates the sync engine configuration. It
// supports YAML configuration files and provides sensible defaults while
// allowing customization per deployment.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the sync engine.
type Config struct {
	Cache        CacheConfig        `yaml:"cache"`
	Sync         SyncConfig         `yaml:"sync"`
	Store        StoreConfig        `yaml:"store"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	LogLevel     string             `yaml:"log_level"`
}

// CacheConfig tunes the in-memory read cache.
type CacheConfig struct {
	// FreshnessShort applies to volatile reads such as daily totals.
	FreshnessShort time.Duration `yaml:"freshness_short"`
	// FreshnessMedium applies to the common list reads.
	FreshnessMedium time.Duration `yaml:"freshness_medium"`
	// FreshnessLong applies to slow-moving aggregates.
	FreshnessLong time.Duration `yaml:"freshness_long"`
}

// SyncConfig tunes request coalescing and queue replay.
type SyncConfig struct {
	// WaitTimeout bounds how long a caller waits on another caller's
	// in-flight fetch before falling back to local data.
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

// StoreConfig configures the durable local store.
type StoreConfig struct {
	// Path to the SQLite database file. ":memory:" keeps everything
	// in-process, which is useful for tests and demos.
	Path string `yaml:"path"`
}

// GatewayConfig configures the remote HTTP gateway.
type GatewayConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token,omitempty"`
	UserID  string        `yaml:"user_id,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
}

// ConnectivityConfig configures the reachability probe.
type ConnectivityConfig struct {
	// Address dialed to decide whether the device is online. Empty disables
	// the probe; connectivity is then driven manually.
	Address     string        `yaml:"address,omitempty"`
	Interval    time.Duration `yaml:"interval"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Default configuration values.
const (
	DefaultFreshnessShort  = 2 * time.Minute
	DefaultFreshnessMedium = 5 * time.Minute
	DefaultFreshnessLong   = 15 * time.Minute
	DefaultWaitTimeout     = 5 * time.Second
	DefaultGatewayTimeout  = 10 * time.Second
	DefaultProbeInterval   = 15 * time.Second
	DefaultDialTimeout     = 2 * time.Second
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			FreshnessShort:  DefaultFreshnessShort,
			FreshnessMedium: DefaultFreshnessMedium,
			FreshnessLong:   DefaultFreshnessLong,
		},
		Sync: SyncConfig{
			WaitTimeout: DefaultWaitTimeout,
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		Gateway: GatewayConfig{
			Timeout: DefaultGatewayTimeout,
		},
		Connectivity: ConnectivityConfig{
			Interval:    DefaultProbeInterval,
			DialTimeout: DefaultDialTimeout,
		},
		LogLevel: "info",
	}
}

// Load loads configuration from a file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("opening config file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	return LoadFromReader(file)
}

// LoadFromReader loads configuration from an io.Reader.
func LoadFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading config data: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.Cache.FreshnessShort < 0 || c.Cache.FreshnessMedium < 0 || c.Cache.FreshnessLong < 0 {
		return fmt.Errorf("cache freshness windows must not be negative")
	}
	if c.Sync.WaitTimeout <= 0 {
		return fmt.Errorf("sync wait_timeout must be positive")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	if c.Gateway.BaseURL != "" {
		u, err := url.Parse(c.Gateway.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("gateway base_url %q must be an absolute url", c.Gateway.BaseURL)
		}
	}
	if c.Gateway.Timeout < 0 {
		return fmt.Errorf("gateway timeout must not be negative")
	}
	if c.Connectivity.Interval < 0 || c.Connectivity.DialTimeout < 0 {
		return fmt.Errorf("connectivity intervals must not be negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Cache.FreshnessShort == 0 {
		c.Cache.FreshnessShort = defaults.Cache.FreshnessShort
	}
	if c.Cache.FreshnessMedium == 0 {
		c.Cache.FreshnessMedium = defaults.Cache.FreshnessMedium
	}
	if c.Cache.FreshnessLong == 0 {
		c.Cache.FreshnessLong = defaults.Cache.FreshnessLong
	}
	if c.Sync.WaitTimeout == 0 {
		c.Sync.WaitTimeout = defaults.Sync.WaitTimeout
	}
	if c.Store.Path == "" {
		c.Store.Path = defaults.Store.Path
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = defaults.Gateway.Timeout
	}
	if c.Connectivity.Interval == 0 {
		c.Connectivity.Interval = defaults.Connectivity.Interval
	}
	if c.Connectivity.DialTimeout == 0 {
		c.Connectivity.DialTimeout = defaults.Connectivity.DialTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
}

func defaultStorePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "offline-sync", "sync.db")
}
