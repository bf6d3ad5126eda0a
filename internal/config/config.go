package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	// Card catalog API configuration
	Catalog CatalogConfig `toml:"catalog"`

	// Remote collection store configuration
	Store StoreConfig `toml:"store"`

	// Local cache configuration
	Cache CacheConfig `toml:"cache"`

	// Synchronization configuration
	Sync SyncConfig `toml:"sync"`

	// Application configuration
	App AppConfig `toml:"app"`
}

// CatalogConfig contains card catalog API settings.
type CatalogConfig struct {
	BaseURL string `toml:"base_url"` // Catalog API base URL (blank = default)
	APIKey  string `toml:"api_key"`  // Optional X-Api-Key for higher rate limits
}

// StoreConfig contains remote collection store settings.
type StoreConfig struct {
	BaseURL   string `toml:"base_url"`   // Collection API base URL
	AuthToken string `toml:"auth_token"` // Bearer token for the session
	UserID    int64  `toml:"user_id"`    // Account whose collections to mirror
	Timeout   string `toml:"timeout"`    // Per-request timeout (e.g., "10s")

	// ActiveCollection is the collection mutations apply to (0 = pick the
	// first collection the store returns).
	ActiveCollection int64 `toml:"active_collection"`
}

// CacheConfig contains local card metadata cache settings.
type CacheConfig struct {
	DBPath string `toml:"db_path"` // SQLite path (blank = default under config dir)
}

// SyncConfig contains index synchronization settings.
type SyncConfig struct {
	RefreshInterval string `toml:"refresh_interval"` // Periodic refresh interval (e.g., "5m")
	PendingGrace    string `toml:"pending_grace"`    // Dedup marker grace period (e.g., "500ms")
}

// AppConfig contains general application settings.
type AppConfig struct {
	DebugMode bool `toml:"debug_mode"` // Enable debug logging
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			BaseURL: "",
			APIKey:  "",
		},
		Store: StoreConfig{
			BaseURL: "http://localhost:8080/api",
			UserID:  1,
			Timeout: "10s",
		},
		Cache: CacheConfig{
			DBPath: "",
		},
		Sync: SyncConfig{
			RefreshInterval: "5m",
			PendingGrace:    "500ms",
		},
		App: AppConfig{
			DebugMode: false,
		},
	}
}

// Path returns the path to the configuration file.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".pokebinder")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}

	return filepath.Join(configDir, "config.toml"), nil
}

// Load loads the configuration from the default path. Returns default config
// if the file doesn't exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads the configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return &config, nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo saves the configuration to an explicit path.
func (c *Config) SaveTo(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if c.Store.BaseURL == "" {
		return fmt.Errorf("store base URL is required")
	}

	if c.Store.UserID <= 0 {
		return fmt.Errorf("user id must be positive: %d", c.Store.UserID)
	}

	if _, err := time.ParseDuration(c.Store.Timeout); err != nil {
		return fmt.Errorf("invalid store timeout %q: %w", c.Store.Timeout, err)
	}

	if _, err := time.ParseDuration(c.Sync.RefreshInterval); err != nil {
		return fmt.Errorf("invalid refresh interval %q: %w", c.Sync.RefreshInterval, err)
	}

	if _, err := time.ParseDuration(c.Sync.PendingGrace); err != nil {
		return fmt.Errorf("invalid pending grace %q: %w", c.Sync.PendingGrace, err)
	}

	return nil
}

// GetStoreTimeout returns the store request timeout as a duration.
func (c *Config) GetStoreTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Store.Timeout)
}

// GetRefreshInterval returns the refresh interval as a duration.
func (c *Config) GetRefreshInterval() (time.Duration, error) {
	return time.ParseDuration(c.Sync.RefreshInterval)
}

// GetPendingGrace returns the pending marker grace period as a duration.
func (c *Config) GetPendingGrace() (time.Duration, error) {
	return time.ParseDuration(c.Sync.PendingGrace)
}

// DBPath resolves the card cache database path, defaulting to a file next to
// the config.
func (c *Config) DBPath() (string, error) {
	if c.Cache.DBPath != "" {
		return c.Cache.DBPath, nil
	}

	path, err := Path()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(path), "cards.db"), nil
}
