package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// CacheConfig holds local-store retention settings.
type CacheConfig struct {
	// Path is the SQLite database location. Empty means the default
	// under the user config directory.
	Path string `mapstructure:"path" yaml:"path"`

	// BodyKeepPerFolder bounds how many cached bodies are retained per
	// folder; the oldest-fetched bodies beyond the bound are evicted.
	// Metadata, flags, and pending actions are never evicted.
	BodyKeepPerFolder int `mapstructure:"body_keep_per_folder" yaml:"body_keep_per_folder"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Accounts []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
	Display  DisplayConfig   `mapstructure:"display" yaml:"display"`
	Cache    CacheConfig     `mapstructure:"cache" yaml:"cache"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/linsky/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "linsky", "config.yaml")
}

// DefaultCachePath returns the default SQLite database path.
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "linsky.db")
	}
	return filepath.Join(home, ".config", "linsky", "linsky.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Accounts: []AccountConfig{},
		Display: DisplayConfig{
			Theme: "default",
		},
		Cache: CacheConfig{
			Path:              DefaultCachePath(),
			BodyKeepPerFolder: 200,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("display.theme", "default")
	v.SetDefault("cache.path", DefaultCachePath())
	v.SetDefault("cache.body_keep_per_folder", 200)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// An empty cache path would open a throwaway temporary database,
	// losing everything on exit.
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath()
	}

	// Apply defaults for each account entry.
	for i := range cfg.Accounts {
		if cfg.Accounts[i].SyncIntervalSec == 0 {
			cfg.Accounts[i].SyncIntervalSec = 300
		}
		if cfg.Accounts[i].Protocol == "" {
			cfg.Accounts[i].Protocol = ProtocolIMAP
		}
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("accounts", cfg.Accounts)
	v.Set("display", cfg.Display)
	v.Set("cache", cfg.Cache)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
