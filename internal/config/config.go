// Package config loads the application configuration from a YAML file and
// CLOSET_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved application configuration.
type Config struct {
	// DataDir holds the database, photo import drop folder, and logs.
	DataDir string `mapstructure:"data_dir"`

	// ServerURL is the base URL of the sync server. Empty disables all
	// remote operations.
	ServerURL string `mapstructure:"server_url"`

	// AccountID and Token identify the authenticated session. Empty
	// AccountID means signed out.
	AccountID string `mapstructure:"account_id"`
	Token     string `mapstructure:"token"`

	// SyncInterval is the periodic sync cadence for the daemon.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// ImportDir is the photo drop folder watched by the daemon. Empty
	// means <DataDir>/import.
	ImportDir string `mapstructure:"import_dir"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig controls file logging rotation.
type LogConfig struct {
	File       string `mapstructure:"file"` // empty means <DataDir>/closet.log
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads config.yaml from ~/.config/closet (then the current
// directory) and applies CLOSET_* environment overrides. A missing config
// file is fine; defaults cover everything.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "closet"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("CLOSET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("server_url", "")
	v.SetDefault("account_id", "")
	v.SetDefault("token", "")
	v.SetDefault("sync_interval", 2*time.Minute)
	v.SetDefault("import_dir", "")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "closet.db")
}

// ImportPath returns the photo drop folder.
func (c *Config) ImportPath() string {
	if c.ImportDir != "" {
		return c.ImportDir
	}
	return filepath.Join(c.DataDir, "import")
}

// LogPath returns the log file location.
func (c *Config) LogPath() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.DataDir, "closet.log")
}

// StaticAuth adapts a configured account id to the engine's auth provider.
type StaticAuth struct {
	ID string
}

func (a StaticAuth) AccountID() string {
	return a.ID
}

// OnChange is a no-op: a configured account id never changes at runtime.
func (a StaticAuth) OnChange(func()) {}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".closet"
	}
	return filepath.Join(home, ".closet")
}
