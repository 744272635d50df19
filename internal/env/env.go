// Package env locates the cellar directories and loads the user
// configuration.
package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	AppName        = "cellar"
	ConfigFileName = "config.toml"
	EnvPrefix      = "CELLAR"
)

// Config is the user configuration. Every field can be set in the config
// file or through a CELLAR_* environment variable, e.g. CELLAR_ROOT or
// CELLAR_DOWNLOAD_RETRIES.
type Config struct {
	Root        string         `mapstructure:"root" toml:"root"`
	Cache       string         `mapstructure:"cache" toml:"cache"`
	FormulaDirs []string       `mapstructure:"formula_dirs" toml:"formula_dirs"`
	Jobs        int            `mapstructure:"jobs" toml:"jobs"`
	LogLevel    string         `mapstructure:"log_level" toml:"log_level"`
	Tap         TapConfig      `mapstructure:"tap" toml:"tap"`
	Download    DownloadConfig `mapstructure:"download" toml:"download"`
}

// TapConfig names the git repository formulas are updated from.
type TapConfig struct {
	Remote string `mapstructure:"remote" toml:"remote"`
	Dir    string `mapstructure:"dir" toml:"dir,omitempty"`
}

// DownloadConfig tunes source downloads.
type DownloadConfig struct {
	Retries       int    `mapstructure:"retries" toml:"retries"`
	TripThreshold int    `mapstructure:"trip_threshold" toml:"trip_threshold"`
	UserAgent     string `mapstructure:"user_agent" toml:"user_agent"`
}

// ConfigDir returns the directory holding config.toml. CELLAR_CONFIG_DIR
// overrides the platform default.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// CacheDir returns the default cache directory for downloads and taps.
func CacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// DefaultRoot returns the default cellar root, ~/.cellar.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, "."+AppName), nil
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() (*Config, error) {
	root, err := DefaultRoot()
	if err != nil {
		return nil, err
	}
	cache, err := CacheDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		Root:     root,
		Cache:    cache,
		Jobs:     runtime.NumCPU(),
		LogLevel: "info",
		Download: DownloadConfig{
			Retries:       3,
			TripThreshold: 5,
			UserAgent:     AppName + "/1.0",
		},
	}, nil
}

// Load reads the configuration. path selects a config file explicitly;
// when empty, config.toml in ConfigDir is read if present. It returns the
// config and the file it was read from, or "" when only defaults and the
// environment applied.
func Load(path string) (*Config, string, error) {
	defaults, err := DefaultConfig()
	if err != nil {
		return nil, "", err
	}
	v := viper.New()
	v.SetConfigType("toml")
	v.SetDefault("root", defaults.Root)
	v.SetDefault("cache", defaults.Cache)
	v.SetDefault("formula_dirs", defaults.FormulaDirs)
	v.SetDefault("jobs", defaults.Jobs)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("tap.remote", defaults.Tap.Remote)
	v.SetDefault("tap.dir", defaults.Tap.Dir)
	v.SetDefault("download.retries", defaults.Download.Retries)
	v.SetDefault("download.trip_threshold", defaults.Download.TripThreshold)
	v.SetDefault("download.user_agent", defaults.Download.UserAgent)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolved := path
	if resolved == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, "", err
		}
		resolved = filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(resolved); errors.Is(err, os.ErrNotExist) {
			resolved = ""
		}
	}
	if resolved != "" {
		v.SetConfigFile(resolved)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("failed to read config %s: %w", resolved, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Jobs <= 0 {
		cfg.Jobs = 1
	}
	if cfg.Download.Retries < 0 {
		return nil, "", fmt.Errorf("download.retries must not be negative, got %d", cfg.Download.Retries)
	}
	return &cfg, resolved, nil
}

// Write stores cfg as TOML at path. An existing file is only replaced when
// force is set.
func Write(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// TapDir returns where the formula tap is checked out.
func (c *Config) TapDir() string {
	if c.Tap.Dir != "" {
		return c.Tap.Dir
	}
	return filepath.Join(c.Cache, "tap")
}

// Layout returns the directories under the cellar root.
func (c *Config) Layout() (cellar, bin, lock string) {
	return filepath.Join(c.Root, "Cellar"), filepath.Join(c.Root, "bin"), filepath.Join(c.Root, ".lock")
}
