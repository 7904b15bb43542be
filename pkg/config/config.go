// Package config provides YAML-based configuration loading for the broker.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root broker configuration: one entry per rank in the
// tree, loaded identically on every node with only Rank/ParentURI
// differing between them in practice.
type Config struct {
	// Rank is this broker's position in the tree (0 is the root).
	Rank uint32 `mapstructure:"rank"`
	// Size is the total number of ranks in the tree.
	Size uint32 `mapstructure:"size"`
	// Arity is the maximum number of children any rank may have.
	Arity uint32 `mapstructure:"arity"`

	// BindURI is the "host:port" this rank listens on for its children.
	// Leaf ranks (Arity children none of which exist) may leave it empty.
	BindURI string `mapstructure:"bind_uri"`
	// ParentURI is the "host:port" of this rank's parent. Empty at rank 0.
	ParentURI string `mapstructure:"parent_uri"`

	// Log holds logging configuration.
	Log LogConfig `mapstructure:"log"`

	// Security controls certificate storage and peer authorization.
	Security SecurityConfig `mapstructure:"security"`

	// Sync holds the idle/keepalive tuning intervals (seconds).
	Sync SyncConfig `mapstructure:"sync"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SyncConfig holds the overlay's idle/keepalive tuning intervals, all in
// seconds, mirroring pkg/overlay.Config.
type SyncConfig struct {
	Min     float64 `mapstructure:"sync_min"`
	Max     float64 `mapstructure:"sync_max"`
	IdleMin float64 `mapstructure:"idle_min"`
	IdleMax float64 `mapstructure:"idle_max"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Rank:  0,
		Size:  1,
		Arity: 2,
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/flux-broker.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Security: SecurityConfig{CertDir: "./certs"},
		Sync:     SyncConfig{Min: 2, Max: 30, IdleMin: 20, IdleMax: 300},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix FLUX and `.`/`-` are replaced with `_`.
// Example: FLUX_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FLUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("rank", cfg.Rank)
	v.SetDefault("size", cfg.Size)
	v.SetDefault("arity", cfg.Arity)
	v.SetDefault("bind_uri", cfg.BindURI)
	v.SetDefault("parent_uri", cfg.ParentURI)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("security.cert_dir", cfg.Security.CertDir)
	v.SetDefault("security.parent_pubkey", cfg.Security.ParentPubkey)
	v.SetDefault("security.authorized_peers", cfg.Security.AuthorizedPeers)
	v.SetDefault("sync.sync_min", cfg.Sync.Min)
	v.SetDefault("sync.sync_max", cfg.Sync.Max)
	v.SetDefault("sync.idle_min", cfg.Sync.IdleMin)
	v.SetDefault("sync.idle_max", cfg.Sync.IdleMax)

	// Choose config file
	if path == "" {
		// Allow override via env var
		if envPath := os.Getenv("FLUX_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `flux-broker`
		v.SetConfigName("flux-broker")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".flux"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate re-checks invariants after callers mutate a loaded Config
// directly, e.g. to apply command-line overrides on top of file/env values.
func (c *Config) Validate() error {
	return c.validate()
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if c.Arity == 0 {
		return errors.New("arity must be at least 1")
	}
	if c.Size == 0 {
		return errors.New("size must be at least 1")
	}
	if c.Rank >= c.Size {
		return fmt.Errorf("rank %d out of range for size %d", c.Rank, c.Size)
	}
	if c.Rank != 0 && strings.TrimSpace(c.ParentURI) == "" {
		return fmt.Errorf("rank %d requires parent_uri", c.Rank)
	}
	if c.Rank == 0 && strings.TrimSpace(c.ParentURI) != "" {
		return errors.New("rank 0 must not set parent_uri")
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
