// Package config loads the TOML configuration of the symkeys tool.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pelletier/go-toml/v2"

	"github.com/isseis/go-symstore-keys/internal/logging"
	"github.com/isseis/go-symstore-keys/internal/safefileio"
	"github.com/isseis/go-symstore-keys/internal/symstore"
)

// Defaults
const (
	DefaultWorkers   = 4
	DefaultCacheSize = 1024
	MaxWorkers       = 256
)

// Error definitions for the config package
var (
	// ErrInvalidWorkers is returned when scan.workers is out of range.
	ErrInvalidWorkers = errors.New("invalid number of workers")

	// ErrInvalidCacheSize is returned when scan.cache_size is negative.
	ErrInvalidCacheSize = errors.New("invalid cache size")
)

// Config is the root of the configuration file.
type Config struct {
	Keys    KeysConfig    `toml:"keys"`
	Scan    ScanConfig    `toml:"scan"`
	Logging LoggingConfig `toml:"logging"`
}

// KeysConfig selects the key categories to derive.
type KeysConfig struct {
	// Types lists "identity", "symbol", "clr" or "all".
	Types []string `toml:"types"`
}

// ScanConfig controls how paths are expanded and processed.
type ScanConfig struct {
	Recursive bool `toml:"recursive"`
	Workers   int  `toml:"workers"`
	// CacheSize is the number of per-file results kept; 0 disables caching.
	CacheSize int `toml:"cache_size"`
}

// LoggingConfig controls log verbosity and the run log directory.
type LoggingConfig struct {
	Level  string `toml:"level"`
	LogDir string `toml:"log_dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Keys: KeysConfig{Types: []string{"identity", "symbol", "clr"}},
		Scan: ScanConfig{
			Workers:   DefaultWorkers,
			CacheSize: DefaultCacheSize,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads and validates the configuration file at path. Missing fields
// keep their default values.
func Load(path string) (*Config, error) {
	content, err := safefileio.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML content over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(content []byte) (*Config, error) {
	cfg := Default()
	// Replace rather than merge the default list when the file sets one.
	cfg.Keys.Types = nil

	decoder := toml.NewDecoder(bytes.NewReader(content))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strictErr *toml.StrictMissingError
		if errors.As(err, &strictErr) {
			return nil, fmt.Errorf("failed to parse config: %s", strictErr.String())
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Keys.Types == nil {
		cfg.Keys.Types = Default().Keys.Types
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	if _, err := c.KeyFlags(); err != nil {
		return err
	}
	if c.Scan.Workers < 1 || c.Scan.Workers > MaxWorkers {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidWorkers, c.Scan.Workers, MaxWorkers)
	}
	if c.Scan.CacheSize < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCacheSize, c.Scan.CacheSize)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// KeyFlags converts Keys.Types to flags.
func (c *Config) KeyFlags() (symstore.KeyTypeFlags, error) {
	return symstore.ParseKeyTypeFlags(c.Keys.Types)
}

// LogLevel converts Logging.Level to a slog level.
func (c *Config) LogLevel() (slog.Level, error) {
	return logging.ParseLevel(c.Logging.Level)
}
