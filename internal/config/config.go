// Package config provides YAML-based configuration loading for cursor-history.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iksnae/cursor-history/internal"
	"gopkg.in/yaml.v3"
)

// DefaultSourceName is the backend used when no sources are configured
const DefaultSourceName = "cursor"

// Config is the top-level configuration, loaded from config.yaml.
type Config struct {
	IndexPath     string         `yaml:"index_path"`
	AutoSync      *bool          `yaml:"auto_sync"`
	StatsSample   int            `yaml:"stats_sample"`
	PreviewLength int            `yaml:"preview_length"`
	SyncLimit     int            `yaml:"sync_limit"`
	LogFile       string         `yaml:"log_file"`
	Retry         RetryConfig    `yaml:"retry"`
	Sources       []SourceConfig `yaml:"sources"`
}

// RetryConfig controls retries against a busy source store.
type RetryConfig struct {
	Attempts    int `yaml:"attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms"`
}

// SourceConfig names one source backend. An empty BasePath means the
// per-OS default location.
type SourceConfig struct {
	Name     string `yaml:"name"`
	BasePath string `yaml:"base_path"`
}

// DefaultPath returns $XDG_CONFIG_HOME/cursor-history/config.yaml or the
// platform equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate config dir: %w", err)
	}
	return filepath.Join(dir, "cursor-history", "config.yaml"), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file from path and returns a validated Config.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.IndexPath == "" {
		c.IndexPath = filepath.Join("~", ".cursor-history", "index.db")
	}
	c.IndexPath = ExpandPath(c.IndexPath)
	if c.AutoSync == nil {
		enabled := true
		c.AutoSync = &enabled
	}
	if c.StatsSample == 0 {
		c.StatsSample = 1000
	}
	if c.PreviewLength == 0 {
		c.PreviewLength = 100
	}
	if c.SyncLimit == 0 {
		c.SyncLimit = 100
	}
	c.LogFile = ExpandPath(c.LogFile)
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.BaseDelayMs == 0 {
		c.Retry.BaseDelayMs = 100
	}
	if c.Retry.MaxDelayMs == 0 {
		c.Retry.MaxDelayMs = 1000
	}
	if len(c.Sources) == 0 {
		c.Sources = []SourceConfig{{Name: DefaultSourceName}}
	}
	for i := range c.Sources {
		c.Sources[i].BasePath = ExpandPath(c.Sources[i].BasePath)
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.StatsSample < 0 {
		errs = append(errs, "stats_sample must be positive")
	}
	if c.PreviewLength < 0 {
		errs = append(errs, "preview_length must be positive")
	}
	if c.SyncLimit < 0 {
		errs = append(errs, "sync_limit must be positive")
	}
	if c.Retry.Attempts < 0 {
		errs = append(errs, "retry.attempts must be positive")
	}
	if c.Retry.BaseDelayMs < 0 || c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		errs = append(errs, "retry delays must satisfy 0 < base_delay_ms <= max_delay_ms")
	}
	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("sources[%d].name is required", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("sources[%d].name %q is duplicated", i, s.Name))
		}
		seen[s.Name] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// AutoSyncEnabled reports whether lookups may sync missing sessions.
func (c *Config) AutoSyncEnabled() bool {
	return c.AutoSync == nil || *c.AutoSync
}

// RetryPolicy converts the retry settings for the source reader.
func (c *Config) RetryPolicy() internal.RetryPolicy {
	return internal.RetryPolicy{
		Attempts:  c.Retry.Attempts,
		BaseDelay: time.Duration(c.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:  time.Duration(c.Retry.MaxDelayMs) * time.Millisecond,
	}
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
