// Package config provides configuration management for weftsync using
// Viper for loading from files and environment variables.
//
// Configuration comes from a .weftsync.yml file, WEFTSYNC_ prefixed
// environment variables, and command-line flags, in increasing precedence.
// It covers the synchronization window, workspace watching, metadata
// resolution, and publication.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Resolver modes.
const (
	ResolverModeLocal  = "local"
	ResolverModeRemote = "remote"
)

// Publish modes.
const (
	PublishModeFile   = "file"
	PublishModeStream = "stream"
)

type Config struct {
	Sync     SyncConfig     `yaml:"sync" mapstructure:"sync"`
	Watch    WatchConfig    `yaml:"watch" mapstructure:"watch"`
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`
	Publish  PublishConfig  `yaml:"publish" mapstructure:"publish"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// SyncConfig controls the debounced synchronization pipeline.
type SyncConfig struct {
	// Window is the quiet period after the last change before a batch runs.
	Window time.Duration `yaml:"window" mapstructure:"window"`
	// RetryDelay is the pause before a deferred re-resolution attempt.
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
}

// WatchConfig controls the workspace file watcher.
type WatchConfig struct {
	Paths   []string `yaml:"paths" mapstructure:"paths"`
	Exclude []string `yaml:"exclude" mapstructure:"exclude"`
}

// ResolverConfig controls metadata resolution.
type ResolverConfig struct {
	// Mode selects local in-process scanning or a remote resolver service.
	Mode string `yaml:"mode" mapstructure:"mode"`
	// Endpoint is the remote resolver's TCP address (remote mode only).
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	// CacheSize bounds the shared metadata content cache (entries).
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size"`
}

// PublishConfig controls where derived project info goes.
type PublishConfig struct {
	// Mode selects per-project files or a streamed connection.
	Mode string `yaml:"mode" mapstructure:"mode"`
	// Endpoint is the websocket URL for stream mode.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// Load builds a Config from viper's current state, applying defaults and
// validating the result.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or environment is
// present.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Sync.Window <= 0 {
		c.Sync.Window = 250 * time.Millisecond
	}
	if c.Sync.RetryDelay <= 0 {
		c.Sync.RetryDelay = 2 * time.Second
	}
	if len(c.Watch.Paths) == 0 {
		c.Watch.Paths = []string{"."}
	}
	if len(c.Watch.Exclude) == 0 {
		c.Watch.Exclude = []string{"**/node_modules/**", "**/.git/**", "**/bin/**", "**/obj/**"}
	}
	if c.Resolver.Mode == "" {
		c.Resolver.Mode = ResolverModeLocal
	}
	if c.Resolver.CacheSize <= 0 {
		c.Resolver.CacheSize = 1024
	}
	if c.Publish.Mode == "" {
		c.Publish.Mode = PublishModeFile
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Resolver.Mode {
	case ResolverModeLocal:
	case ResolverModeRemote:
		if c.Resolver.Endpoint == "" {
			return fmt.Errorf("config: resolver.endpoint is required in remote mode")
		}
	default:
		return fmt.Errorf("config: unknown resolver.mode %q", c.Resolver.Mode)
	}

	switch c.Publish.Mode {
	case PublishModeFile:
	case PublishModeStream:
		if c.Publish.Endpoint == "" {
			return fmt.Errorf("config: publish.endpoint is required in stream mode")
		}
	default:
		return fmt.Errorf("config: unknown publish.mode %q", c.Publish.Mode)
	}

	if c.Sync.Window > 10*time.Second {
		return fmt.Errorf("config: sync.window %s is unreasonably long", c.Sync.Window)
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}
