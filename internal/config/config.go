package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Catalog CatalogConfig `yaml:"catalog"`
	Log     LogConfig     `yaml:"log"`
	HTTP    HTTPConfig    `yaml:"http"`
	Inquiry InquiryConfig `yaml:"inquiry"`
	Metrics MetricsConfig `yaml:"metrics"`

	// Trusted disables the safe-path check for descriptor paths.
	Trusted bool `yaml:"trusted"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	JSON       bool   `yaml:"json"`
}

type HTTPConfig struct {
	Timeout  int `yaml:"timeout"`   // seconds
	CacheTTL int `yaml:"cache_ttl"` // seconds, 0 disables the response cache
}

type InquiryConfig struct {
	Workers int `yaml:"workers"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the /metrics listener
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			Path: "./data/catalog.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		HTTP: HTTPConfig{
			Timeout:  30,
			CacheTTL: 0,
		},
		Inquiry: InquiryConfig{
			Workers: 4,
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would make the process misbehave silently.
func (c *Config) Validate() error {
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must be >= 0")
	}
	if c.HTTP.CacheTTL < 0 {
		return fmt.Errorf("http.cache_ttl must be >= 0")
	}
	if c.Inquiry.Workers < 0 {
		return fmt.Errorf("inquiry.workers must be >= 0")
	}
	return nil
}

// HTTPTimeout returns the configured HTTP timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.Timeout) * time.Second
}

// CacheTTL returns the configured response cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.HTTP.CacheTTL) * time.Second
}

// EnsureDirectories creates required directories
func (c *Config) EnsureDirectories() error {
	if c.Catalog.Path == "" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(c.Catalog.Path), 0755)
}
