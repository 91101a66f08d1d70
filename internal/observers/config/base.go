package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BaseConfig provides common configuration fields for all observers
type BaseConfig struct {
	// Name is the unique identifier for the observer instance
	Name string `json:"name" yaml:"name"`

	// BufferSize for the output events channel (default: 1000)
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`

	// MetricsEnabled determines if the observer records OTEL metrics (default: true)
	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled"`

	// ShutdownTimeout bounds graceful shutdown (default: 5s)
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DefaultBaseConfig returns a BaseConfig with sensible defaults
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		BufferSize:      1000,
		MetricsEnabled:  true,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate performs base configuration validation
func (c *BaseConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("observer name cannot be empty")
	}

	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}

	if c.BufferSize > 1000000 {
		return fmt.Errorf("buffer_size too large, got %d (max: 1000000)", c.BufferSize)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %v", c.ShutdownTimeout)
	}

	return nil
}

// SetDefaults applies default values to unset fields
func (c *BaseConfig) SetDefaults() {
	if c.BufferSize == 0 {
		c.BufferSize = 1000
	}

	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

const (
	// DefaultCacheCapacity is the number of digest records kept per shard
	DefaultCacheCapacity = 4096

	// DefaultEventsMap is where the eBPF loader pins the events ring buffer
	DefaultEventsMap = "/sys/fs/bpf/tapio/events"

	maxShards = 64
)

// FileHashConfig holds configuration for the file hash enrichment observer
type FileHashConfig struct {
	BaseConfig `json:",inline" yaml:",inline"`

	// CacheCapacity bounds the digest records held by each shard, evicting least recently used
	CacheCapacity int `json:"cache_capacity" yaml:"cache_capacity"`

	// Shards is the number of enrichment workers, each with its own cache (default: 1)
	Shards int `json:"shards" yaml:"shards"`

	// EventsMap is the bpffs path of the pinned events ring buffer
	EventsMap string `json:"events_map" yaml:"events_map"`

	// Output format of enriched events: json, json-pretty, yaml or human (default: json)
	Output string `json:"output" yaml:"output"`

	// LogLevel: debug, info, warn or error (default: info)
	LogLevel string `json:"log_level" yaml:"log_level"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9464"
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`

	// OTLPEndpoint receives traces and metrics over gRPC when set
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
}

// NewFileHashConfig creates a new file hash configuration with defaults
func NewFileHashConfig(name string) *FileHashConfig {
	config := &FileHashConfig{
		BaseConfig: DefaultBaseConfig(),
	}
	config.Name = name
	config.SetDefaults()
	return config
}

// SetDefaults applies file hash specific defaults
func (c *FileHashConfig) SetDefaults() {
	c.BaseConfig.SetDefaults()

	if c.Name == "" {
		c.Name = "filehash"
	}
	if c.CacheCapacity == 0 {
		c.CacheCapacity = DefaultCacheCapacity
	}
	if c.Shards == 0 {
		c.Shards = 1
	}
	if c.EventsMap == "" {
		c.EventsMap = DefaultEventsMap
	}
	if c.Output == "" {
		c.Output = "json"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate performs file hash specific validation
func (c *FileHashConfig) Validate() error {
	if err := c.BaseConfig.Validate(); err != nil {
		return err
	}

	if c.CacheCapacity <= 0 {
		return fmt.Errorf("cache_capacity must be positive, got %d", c.CacheCapacity)
	}

	if c.Shards <= 0 || c.Shards > maxShards {
		return fmt.Errorf("shards must be between 1 and %d, got %d", maxShards, c.Shards)
	}

	switch c.Output {
	case "json", "json-pretty", "yaml", "human":
	default:
		return fmt.Errorf("unknown output format %q (valid: json, json-pretty, yaml, human)", c.Output)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// ParseConfig parses YAML configuration, applies defaults and validates it
func ParseConfig(data []byte) (*FileHashConfig, error) {
	config := &FileHashConfig{BaseConfig: DefaultBaseConfig()}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse filehash config: %w", err)
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("filehash config validation failed: %w", err)
	}
	return config, nil
}

// LoadFile reads and parses a YAML configuration file
func LoadFile(path string) (*FileHashConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}
