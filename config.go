package goSession

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full client configuration. Build it with [DefaultConfig],
// optionally overlay a YAML file with [LoadConfig], and treat it as
// immutable once passed to the Builder.
type Config struct {
	BaseURL   string          `yaml:"base_url"`
	EntryPath string          `yaml:"entry_path"`
	Store     StoreConfig     `yaml:"store"`
	Transport TransportConfig `yaml:"transport"`
	Rehydrate RehydrateConfig `yaml:"rehydrate"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreBackend selects where the credential is persisted.
type StoreBackend string

const (
	StoreMemory StoreBackend = "memory"
	StoreFile   StoreBackend = "file"
	StoreRedis  StoreBackend = "redis"
)

// StoreConfig configures the credential store built when none is injected
// with Builder.WithStore.
type StoreConfig struct {
	Backend StoreBackend `yaml:"backend"`

	// FilePath is used by the file backend.
	FilePath string `yaml:"file_path"`

	// Redis backend.
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	RedisKey    string        `yaml:"redis_key"`
	RedisTTL    time.Duration `yaml:"redis_ttl"`
}

/*
====================================
TRANSPORT CONFIG
====================================
*/

// TransportConfig bounds every upstream call made through the pipeline.
type TransportConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// RejectionStatus is the upstream status that means "credential not
	// honored". 401 unless the upstream is unusual.
	RejectionStatus int `yaml:"rejection_status"`
}

// RehydrateConfig bounds the startup profile fetch.
type RehydrateConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration with an in-memory store. BaseURL
// must still be set.
func DefaultConfig() Config {
	return Config{
		EntryPath: "/login",
		Store: StoreConfig{
			Backend:     StoreMemory,
			RedisPrefix: "gs",
			RedisKey:    "default",
		},
		Transport: TransportConfig{
			Timeout:         30 * time.Second,
			RejectionStatus: 401,
		},
		Rehydrate: RehydrateConfig{
			Timeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// LoadConfig reads a YAML file on top of [DefaultConfig]. Durations use Go
// syntax ("10s", "1m30s").
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("BaseURL must be an absolute http(s) URL")
	}

	if !strings.HasPrefix(c.EntryPath, "/") {
		return invalid("EntryPath must start with /")
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreFile:
		if strings.TrimSpace(c.Store.FilePath) == "" {
			return invalid("Store FilePath is required for the file backend")
		}
	case StoreRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return invalid("Store RedisAddr is required for the redis backend")
		}
		if c.Store.RedisTTL < 0 {
			return invalid("Store RedisTTL must be >= 0")
		}
	default:
		return invalid("Store Backend must be memory, file, or redis")
	}

	if c.Transport.Timeout < 0 {
		return invalid("Transport Timeout must be >= 0")
	}
	if c.Transport.RejectionStatus < 400 || c.Transport.RejectionStatus > 499 {
		return invalid("Transport RejectionStatus must be a 4xx status")
	}

	if c.Rehydrate.Timeout <= 0 {
		return invalid("Rehydrate Timeout must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalid("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
