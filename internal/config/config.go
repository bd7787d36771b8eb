// Package config loads runtime configuration from defaults, an optional YAML
// file and VGOAT_ environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is stripped from environment variable names before mapping.
	EnvPrefix = "VGOAT_"

	// ConfigPathEnvVar points at an explicit YAML config file.
	ConfigPathEnvVar = "VGOAT_CONFIG"

	defaultConfigFile = "vgoat.yaml"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Breaker   BreakerConfig   `koanf:"breaker"`
	Auth      AuthConfig      `koanf:"auth"`
	Lifecycle LifecycleConfig `koanf:"lifecycle"`
	Kafka     KafkaConfig     `koanf:"kafka"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=0,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit" validate:"min=0"`
	RateWindow      time.Duration `koanf:"rate_window"`
}

type StorageConfig struct {
	Driver       string        `koanf:"driver" validate:"oneof=sqlite postgres"`
	Path         string        `koanf:"path" validate:"required_if=Driver sqlite"`
	DSN          string        `koanf:"dsn" validate:"required_if=Driver postgres"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxOpenConns int           `koanf:"max_open_conns" validate:"min=0"`
}

type BreakerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio" validate:"min=0,max=1"`
	OpenTimeout  time.Duration `koanf:"open_timeout"`
}

type AuthConfig struct {
	AdminToken string `koanf:"admin_token"`
	TokenFile  string `koanf:"token_file"`
}

type LifecycleConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval" validate:"required_if=Enabled true"`
}

type KafkaConfig struct {
	Brokers        []string      `koanf:"brokers"`
	Topic          string        `koanf:"topic"`
	PublishTimeout time.Duration `koanf:"publish_timeout"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       120,
			RateWindow:      time.Minute,
		},
		Storage: StorageConfig{
			Driver:       "sqlite",
			Path:         "./vgoat.db",
			Timeout:      2 * time.Second,
			MaxOpenConns: 10,
		},
		Breaker: BreakerConfig{
			Enabled:      true,
			MinRequests:  10,
			FailureRatio: 0.6,
			OpenTimeout:  30 * time.Second,
		},
		Auth: AuthConfig{
			TokenFile: ".vgoat-token",
		},
		Lifecycle: LifecycleConfig{
			Enabled:  true,
			Interval: time.Minute,
		},
		Kafka: KafkaConfig{
			Topic:          "experiment-lifecycle",
			PublishTimeout: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config from defaults, the config file at path (or the one
// found through VGOAT_CONFIG / ./vgoat.yaml when path is empty) and the
// environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Comma separated lists arrive from the environment as a single string.
	for _, key := range []string{"server.cors_origins", "kafka.brokers"} {
		if s, ok := k.Get(key).(string); ok {
			if err := k.Set(key, splitList(s)); err != nil {
				return nil, fmt.Errorf("failed to set %s: %w", key, err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

// envTransform maps VGOAT_SERVER_PORT to server.port and
// VGOAT_STORAGE_MAX_OPEN_CONNS to storage.max_open_conns. The first
// underscore separates the section from the key.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
