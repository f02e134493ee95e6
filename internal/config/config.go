package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath               = "/etc/sharkd/config.yaml"
	DefaultGRPCAddr           = "0.0.0.0:9000"
	DefaultHTTPAddr           = "0.0.0.0:8080"
	DefaultDashboardDir       = "/var/lib/sharkd/dashboards"
	DefaultStatePath          = "/var/lib/sharkd/session.json"
	DefaultAuthBase           = "https://logineu.sharkninja.com"
	DefaultAPIBase            = "https://ads-field-eu.aylanetworks.com"
	DefaultClientID           = "rKDx9O18dBrY3eoJMTkRiBZHDvd9Mx1I"
	DefaultScope              = "openid profile email offline_access read:users read:current_user read:user_idp_tokens"
	DefaultBlobPrefix         = "sharkd"
	DefaultTopicPrefix        = "sharkd"
	DefaultPollInterval       = time.Minute
	DefaultMapRefreshInterval = 5 * time.Second
	DefaultRefreshInterval    = 10 * time.Minute
	DefaultRatePerMinute      = 60
)

// Config is the top-level sharkd configuration.
type Config struct {
	SchemaVersion int             `yaml:"schema_version"`
	Core          CoreConfig      `yaml:"core"`
	Session       SessionConfig   `yaml:"session"`
	Blob          BlobConfig      `yaml:"blob"`
	Shark         *SharkConfig    `yaml:"shark"`
	Messaging     MessagingConfig `yaml:"messaging"`
	Viewer        ViewerConfig    `yaml:"viewer"`
}

// CoreConfig holds listener addresses.
type CoreConfig struct {
	GRPCAddr     string `yaml:"grpc_addr"`
	HTTPAddr     string `yaml:"http_addr"`
	DashboardDir string `yaml:"dashboard_dir"`
}

// SessionConfig describes the vendor login endpoint and local token state.
type SessionConfig struct {
	StatePath       string        `yaml:"state_path"`
	AuthBase        string        `yaml:"auth_base"`
	ClientID        string        `yaml:"client_id"`
	Scope           string        `yaml:"scope"`
	RefreshEnabled  *bool         `yaml:"refresh_enabled"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// BlobConfig points at S3-compatible object storage. Empty endpoint disables it.
type BlobConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	AccessKeyFile string `yaml:"access_key_file"`
	SecretKeyFile string `yaml:"secret_key_file"`
	Region        string `yaml:"region"`
}

// Enabled reports whether a blob endpoint is configured.
func (b BlobConfig) Enabled() bool {
	return b.Endpoint != ""
}

// SharkConfig configures the Shark plugin.
type SharkConfig struct {
	APIBase            string        `yaml:"api_base"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	MapRefreshInterval time.Duration `yaml:"map_refresh_interval"`
	ArchiveMaps        bool          `yaml:"archive_maps"`
	HistoryPath        string        `yaml:"history_path"`
	Cache              string        `yaml:"cache"`
	RedisAddr          string        `yaml:"redis_addr"`
	RatePerMinute      int           `yaml:"rate_per_minute"`
}

// MessagingConfig selects the event publisher backend.
type MessagingConfig struct {
	Backend     string      `yaml:"backend"` // "none", "mqtt" or "kafka"
	TopicPrefix string      `yaml:"topic_prefix"`
	MQTT        MQTTConfig  `yaml:"mqtt"`
	Kafka       KafkaConfig `yaml:"kafka"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker       string `yaml:"broker"`
	Port         int    `yaml:"port"`
	ClientID     string `yaml:"client_id"`
	Username     string `yaml:"username"`
	PasswordFile string `yaml:"password_file"`
}

// KafkaConfig defines Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// ViewerConfig tunes the interactive map viewer.
type ViewerConfig struct {
	FocalZoom bool `yaml:"focal_zoom"`
}

const SchemaVersion = 1

// Load parses the YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes config bytes, applies defaults, and validates.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Core.GRPCAddr == "" {
		cfg.Core.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.DashboardDir == "" {
		cfg.Core.DashboardDir = DefaultDashboardDir
	}

	if cfg.Session.StatePath == "" {
		cfg.Session.StatePath = DefaultStatePath
	}
	if cfg.Session.AuthBase == "" {
		cfg.Session.AuthBase = DefaultAuthBase
	}
	if cfg.Session.ClientID == "" {
		cfg.Session.ClientID = DefaultClientID
	}
	if cfg.Session.Scope == "" {
		cfg.Session.Scope = DefaultScope
	}
	if cfg.Session.RefreshEnabled == nil {
		enabled := true
		cfg.Session.RefreshEnabled = &enabled
	}
	if cfg.Session.RefreshInterval == 0 {
		cfg.Session.RefreshInterval = DefaultRefreshInterval
	}

	if cfg.Blob.Prefix == "" {
		cfg.Blob.Prefix = DefaultBlobPrefix
	}

	if cfg.Shark != nil {
		if cfg.Shark.APIBase == "" {
			cfg.Shark.APIBase = DefaultAPIBase
		}
		if cfg.Shark.PollInterval == 0 {
			cfg.Shark.PollInterval = DefaultPollInterval
		}
		if cfg.Shark.MapRefreshInterval == 0 {
			cfg.Shark.MapRefreshInterval = DefaultMapRefreshInterval
		}
		if cfg.Shark.Cache == "" {
			cfg.Shark.Cache = "memory"
		}
		if cfg.Shark.RatePerMinute == 0 {
			cfg.Shark.RatePerMinute = DefaultRatePerMinute
		}
	}

	if cfg.Messaging.Backend == "" {
		cfg.Messaging.Backend = "none"
	}
	if cfg.Messaging.TopicPrefix == "" {
		cfg.Messaging.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Messaging.MQTT.Port == 0 {
		cfg.Messaging.MQTT.Port = 1883
	}
	if cfg.Messaging.MQTT.ClientID == "" {
		cfg.Messaging.MQTT.ClientID = "sharkd"
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}
	if cfg.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}

	if cfg.Blob.Enabled() {
		if cfg.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required")
		}
		if cfg.Blob.AccessKeyFile == "" {
			return fmt.Errorf("blob.access_key_file is required")
		}
		if cfg.Blob.SecretKeyFile == "" {
			return fmt.Errorf("blob.secret_key_file is required")
		}
	}

	if cfg.Shark != nil {
		switch cfg.Shark.Cache {
		case "memory":
		case "redis":
			if cfg.Shark.RedisAddr == "" {
				return fmt.Errorf("shark.redis_addr is required when shark.cache is redis")
			}
		default:
			return fmt.Errorf("shark.cache must be memory or redis, got %q", cfg.Shark.Cache)
		}
		if cfg.Shark.ArchiveMaps && !cfg.Blob.Enabled() {
			return fmt.Errorf("shark.archive_maps requires blob.endpoint")
		}
		if cfg.Shark.RatePerMinute < 0 {
			return fmt.Errorf("shark.rate_per_minute must not be negative")
		}
	}

	switch cfg.Messaging.Backend {
	case "none":
	case "mqtt":
		if cfg.Messaging.MQTT.Broker == "" {
			return fmt.Errorf("messaging.mqtt.broker is required")
		}
	case "kafka":
		if len(cfg.Messaging.Kafka.Brokers) == 0 {
			return fmt.Errorf("messaging.kafka.brokers is required")
		}
	default:
		return fmt.Errorf("messaging.backend must be none, mqtt or kafka, got %q", cfg.Messaging.Backend)
	}

	return nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.Shark != nil {
		enabled["shark"] = true
	}
	return enabled
}

// RefreshEvery returns the session refresh cadence, zero when disabled.
func (s SessionConfig) RefreshEvery() time.Duration {
	if s.RefreshEnabled != nil && !*s.RefreshEnabled {
		return 0
	}
	if s.RefreshInterval > 0 {
		return s.RefreshInterval
	}
	return DefaultRefreshInterval
}
