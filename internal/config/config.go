package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/simple-weather-service/internal/traffic"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort     string
	RequestTimeout time.Duration

	FreshnessWindow time.Duration

	MaxMessageBytes int64
	RateLimitRPS    int
	RateLimitBurst  int

	MQTTEnabled  bool
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string
	MQTTQoS      byte

	HealthWindow      time.Duration
	HealthIgnoredPct  int
	HealthMinMessages int

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Freshness struct {
		Window string `yaml:"window"`
	} `yaml:"freshness"`

	Ingest struct {
		MaxMessageBytes int64 `yaml:"max_message_bytes"`
		RateLimitRPS    int   `yaml:"rate_limit_rps"`
		RateLimitBurst  int   `yaml:"rate_limit_burst"`
	} `yaml:"ingest"`

	MQTT struct {
		Enabled  *bool  `yaml:"enabled"`
		Broker   string `yaml:"broker"`
		Port     int    `yaml:"port"`
		ClientID string `yaml:"client_id"`
		Topic    string `yaml:"topic"`
		QoS      *int   `yaml:"qos"`
	} `yaml:"mqtt"`

	Health struct {
		Window      string `yaml:"window"`
		IgnoredPct  int    `yaml:"ignored_pct"`
		MinMessages int    `yaml:"min_messages"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) relative to the working
// directory. MQTT_ENABLED and MQTT_BROKER override the file. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes, applying env overrides, defaults and validation.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)
	cfg.FreshnessWindow = parseDurationOrZero(fc.Freshness.Window, 24*time.Hour)

	cfg.MaxMessageBytes = fc.Ingest.MaxMessageBytes
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 512
	}
	cfg.RateLimitRPS = fc.Ingest.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	cfg.RateLimitBurst = fc.Ingest.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}

	if fc.MQTT.Enabled != nil {
		cfg.MQTTEnabled = *fc.MQTT.Enabled
	}
	if v := strings.TrimSpace(os.Getenv("MQTT_ENABLED")); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MQTT_ENABLED %q: %w", v, err)
		}
		cfg.MQTTEnabled = enabled
	}
	cfg.MQTTBroker = strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if cfg.MQTTBroker == "" {
		cfg.MQTTBroker = strings.TrimSpace(fc.MQTT.Broker)
	}
	if cfg.MQTTBroker == "" {
		cfg.MQTTBroker = "localhost"
	}
	cfg.MQTTPort = fc.MQTT.Port
	if cfg.MQTTPort <= 0 {
		cfg.MQTTPort = 1883
	}
	cfg.MQTTClientID = strings.TrimSpace(fc.MQTT.ClientID)
	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = "simple-weather-service"
	}
	cfg.MQTTTopic = strings.TrimSpace(fc.MQTT.Topic)
	if cfg.MQTTTopic == "" {
		cfg.MQTTTopic = "weather/simple"
	}
	cfg.MQTTQoS = 1
	if fc.MQTT.QoS != nil {
		if *fc.MQTT.QoS < 0 || *fc.MQTT.QoS > 2 {
			return nil, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", *fc.MQTT.QoS)
		}
		cfg.MQTTQoS = byte(*fc.MQTT.QoS)
	}

	cfg.HealthWindow = parseDuration(fc.Health.Window, 15*time.Minute)
	cfg.HealthIgnoredPct = fc.Health.IgnoredPct
	if cfg.HealthIgnoredPct <= 0 {
		cfg.HealthIgnoredPct = 50
	}
	cfg.HealthMinMessages = fc.Health.MinMessages
	if cfg.HealthMinMessages <= 0 {
		cfg.HealthMinMessages = 5
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 10*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.FreshnessWindow < time.Second {
		return fmt.Errorf("freshness.window must be at least 1s, got %v", cfg.FreshnessWindow)
	}
	if cfg.HealthWindow > traffic.Retention {
		return fmt.Errorf("health.window must not exceed %v (ingest outcome retention), got %v", traffic.Retention, cfg.HealthWindow)
	}
	if cfg.HealthIgnoredPct > 100 {
		return fmt.Errorf("health.ignored_pct must be between 1 and 100, got %d", cfg.HealthIgnoredPct)
	}
	return nil
}
