package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the daemon.
type Config struct {
	Device  DeviceConfig  `mapstructure:"device"`
	Polling PollingConfig `mapstructure:"polling"`
	History HistoryConfig `mapstructure:"history"`
	Server  ServerConfig  `mapstructure:"server"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DeviceConfig identifies the Touchline controller to poll.
type DeviceConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	MaxZones int    `mapstructure:"max_zones"`
}

type PollingConfig struct {
	IntervalSeconds       int `mapstructure:"interval_seconds"`
	TimeoutSeconds        int `mapstructure:"timeout_seconds"`
	RetryThreshold        int `mapstructure:"retry_threshold"`
	BackoffInitialSeconds int `mapstructure:"backoff_initial_seconds"`
	BackoffMaxSeconds     int `mapstructure:"backoff_max_seconds"`
}

type HistoryConfig struct {
	RetentionDays int    `mapstructure:"retention_days"`
	DBPath        string `mapstructure:"db_path"`
}

type ServerConfig struct {
	Port           int     `mapstructure:"port"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	CacheSize      int     `mapstructure:"cache_size"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ValidationError reports an invalid configuration value. It is fatal at
// setup and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Load reads configuration from the given YAML file, applying defaults and
// environment overrides (TOUCHLINED_DEVICE_HOST and friends).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("TOUCHLINED")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.port", 80)
	v.SetDefault("device.max_zones", 7)

	v.SetDefault("polling.interval_seconds", 30)
	v.SetDefault("polling.timeout_seconds", 10)
	v.SetDefault("polling.retry_threshold", 3)
	v.SetDefault("polling.backoff_initial_seconds", 5)
	v.SetDefault("polling.backoff_max_seconds", 60)

	v.SetDefault("history.retention_days", 30)
	v.SetDefault("history.db_path", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_limit_burst", 10)
	v.SetDefault("server.cache_size", 256)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.topic_prefix", "touchline")
	v.SetDefault("mqtt.client_id", "touchlined")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Device.Host == "" {
		return &ValidationError{Field: "device.host", Reason: "must not be empty"}
	}
	if c.Device.Port < 1 || c.Device.Port > 65535 {
		return &ValidationError{Field: "device.port", Reason: fmt.Sprintf("%d is not a valid port", c.Device.Port)}
	}
	if c.Device.MaxZones < 1 || c.Device.MaxZones > 20 {
		return &ValidationError{Field: "device.max_zones", Reason: fmt.Sprintf("%d is outside [1, 20]", c.Device.MaxZones)}
	}
	if c.Polling.IntervalSeconds < 1 {
		return &ValidationError{Field: "polling.interval_seconds", Reason: "must be positive"}
	}
	if c.Polling.RetryThreshold < 1 {
		return &ValidationError{Field: "polling.retry_threshold", Reason: "must be positive"}
	}
	if c.Polling.BackoffInitialSeconds < 1 || c.Polling.BackoffMaxSeconds < c.Polling.BackoffInitialSeconds {
		return &ValidationError{Field: "polling.backoff", Reason: "initial must be positive and not exceed max"}
	}
	if c.History.RetentionDays < 1 {
		return &ValidationError{Field: "history.retention_days", Reason: "must be positive"}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return &ValidationError{Field: "mqtt.broker", Reason: "required when mqtt is enabled"}
	}
	return nil
}

// PollInterval returns the scheduler interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Polling.IntervalSeconds) * time.Second
}

// PollTimeout returns the per-request timeout as a duration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Polling.TimeoutSeconds) * time.Second
}
