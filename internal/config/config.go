// Package config provides configuration loading from environment variables
// with an optional YAML file overlay.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceConfig holds configuration for the pipeline service.
type ServiceConfig struct {
	Port              string        `yaml:"port"`
	MetricsPort       string        `yaml:"metrics_port"`
	APIKey            string        `yaml:"-"`
	ShutdownDrainWait time.Duration `yaml:"shutdown_drain_wait"` // Time to wait for load balancer to drain (0 to skip)

	Backend    BackendConfig    `yaml:"backend"`
	Poll       PollConfig       `yaml:"poll"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
}

// BackendConfig holds settings for the remote churn API.
type BackendConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"` // transient retries per request
}

// PollSpec configures polling cadence for one stage.
// MaxAttempts 0 means poll until the backend reports a terminal state.
type PollSpec struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// PollConfig holds per-stage polling settings. Only FeatureProcessing
// carries an attempt ceiling by default; Training and Prediction trust the
// backend to eventually report a terminal state.
type PollConfig struct {
	FeatureProcessing PollSpec `yaml:"feature_processing"`
	Training          PollSpec `yaml:"training"`
	Prediction        PollSpec `yaml:"prediction"`
}

// DispatcherConfig selects and configures the lifecycle-event dispatcher.
type DispatcherConfig struct {
	Kind        string        `yaml:"kind"` // "memory" (HTTP callbacks) or "kafka"
	BufferSize  int           `yaml:"buffer_size"`
	Workers     int           `yaml:"workers"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	SigningKey  string        `yaml:"-"`
	Kafka       KafkaConfig   `yaml:"kafka"`
}

// KafkaConfig holds Kafka dispatcher settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Load builds the service configuration: defaults, then YAML file overlay
// (CONFIG_FILE, default config.yaml if present), then environment overrides.
func Load() (*ServiceConfig, error) {
	cfg := defaults()

	path := GetEnv("CONFIG_FILE", "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.Getenv("CONFIG_FILE") != "" {
		// An explicitly configured file must exist
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *ServiceConfig {
	return &ServiceConfig{
		Port:              "8080",
		MetricsPort:       "9090",
		ShutdownDrainWait: 5 * time.Second,
		Backend: BackendConfig{
			BaseURL:    "http://localhost:8000/api/v1",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Poll: PollConfig{
			FeatureProcessing: PollSpec{Interval: 3 * time.Second, MaxAttempts: 20},
			Training:          PollSpec{Interval: 5 * time.Second, MaxAttempts: 0},
			Prediction:        PollSpec{Interval: 3 * time.Second, MaxAttempts: 0},
		},
		Dispatcher: DispatcherConfig{
			Kind:        "memory",
			BufferSize:  10000,
			Workers:     10,
			HTTPTimeout: 10 * time.Second,
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "churnpipe-events",
			},
		},
	}
}

func applyEnv(cfg *ServiceConfig) {
	cfg.Port = GetEnv("PORT", cfg.Port)
	cfg.MetricsPort = GetEnv("METRICS_PORT", cfg.MetricsPort)
	cfg.APIKey = GetSecretFile(GetEnv("API_KEY_FILE", ""))
	cfg.ShutdownDrainWait = GetDurationEnv("SHUTDOWN_DRAIN_WAIT", cfg.ShutdownDrainWait)

	cfg.Backend.BaseURL = GetEnv("CHURN_API_URL", cfg.Backend.BaseURL)
	cfg.Backend.Timeout = GetDurationEnv("CHURN_API_TIMEOUT", cfg.Backend.Timeout)
	cfg.Backend.MaxRetries = GetIntEnv("CHURN_API_MAX_RETRIES", cfg.Backend.MaxRetries)

	cfg.Dispatcher.Kind = GetEnv("DISPATCHER_KIND", cfg.Dispatcher.Kind)
	cfg.Dispatcher.BufferSize = GetIntEnv("DISPATCHER_BUFFER_SIZE", cfg.Dispatcher.BufferSize)
	cfg.Dispatcher.Workers = GetIntEnv("DISPATCHER_WORKERS", cfg.Dispatcher.Workers)
	cfg.Dispatcher.HTTPTimeout = GetDurationEnv("DISPATCHER_HTTP_TIMEOUT", cfg.Dispatcher.HTTPTimeout)
	cfg.Dispatcher.SigningKey = GetSecretFile(GetEnv("DISPATCHER_SIGNING_KEY_FILE", ""))
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Dispatcher.Kafka.Brokers = []string{v}
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Dispatcher.Kafka.Topic = v
	}
}
