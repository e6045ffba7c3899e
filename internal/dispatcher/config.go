package dispatcher

import (
	"fmt"
	"log/slog"
	"time"

	"churnpipe/internal/config"
)

// Hardcoded delivery defaults - these rarely need tuning.
const (
	defaultMaxRetries       = 3
	defaultInitialBackoff   = 100 * time.Millisecond
	defaultMaxBackoff       = 5 * time.Second
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultMaxRequeues      = 10
)

// MemoryConfig holds configuration for the in-memory dispatcher.
type MemoryConfig struct {
	BufferSize  int           // pending events buffer (default: 10000)
	Workers     int           // concurrent delivery goroutines (default: 10)
	HTTPTimeout time.Duration // per-request timeout (default: 10s)
}

// withDefaults fills in zero values with defaults.
func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 10000
	}
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}

// New builds the dispatcher selected by cfg.Kind.
func New(cfg config.DispatcherConfig, metrics MetricsRecorder, logger *slog.Logger) (Dispatcher, error) {
	switch cfg.Kind {
	case "", "memory":
		mc := MemoryConfig{
			BufferSize:  cfg.BufferSize,
			Workers:     cfg.Workers,
			HTTPTimeout: cfg.HTTPTimeout,
		}
		return NewMemory(mc, metrics, logger), nil
	case "kafka":
		kc := KafkaConfig{
			Brokers:    cfg.Kafka.Brokers,
			Topic:      cfg.Kafka.Topic,
			BufferSize: cfg.BufferSize,
			Workers:    cfg.Workers,
		}
		return NewKafka(kc, metrics, logger)
	default:
		return nil, fmt.Errorf("unknown dispatcher kind %q", cfg.Kind)
	}
}
