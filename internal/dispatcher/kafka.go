package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig holds configuration for the Kafka dispatcher.
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	BufferSize int // pending events buffer (default: 10000)
	Workers    int // concurrent produce goroutines (default: 2)
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 10000
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	return c
}

// KafkaDispatcher publishes lifecycle events to a single Kafka topic,
// keyed by run ID so one run's events stay ordered within a partition.
// Event destinations are ignored; consumers subscribe to the topic.
type KafkaDispatcher struct {
	queue   chan *Event
	writer  *kafka.Writer
	config  KafkaConfig
	logger  *slog.Logger
	metrics MetricsRecorder

	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// NewKafka creates a dispatcher producing to the configured topic.
func NewKafka(cfg KafkaConfig, metrics MetricsRecorder, logger *slog.Logger) (*KafkaDispatcher, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka dispatcher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka dispatcher requires a topic")
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &KafkaDispatcher{
		queue: make(chan *Event, cfg.BufferSize),
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		config:   cfg,
		logger:   logger.With("component", "kafka-dispatcher"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}

	d.logger.Info("Kafka dispatcher started", "topic", cfg.Topic, "brokers", cfg.Brokers)
	return d, nil
}

// Dispatch queues an event for async delivery.
func (d *KafkaDispatcher) Dispatch(event *Event) error {
	if d.closed.Load() {
		return fmt.Errorf("dispatcher is closed")
	}

	select {
	case d.queue <- event:
		d.queued.Add(1)
		return nil
	default:
		d.dropped.Add(1)
		if d.metrics != nil {
			d.metrics.RecordDispatcherDropped(context.Background())
		}
		d.logger.Warn("Event dropped, buffer full", "type", event.Payload.Type)
		return ErrBufferFull
	}
}

// Stats returns current dispatcher statistics.
func (d *KafkaDispatcher) Stats() Stats {
	return Stats{
		QueueDepth: len(d.queue),
		Queued:     d.queued.Load(),
		Delivered:  d.delivered.Load(),
		Failed:     d.failed.Load(),
		Dropped:    d.dropped.Load(),
	}
}

// Close drains the queue and closes the writer.
func (d *KafkaDispatcher) Close(ctx context.Context) error {
	if d.closed.Swap(true) {
		return nil // already closed
	}

	close(d.shutdown)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return d.writer.Close()
	case <-ctx.Done():
		d.logger.Warn("Kafka dispatcher shutdown timed out", "remaining", len(d.queue))
		return ctx.Err()
	}
}

func (d *KafkaDispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.shutdown:
			for {
				select {
				case event := <-d.queue:
					d.produce(event)
				default:
					return
				}
			}
		case event := <-d.queue:
			d.produce(event)
		}
	}
}

func (d *KafkaDispatcher) produce(event *Event) {
	value, err := json.Marshal(event.Payload)
	if err != nil {
		d.failed.Add(1)
		d.logger.Error("Failed to encode event", "type", event.Payload.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	msg := kafka.Message{
		Key:   []byte(event.Payload.Subject),
		Value: value,
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		d.failed.Add(1)
		if d.metrics != nil {
			d.metrics.RecordDispatcherFailed(ctx)
		}
		d.logger.Warn("Produce failed", "type", event.Payload.Type, "error", err)
		return
	}

	d.delivered.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDispatcherDelivered(ctx, time.Since(start).Seconds())
	}
}

// Verify KafkaDispatcher implements Dispatcher
var _ Dispatcher = (*KafkaDispatcher)(nil)
