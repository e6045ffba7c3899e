package dispatcher

import (
	"context"
	"testing"
	"time"

	"churnpipe/internal/config"
)

func TestMemoryConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := MemoryConfig{}.withDefaults()
	if cfg.BufferSize != 10000 {
		t.Errorf("BufferSize = %d, want 10000", cfg.BufferSize)
	}
	if cfg.Workers != 10 {
		t.Errorf("Workers = %d, want 10", cfg.Workers)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("HTTPTimeout = %v, want 10s", cfg.HTTPTimeout)
	}

	custom := MemoryConfig{BufferSize: 5, Workers: 1, HTTPTimeout: time.Second}.withDefaults()
	if custom.BufferSize != 5 || custom.Workers != 1 || custom.HTTPTimeout != time.Second {
		t.Errorf("explicit values overwritten: %+v", custom)
	}
}

func TestNewSelectsKind(t *testing.T) {
	t.Parallel()

	d, err := New(config.DispatcherConfig{Kind: "memory"}, nil, nil)
	if err != nil {
		t.Fatalf("New(memory): %v", err)
	}
	if _, ok := d.(*MemoryDispatcher); !ok {
		t.Fatalf("New(memory) returned %T", d)
	}
	d.Close(context.Background())

	// Empty kind falls back to memory.
	d, err = New(config.DispatcherConfig{}, nil, nil)
	if err != nil {
		t.Fatalf("New(default): %v", err)
	}
	if _, ok := d.(*MemoryDispatcher); !ok {
		t.Fatalf("New(default) returned %T", d)
	}
	d.Close(context.Background())

	if _, err := New(config.DispatcherConfig{Kind: "carrier-pigeon"}, nil, nil); err == nil {
		t.Fatal("unknown kind accepted")
	}
}

func TestNewKafkaValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewKafka(KafkaConfig{Topic: "events"}, nil, nil); err == nil {
		t.Fatal("missing brokers accepted")
	}
	if _, err := NewKafka(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil, nil); err == nil {
		t.Fatal("missing topic accepted")
	}
}
