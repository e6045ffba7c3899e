package circuitbreaker

import (
	"testing"
	"time"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 3, Cooldown: time.Minute})

	if b.State() != Closed {
		t.Fatalf("new breaker state = %v, want closed", b.State())
	}

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != Closed {
		t.Errorf("state after 2 failures = %v, want closed", b.State())
	}

	b.RecordFailure()
	if b.State() != Open {
		t.Errorf("state after 3 failures = %v, want open", b.State())
	}
	if b.Allow() {
		t.Error("open breaker allowed a request before cooldown")
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 3, Cooldown: time.Minute})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != Closed {
		t.Errorf("state = %v, want closed (failures not consecutive)", b.State())
	}
	if b.Failures() != 2 {
		t.Errorf("failures = %d, want 2", b.Failures())
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 1, Cooldown: 10 * time.Millisecond})

	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected probe allowed after cooldown")
	}
	if b.State() != HalfOpen {
		t.Errorf("state = %v, want half-open", b.State())
	}
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 1, Cooldown: 10 * time.Millisecond})

	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected first probe allowed")
	}
	if b.Allow() {
		t.Error("second concurrent probe allowed in half-open")
	}

	b.RecordSuccess()
	if b.State() != Closed {
		t.Errorf("state after successful probe = %v, want closed", b.State())
	}
	if !b.Allow() {
		t.Error("closed breaker rejected a request")
	}
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 1, Cooldown: 10 * time.Millisecond})

	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected probe allowed")
	}
	b.RecordFailure()

	if b.State() != Open {
		t.Errorf("state after failed probe = %v, want open", b.State())
	}
	if b.Allow() {
		t.Error("reopened breaker allowed a request")
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 1, Cooldown: time.Minute})

	b.RecordFailure()
	b.Reset()

	if b.State() != Closed {
		t.Errorf("state after reset = %v, want closed", b.State())
	}
	if b.Failures() != 0 {
		t.Errorf("failures after reset = %d, want 0", b.Failures())
	}
}

func TestRegistry_LazyCreation(t *testing.T) {
	t.Parallel()
	r := NewRegistry(Config{Threshold: 2, Cooldown: time.Minute})

	a := r.Get("host-a")
	if a == nil {
		t.Fatal("Get returned nil")
	}
	if r.Get("host-a") != a {
		t.Error("Get returned a different breaker for the same key")
	}
	if r.Get("host-b") == a {
		t.Error("distinct keys share a breaker")
	}
}

func TestRegistry_Stats(t *testing.T) {
	t.Parallel()
	r := NewRegistry(Config{Threshold: 1, Cooldown: time.Minute})

	r.Get("ok")
	bad := r.Get("bad")
	bad.RecordFailure()

	stats := r.Stats()
	if stats.Total != 2 {
		t.Errorf("total = %d, want 2", stats.Total)
	}
	if stats.Open != 1 {
		t.Errorf("open = %d, want 1", stats.Open)
	}
	if stats.Closed != 1 {
		t.Errorf("closed = %d, want 1", stats.Closed)
	}
}

func TestRegistry_Reset(t *testing.T) {
	t.Parallel()
	r := NewRegistry(Config{Threshold: 1, Cooldown: time.Minute})

	r.Get("a").RecordFailure()
	r.Get("b").RecordFailure()
	r.Reset()

	stats := r.Stats()
	if stats.Open != 0 {
		t.Errorf("open after reset = %d, want 0", stats.Open)
	}
}
