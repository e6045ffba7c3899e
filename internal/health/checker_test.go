package health

import (
	"context"
	"errors"
	"testing"
)

type fakeBackend struct {
	err error
}

func (f *fakeBackend) Ping(ctx context.Context) error { return f.err }

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	response := checker.Liveness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_NoBackend(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}

	backendCheck, ok := response.Checks["backend"]
	if !ok {
		t.Fatal("Expected backend check to be present")
	}

	if backendCheck.Status != StatusUnhealthy {
		t.Errorf("Expected backend check to be unhealthy, got %s", backendCheck.Status)
	}
}

func TestChecker_Readiness_BackendStates(t *testing.T) {
	t.Parallel()

	healthy := NewChecker(&fakeBackend{})
	if resp := healthy.Readiness(context.Background()); !resp.IsHealthy() {
		t.Errorf("Expected healthy readiness, got %s", resp.Status)
	}

	down := NewChecker(&fakeBackend{err: errors.New("connection refused")})
	resp := down.Readiness(context.Background())
	if resp.IsHealthy() {
		t.Error("Expected unhealthy readiness with unreachable backend")
	}
	if resp.Checks["backend"].Message != "connection refused" {
		t.Errorf("Expected backend error message, got %q", resp.Checks["backend"].Message)
	}
}

func TestChecker_Readiness_ShuttingDown(t *testing.T) {
	t.Parallel()

	checker := NewChecker(&fakeBackend{})
	checker.SetShuttingDown()

	response := checker.Readiness(context.Background())
	if response.IsHealthy() {
		t.Error("Expected unhealthy readiness while shutting down")
	}
	if _, ok := response.Checks["shutdown"]; !ok {
		t.Error("Expected shutdown check to be present")
	}
}

func TestResponse_IsHealthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"healthy", StatusHealthy, true},
		{"unhealthy", StatusUnhealthy, false},
		{"degraded", StatusDegraded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := &Response{Status: tt.status}
			if response.IsHealthy() != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", response.IsHealthy(), tt.expected)
			}
		})
	}
}
