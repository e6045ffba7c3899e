package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/livez", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/runs", 201, 0.050)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/runs/abc123", 200, 0.010)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/runs/xyz789", 404, 0.005)
	metrics.RecordHTTPRequest(ctx, "DELETE", "/v1/runs/abc123", 204, 0.100)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/runs", 500, 0.001)
}

func TestRecordPipelineMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordStageStarted(ctx, "feature_processing")
	metrics.RecordPollAttempt(ctx, "feature_processing")
	metrics.AddActivePollers(ctx, 1)
	metrics.RecordStageCompleted(ctx, "feature_processing", true, 9.2)
	metrics.AddActivePollers(ctx, -1)
	metrics.RecordStageCompleted(ctx, "training", false, 120.0)
	metrics.RecordRunCompleted(ctx)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/livez", "/livez"},
		{"/metrics", "/metrics"},
		{"/v1/runs", "/v1/runs"},
		{"/v1/runs/abc123", "/v1/runs/{runId}"},
		{"/v1/runs/abc123/upload", "/v1/runs/{runId}/upload"},
		{"/v1/runs/xyz-789-def/predictions", "/v1/runs/{runId}/predictions"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
