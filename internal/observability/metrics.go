package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/stages take
// - Traffic: Request/stage throughput
// - Errors: Rate of failures
// - Saturation: Resource utilization (active pollers, dispatcher queue)
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Pipeline metrics (Latency, Traffic, Errors, Saturation)
	StageDuration    metric.Float64Histogram
	StagesTotal      metric.Int64Counter
	StageErrorsTotal metric.Int64Counter
	PollAttempts     metric.Int64Counter
	PollersActive    metric.Int64UpDownCounter
	RunsCompleted    metric.Int64Counter

	// Dispatcher metrics (Latency, Traffic, Errors, Saturation)
	DispatcherDuration   metric.Float64Histogram
	DispatcherDelivered  metric.Int64Counter
	DispatcherFailed     metric.Int64Counter
	DispatcherDropped    metric.Int64Counter
	DispatcherRequeued   metric.Int64Counter
	DispatcherQueueSize  metric.Int64Gauge
	DispatcherBufferSize int64 // config value for saturation calculation
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("churnpipe")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Pipeline metrics
	m.StageDuration, err = meter.Float64Histogram(
		"pipeline_stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration from start to terminal state in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StagesTotal, err = meter.Int64Counter(
		"pipeline_stages_total",
		metric.WithDescription("Total number of stage starts"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StageErrorsTotal, err = meter.Int64Counter(
		"pipeline_stage_errors_total",
		metric.WithDescription("Total number of stages that ended failed or timed out"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollAttempts, err = meter.Int64Counter(
		"pipeline_poll_attempts_total",
		metric.WithDescription("Total backend status checks made by stage pollers"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollersActive, err = meter.Int64UpDownCounter(
		"pipeline_pollers_active",
		metric.WithDescription("Number of currently running stage pollers (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunsCompleted, err = meter.Int64Counter(
		"pipeline_runs_completed_total",
		metric.WithDescription("Total runs that finished all six stages"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Dispatcher metrics
	m.DispatcherDuration, err = meter.Float64Histogram(
		"dispatcher_duration_seconds",
		metric.WithDescription("Callback delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherDelivered, err = meter.Int64Counter(
		"dispatcher_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherFailed, err = meter.Int64Counter(
		"dispatcher_failed_total",
		metric.WithDescription("Total events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherDropped, err = meter.Int64Counter(
		"dispatcher_dropped_total",
		metric.WithDescription("Total events dropped (buffer full or max requeues)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherRequeued, err = meter.Int64Counter(
		"dispatcher_requeued_total",
		metric.WithDescription("Total events requeued due to open circuit"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherQueueSize, err = meter.Int64Gauge(
		"dispatcher_queue_size",
		metric.WithDescription("Current number of events in dispatcher queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordStageStarted records a stage entering its starting state.
func (m *Metrics) RecordStageStarted(ctx context.Context, stage string) {
	m.StagesTotal.Add(ctx, 1, metric.WithAttributes(stageAttr(stage)))
}

// RecordStageCompleted records a stage reaching a terminal state.
func (m *Metrics) RecordStageCompleted(ctx context.Context, stage string, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(stageAttr(stage), successAttr(success))
	m.StageDuration.Record(ctx, durationSeconds, attrs)

	if !success {
		m.StageErrorsTotal.Add(ctx, 1, metric.WithAttributes(stageAttr(stage)))
	}
}

// RecordPollAttempt records one backend status check.
func (m *Metrics) RecordPollAttempt(ctx context.Context, stage string) {
	m.PollAttempts.Add(ctx, 1, metric.WithAttributes(stageAttr(stage)))
}

// AddActivePollers adjusts the active poller count.
func (m *Metrics) AddActivePollers(ctx context.Context, delta int64) {
	m.PollersActive.Add(ctx, delta)
}

// RecordRunCompleted records a run finishing its final stage.
func (m *Metrics) RecordRunCompleted(ctx context.Context) {
	m.RunsCompleted.Add(ctx, 1)
}

// RecordDispatcherDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordDispatcherDelivered(ctx context.Context, durationSeconds float64) {
	m.DispatcherDelivered.Add(ctx, 1)
	m.DispatcherDuration.Record(ctx, durationSeconds)
}

// RecordDispatcherFailed records a failed event delivery.
func (m *Metrics) RecordDispatcherFailed(ctx context.Context) {
	m.DispatcherFailed.Add(ctx, 1)
}

// RecordDispatcherDropped records a dropped event.
func (m *Metrics) RecordDispatcherDropped(ctx context.Context) {
	m.DispatcherDropped.Add(ctx, 1)
}

// RecordDispatcherRequeued records a requeued event.
func (m *Metrics) RecordDispatcherRequeued(ctx context.Context) {
	m.DispatcherRequeued.Add(ctx, 1)
}

// RecordDispatcherQueueSize records the current queue size.
func (m *Metrics) RecordDispatcherQueueSize(ctx context.Context, size int64) {
	m.DispatcherQueueSize.Record(ctx, size)
}
