package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for all sessionstate instruments.
const MeterName = "sessionstate"

// MetricsRecorder records session and checkpoint metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordOperation records a manager operation with its duration and error status.
	RecordOperation(ctx context.Context, op string, duration time.Duration, err error)

	// RecordCheckpoint records a checkpoint save and its payload size.
	RecordCheckpoint(ctx context.Context, phase string, sizeBytes int64)

	// RecordRecovery records a recovery. resumed is false when the session
	// had no checkpoint.
	RecordRecovery(ctx context.Context, resumed bool)

	// RecordRetention records the sessions removed by a retention sweep.
	RecordRetention(ctx context.Context, deleted int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	operations       metric.Int64Counter
	operationLatency metric.Float64Histogram
	operationErrors  metric.Int64Counter
	checkpointSize   metric.Int64Histogram
	recoveries       metric.Int64Counter
	retentionDeleted metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter(MeterName)

	operations, err := meter.Int64Counter("sessionstate.operations",
		metric.WithDescription("Number of manager operations"),
	)
	if err != nil {
		return nil, err
	}

	operationLatency, err := meter.Float64Histogram("sessionstate.operation.latency_ms",
		metric.WithDescription("Manager operation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	operationErrors, err := meter.Int64Counter("sessionstate.operation.errors",
		metric.WithDescription("Number of failed manager operations"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("sessionstate.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint payload size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	recoveries, err := meter.Int64Counter("sessionstate.recoveries",
		metric.WithDescription("Number of session recoveries"),
	)
	if err != nil {
		return nil, err
	}

	retentionDeleted, err := meter.Int64Counter("sessionstate.retention.deleted",
		metric.WithDescription("Number of sessions removed by retention"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		operations:       operations,
		operationLatency: operationLatency,
		operationErrors:  operationErrors,
		checkpointSize:   checkpointSize,
		recoveries:       recoveries,
		retentionDeleted: retentionDeleted,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordOperation records a manager operation.
func (m *otelMetrics) RecordOperation(ctx context.Context, op string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", op))

	m.operations.Add(ctx, 1, attrs)
	m.operationLatency.Record(ctx, Milliseconds(duration), attrs)
	if err != nil {
		m.operationErrors.Add(ctx, 1, attrs)
	}
}

// RecordCheckpoint records a checkpoint save.
func (m *otelMetrics) RecordCheckpoint(ctx context.Context, phase string, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("phase", phase)))
}

// RecordRecovery records a recovery.
func (m *otelMetrics) RecordRecovery(ctx context.Context, resumed bool) {
	m.recoveries.Add(ctx, 1, metric.WithAttributes(attribute.Bool("resumed", resumed)))
}

// RecordRetention records a retention sweep.
func (m *otelMetrics) RecordRetention(ctx context.Context, deleted int) {
	m.retentionDeleted.Add(ctx, int64(deleted))
}
