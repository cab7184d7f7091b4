package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/herdsync/engine/observability"

// Tracer returns a tracer for the given name
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// SyncMetrics holds the engine's sync instruments.
type SyncMetrics struct {
	batchesSubmitted  metric.Int64Counter
	batchesFailed     metric.Int64Counter
	recordsReconciled metric.Int64Counter
	offlineSkips      metric.Int64Counter
	batchDuration     metric.Float64Histogram
}

// NewSyncMetrics creates the sync instruments.
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter(instrumentationName)

	batchesSubmitted, err := meter.Int64Counter(
		"herdsync.sync.batches_submitted",
		metric.WithDescription("Batches accepted by the server"),
		metric.WithUnit("{batches}"),
	)
	if err != nil {
		return nil, err
	}

	batchesFailed, err := meter.Int64Counter(
		"herdsync.sync.batches_failed",
		metric.WithDescription("Batches that failed after retries"),
		metric.WithUnit("{batches}"),
	)
	if err != nil {
		return nil, err
	}

	recordsReconciled, err := meter.Int64Counter(
		"herdsync.sync.records_reconciled",
		metric.WithDescription("Local rows rewritten with server ids"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	offlineSkips, err := meter.Int64Counter(
		"herdsync.sync.offline_skips",
		metric.WithDescription("Sync attempts skipped because the device was offline"),
		metric.WithUnit("{attempts}"),
	)
	if err != nil {
		return nil, err
	}

	batchDuration, err := meter.Float64Histogram(
		"herdsync.sync.batch_duration",
		metric.WithDescription("End-to-end duration of one batch submission"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		batchesSubmitted:  batchesSubmitted,
		batchesFailed:     batchesFailed,
		recordsReconciled: recordsReconciled,
		offlineSkips:      offlineSkips,
		batchDuration:     batchDuration,
	}, nil
}

// RecordBatch records one batch submission outcome.
func (m *SyncMetrics) RecordBatch(ctx context.Context, family string, records int, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{FamilyName(family)}
	if err != nil {
		m.batchesFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		m.batchesSubmitted.Add(ctx, 1, metric.WithAttributes(attrs...))
		m.recordsReconciled.Add(ctx, int64(records), metric.WithAttributes(attrs...))
	}
	m.batchDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordOfflineSkip counts a sync attempt cut short by the offline probe.
func (m *SyncMetrics) RecordOfflineSkip(ctx context.Context) {
	m.offlineSkips.Add(ctx, 1)
}
