package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/compozy/orderetl/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	// OutcomeInvalidInput marks runs rejected because of malformed documents.
	OutcomeInvalidInput = "invalid_input"
)

// PipelineMetrics exposes instruments that capture ETL run telemetry.
type PipelineMetrics struct {
	runs         metric.Int64Counter
	orders       metric.Int64Counter
	retries      metric.Int64Counter
	runDuration  metric.Float64Histogram
	loadDuration metric.Float64Histogram
	batchSize    metric.Float64Histogram
	lastSuccess  metric.Float64Gauge
}

// NewPipelineMetrics creates the pipeline instruments on meter. A nil meter
// yields a recorder whose methods do nothing.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	if meter == nil {
		return &PipelineMetrics{}, nil
	}
	runs, err := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("pipeline", "runs_total"),
		metric.WithDescription("Pipeline runs grouped by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline runs counter: %w", err)
	}
	orders, err := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("pipeline", "orders_loaded_total"),
		metric.WithDescription("Orders committed to the store"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders loaded counter: %w", err)
	}
	retries, err := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("loader", "retries_total"),
		metric.WithDescription("Batch loads retried after a transient store error"),
	)
	if err != nil {
		return nil, fmt.Errorf("create load retries counter: %w", err)
	}
	runDuration, err := meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("pipeline", "run_duration_seconds"),
		metric.WithDescription("Duration of pipeline runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.RunDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create run duration histogram: %w", err)
	}
	loadDuration, err := meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("loader", "batch_duration_seconds"),
		metric.WithDescription("Duration of one batch transaction in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.LoadDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create load duration histogram: %w", err)
	}
	batchSize, err := meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("loader", "batch_orders"),
		metric.WithDescription("Orders per loaded batch"),
		metric.WithExplicitBucketBoundaries(metrics.BatchSizeBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create batch size histogram: %w", err)
	}
	lastSuccess, err := meter.Float64Gauge(
		metrics.MetricNameWithSubsystem("pipeline", "last_success_timestamp_seconds"),
		metric.WithDescription("Unix time of the last successful pipeline run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create last success gauge: %w", err)
	}
	return &PipelineMetrics{
		runs:         runs,
		orders:       orders,
		retries:      retries,
		runDuration:  runDuration,
		loadDuration: loadDuration,
		batchSize:    batchSize,
		lastSuccess:  lastSuccess,
	}, nil
}

// RecordRun counts a finished run and its duration under outcome.
func (m *PipelineMetrics) RecordRun(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordLoad captures one committed batch.
func (m *PipelineMetrics) RecordLoad(ctx context.Context, driver string, orders int, duration time.Duration) {
	if m == nil || m.orders == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("store_driver", driver))
	m.orders.Add(ctx, int64(orders), attrs)
	m.batchSize.Record(ctx, float64(orders), attrs)
	m.loadDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRetry counts a batch load that is about to be retried.
func (m *PipelineMetrics) RecordRetry(ctx context.Context, driver string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("store_driver", driver)))
}

// RecordLastSuccess stores the completion time of a successful run.
func (m *PipelineMetrics) RecordLastSuccess(ctx context.Context, at time.Time) {
	if m == nil || m.lastSuccess == nil {
		return
	}
	m.lastSuccess.Record(ctx, float64(at.UnixNano())/float64(time.Second))
}
