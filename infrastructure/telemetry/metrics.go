// Package telemetry provides observability infrastructure including
// OpenTelemetry metrics support for the session cache engine.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsProvider provides access to metrics instruments.
type MetricsProvider struct {
	meter metric.Meter

	// Counters
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	evictions      metric.Int64Counter
	promotions     metric.Int64Counter
	syncAttempts   metric.Int64Counter
	syncFailures   metric.Int64Counter
	expiredRemoved metric.Int64Counter
	errors         metric.Int64Counter

	// Histograms
	opDuration   metric.Float64Histogram
	syncDuration metric.Float64Histogram

	// Gauges (using UpDownCounter for OpenTelemetry)
	pendingEntries metric.Int64UpDownCounter
	offlineMode    metric.Int64UpDownCounter

	initOnce sync.Once
	initErr  error
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the name of the meter.
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
	// Attributes are default attributes to attach to all metrics.
	Attributes []attribute.KeyValue
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/wilson323/llmchat-sub005",
		MeterVersion: "1.0.0",
	}
}

// NewMetricsProvider creates a new metrics provider.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		config = DefaultMetricsConfig()
	}

	provider := otel.GetMeterProvider()
	meter := provider.Meter(
		config.MeterName,
		metric.WithInstrumentationVersion(config.MeterVersion),
	)

	mp := &MetricsProvider{
		meter: meter,
	}

	mp.initOnce.Do(func() {
		mp.initErr = mp.initInstruments()
	})

	return mp
}

// initInstruments initializes all metric instruments.
func (mp *MetricsProvider) initInstruments() error {
	var err error

	// Counters
	mp.cacheHits, err = mp.meter.Int64Counter(
		"cache.hits",
		metric.WithDescription("Number of cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	mp.cacheMisses, err = mp.meter.Int64Counter(
		"cache.misses",
		metric.WithDescription("Number of cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return err
	}

	mp.evictions, err = mp.meter.Int64Counter(
		"cache.evictions",
		metric.WithDescription("Number of entries evicted for capacity"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return err
	}

	mp.promotions, err = mp.meter.Int64Counter(
		"cache.promotions",
		metric.WithDescription("Number of entries promoted to the volatile tier"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return err
	}

	mp.syncAttempts, err = mp.meter.Int64Counter(
		"cache.sync.attempts",
		metric.WithDescription("Number of remote sync attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	mp.syncFailures, err = mp.meter.Int64Counter(
		"cache.sync.failures",
		metric.WithDescription("Number of remote sync failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return err
	}

	mp.expiredRemoved, err = mp.meter.Int64Counter(
		"cache.expired.removed",
		metric.WithDescription("Number of expired entries removed by cleanup"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return err
	}

	mp.errors, err = mp.meter.Int64Counter(
		"cache.errors",
		metric.WithDescription("Number of errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	// Histograms
	mp.opDuration, err = mp.meter.Float64Histogram(
		"cache.operation.duration",
		metric.WithDescription("Duration of cache operations"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	mp.syncDuration, err = mp.meter.Float64Histogram(
		"cache.sync.duration",
		metric.WithDescription("Duration of remote sync batches"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	// Gauges (UpDownCounters)
	mp.pendingEntries, err = mp.meter.Int64UpDownCounter(
		"cache.sync.pending",
		metric.WithDescription("Number of entries awaiting remote sync"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return err
	}

	mp.offlineMode, err = mp.meter.Int64UpDownCounter(
		"cache.offline",
		metric.WithDescription("1 while the sync engine is offline"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Error returns any initialization error.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

// RecordHit records a cache hit on the given tier.
func (mp *MetricsProvider) RecordHit(ctx context.Context, tier string) {
	mp.cacheHits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.tier", tier),
	))
}

// RecordMiss records a cache miss.
func (mp *MetricsProvider) RecordMiss(ctx context.Context) {
	mp.cacheMisses.Add(ctx, 1)
}

// RecordEviction records entries evicted from a tier for capacity.
func (mp *MetricsProvider) RecordEviction(ctx context.Context, tier string, count int64) {
	mp.evictions.Add(ctx, count, metric.WithAttributes(
		attribute.String("cache.tier", tier),
	))
}

// RecordPromotion records an entry promoted from the durable tier.
func (mp *MetricsProvider) RecordPromotion(ctx context.Context) {
	mp.promotions.Add(ctx, 1)
}

// RecordSyncAttempt records a remote sync attempt and its outcome.
func (mp *MetricsProvider) RecordSyncAttempt(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}

	mp.syncAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
	mp.syncDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if !success {
		mp.syncFailures.Add(ctx, 1)
	}
}

// RecordExpiredRemoved records entries removed by a cleanup pass.
func (mp *MetricsProvider) RecordExpiredRemoved(ctx context.Context, tier string, count int64) {
	mp.expiredRemoved.Add(ctx, count, metric.WithAttributes(
		attribute.String("cache.tier", tier),
	))
}

// RecordError records an error.
func (mp *MetricsProvider) RecordError(ctx context.Context, errorType string) {
	mp.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.type", errorType),
	))
}

// RecordOperationDuration records the duration of a cache operation.
func (mp *MetricsProvider) RecordOperationDuration(ctx context.Context, operation string, duration time.Duration) {
	mp.opDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("cache.operation", operation),
	))
}

// AddPending adjusts the pending-sync gauge by delta.
func (mp *MetricsProvider) AddPending(ctx context.Context, delta int64) {
	mp.pendingEntries.Add(ctx, delta)
}

// SetOffline records entering or leaving offline mode.
func (mp *MetricsProvider) SetOffline(ctx context.Context, offline bool) {
	if offline {
		mp.offlineMode.Add(ctx, 1)
	} else {
		mp.offlineMode.Add(ctx, -1)
	}
}

// NoopMetricsProvider is a no-op metrics provider for testing or when metrics are disabled.
type NoopMetricsProvider struct{}

// RecordHit is a no-op.
func (n *NoopMetricsProvider) RecordHit(ctx context.Context, tier string) {}

// RecordMiss is a no-op.
func (n *NoopMetricsProvider) RecordMiss(ctx context.Context) {}

// RecordEviction is a no-op.
func (n *NoopMetricsProvider) RecordEviction(ctx context.Context, tier string, count int64) {}

// RecordPromotion is a no-op.
func (n *NoopMetricsProvider) RecordPromotion(ctx context.Context) {}

// RecordSyncAttempt is a no-op.
func (n *NoopMetricsProvider) RecordSyncAttempt(ctx context.Context, success bool, duration time.Duration) {
}

// RecordExpiredRemoved is a no-op.
func (n *NoopMetricsProvider) RecordExpiredRemoved(ctx context.Context, tier string, count int64) {}

// RecordError is a no-op.
func (n *NoopMetricsProvider) RecordError(ctx context.Context, errorType string) {}

// RecordOperationDuration is a no-op.
func (n *NoopMetricsProvider) RecordOperationDuration(ctx context.Context, operation string, duration time.Duration) {
}

// AddPending is a no-op.
func (n *NoopMetricsProvider) AddPending(ctx context.Context, delta int64) {}

// SetOffline is a no-op.
func (n *NoopMetricsProvider) SetOffline(ctx context.Context, offline bool) {}

// Metrics defines the interface for metrics recording.
type Metrics interface {
	RecordHit(ctx context.Context, tier string)
	RecordMiss(ctx context.Context)
	RecordEviction(ctx context.Context, tier string, count int64)
	RecordPromotion(ctx context.Context)
	RecordSyncAttempt(ctx context.Context, success bool, duration time.Duration)
	RecordExpiredRemoved(ctx context.Context, tier string, count int64)
	RecordError(ctx context.Context, errorType string)
	RecordOperationDuration(ctx context.Context, operation string, duration time.Duration)
	AddPending(ctx context.Context, delta int64)
	SetOffline(ctx context.Context, offline bool)
}

// Ensure implementations satisfy the interface.
var (
	_ Metrics = (*MetricsProvider)(nil)
	_ Metrics = (*NoopMetricsProvider)(nil)
)
