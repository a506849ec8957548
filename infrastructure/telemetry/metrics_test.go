package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupTestMetrics sets up a test meter provider and returns it along with a reader.
func setupTestMetrics(t *testing.T) (*metric.ManualReader, *MetricsProvider) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(provider)

	mp := NewMetricsProvider(DefaultMetricsConfig())
	if mp.Error() != nil {
		t.Fatalf("failed to create metrics provider: %v", mp.Error())
	}

	return reader, mp
}

func collectNames(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestNewMetricsProvider(t *testing.T) {
	reader, mp := setupTestMetrics(t)
	defer reader.Shutdown(context.Background())

	if mp == nil {
		t.Fatal("NewMetricsProvider returned nil")
	}
	if mp.Error() != nil {
		t.Errorf("unexpected error: %v", mp.Error())
	}
}

func TestMetricsProvider_RecordHitMiss(t *testing.T) {
	reader, mp := setupTestMetrics(t)
	defer reader.Shutdown(context.Background())

	ctx := context.Background()

	mp.RecordHit(ctx, "VOLATILE")
	mp.RecordHit(ctx, "DURABLE")
	mp.RecordMiss(ctx)

	metrics := collectNames(t, reader)

	hits, ok := metrics["cache.hits"]
	if !ok {
		t.Fatal("cache.hits metric not found")
	}
	sum, ok := hits.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64], got %T", hits.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("expected 2 hits, got %d", total)
	}

	if _, ok := metrics["cache.misses"]; !ok {
		t.Error("cache.misses metric not found")
	}
}

func TestMetricsProvider_RecordEviction(t *testing.T) {
	reader, mp := setupTestMetrics(t)
	defer reader.Shutdown(context.Background())

	ctx := context.Background()

	mp.RecordEviction(ctx, "VOLATILE", 3)
	mp.RecordEviction(ctx, "DURABLE", 1)

	metrics := collectNames(t, reader)

	m, ok := metrics["cache.evictions"]
	if !ok {
		t.Fatal("cache.evictions metric not found")
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64], got %T", m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 4 {
		t.Errorf("expected 4 evictions, got %d", total)
	}
}

func TestMetricsProvider_RecordPromotion(t *testing.T) {
	reader, mp := setupTestMetrics(t)
	defer reader.Shutdown(context.Background())

	mp.RecordPromotion(context.Background())

	metrics := collectNames(t, reader)
	if _, ok := metrics["cache.promotions"]; !ok {
		t.Error("cache.promotions metric not found")
	}
}

func TestMetricsProvider_RecordSyncAttempt(t *testing.T) {
	reader, mp := setupTestMetrics(t)
	defer reader.Shutdown(context.Background())

	ctx := context.Background()

	mp.RecordSyncAttempt(ctx, true, 20*time.Millisecond)
	mp.RecordSyncAttempt(ctx, false, 5*time.Millisecond)

	metrics := collectNames(t, reader)

	if _, ok := metrics["cache.sync.attempts"]; !ok {
		t.Error("cache.sync.attempts metric not found")
	}
	if _, ok := metrics["cache.sync.duration"]; !ok {
		t.Error("cache.sync.duration metric not found")
	}

	failures, ok := metrics["cache.sync.failures"]
	if !ok {
		t.Fatal("cache.sync.failures metric not found")
	}
	sum, ok := failures.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64], got %T", failures.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Errorf("expected 1 failure, got %d", total)
	}
}

func TestMetricsProvider_PendingGauge(t *testing.T) {
	reader, mp := setupTestMetrics(t)
	defer reader.Shutdown(context.Background())

	ctx := context.Background()

	mp.AddPending(ctx, 2)
	mp.AddPending(ctx, -1)

	metrics := collectNames(t, reader)

	m, ok := metrics["cache.sync.pending"]
	if !ok {
		t.Fatal("cache.sync.pending metric not found")
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64], got %T", m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Errorf("expected pending gauge of 1, got %d", total)
	}
}

func TestMetricsProvider_Offline(t *testing.T) {
	reader, mp := setupTestMetrics(t)
	defer reader.Shutdown(context.Background())

	ctx := context.Background()

	mp.SetOffline(ctx, true)
	mp.SetOffline(ctx, false)

	metrics := collectNames(t, reader)
	if _, ok := metrics["cache.offline"]; !ok {
		t.Error("cache.offline metric not found")
	}
}

func TestMetricsProvider_RecordDurationsAndErrors(t *testing.T) {
	reader, mp := setupTestMetrics(t)
	defer reader.Shutdown(context.Background())

	ctx := context.Background()

	mp.RecordOperationDuration(ctx, "get", 3*time.Millisecond)
	mp.RecordExpiredRemoved(ctx, "DURABLE", 7)
	mp.RecordError(ctx, "serialization")

	metrics := collectNames(t, reader)
	for _, name := range []string{"cache.operation.duration", "cache.expired.removed", "cache.errors"} {
		if _, ok := metrics[name]; !ok {
			t.Errorf("%s metric not found", name)
		}
	}
}

func TestNoopMetricsProvider(t *testing.T) {
	// Verify that NoopMetricsProvider doesn't panic
	noop := &NoopMetricsProvider{}
	ctx := context.Background()

	noop.RecordHit(ctx, "VOLATILE")
	noop.RecordMiss(ctx)
	noop.RecordEviction(ctx, "VOLATILE", 1)
	noop.RecordPromotion(ctx)
	noop.RecordSyncAttempt(ctx, true, time.Second)
	noop.RecordExpiredRemoved(ctx, "DURABLE", 1)
	noop.RecordError(ctx, "type")
	noop.RecordOperationDuration(ctx, "get", time.Second)
	noop.AddPending(ctx, 1)
	noop.SetOffline(ctx, true)
}

func TestDefaultMetricsConfig(t *testing.T) {
	config := DefaultMetricsConfig()

	if config.MeterName == "" {
		t.Error("MeterName should not be empty")
	}
	if config.MeterVersion == "" {
		t.Error("MeterVersion should not be empty")
	}
}
