package ygggo_dbconn

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricsInstrumentationName = "github.com/yggai/ygggo_dbconn"
)

// Metrics holds all the metric instruments
type Metrics struct {
	// Connection metrics
	connectsTotal   metric.Int64Counter
	reconnectsTotal metric.Int64Counter
	pingsTotal      metric.Int64Counter

	// Query metrics
	queriesTotal  metric.Int64Counter
	queryDuration metric.Float64Histogram
	slowQueries   metric.Int64Counter
}

// newMetrics creates the instruments on provider, or on the global provider
// when provider is nil.
func newMetrics(provider metric.MeterProvider) *Metrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(metricsInstrumentationName)

	m := &Metrics{}

	m.connectsTotal, _ = meter.Int64Counter(
		"ygggo_dbconn_connects_total",
		metric.WithDescription("Number of attempts to open a new database connection"),
	)

	m.reconnectsTotal, _ = meter.Int64Counter(
		"ygggo_dbconn_reconnects_total",
		metric.WithDescription("Number of in-place repairs of a stale connection"),
	)

	m.pingsTotal, _ = meter.Int64Counter(
		"ygggo_dbconn_pings_total",
		metric.WithDescription("Number of keep-alive probes"),
	)

	m.queriesTotal, _ = meter.Int64Counter(
		"ygggo_dbconn_queries_total",
		metric.WithDescription("Total number of database queries"),
	)

	m.queryDuration, _ = meter.Float64Histogram(
		"ygggo_dbconn_query_duration_seconds",
		metric.WithDescription("Duration of database queries"),
		metric.WithUnit("s"),
	)

	m.slowQueries, _ = meter.Int64Counter(
		"ygggo_dbconn_slow_queries_total",
		metric.WithDescription("Queries exceeding a slow query threshold"),
	)

	return m
}

func statusAttr(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("status", "error")
	}
	return attribute.String("status", "success")
}

func (m *Metrics) recordConnect(ctx context.Context, err error) {
	m.connectsTotal.Add(ctx, 1, metric.WithAttributes(statusAttr(err)))
}

func (m *Metrics) recordReconnect(ctx context.Context, err error) {
	m.reconnectsTotal.Add(ctx, 1, metric.WithAttributes(statusAttr(err)))
}

func (m *Metrics) recordPing(ctx context.Context, result string) {
	m.pingsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) recordQuery(ctx context.Context, err error) {
	m.queriesTotal.Add(ctx, 1, metric.WithAttributes(statusAttr(err)))
}

func (m *Metrics) recordQueryDuration(ctx context.Context, d time.Duration) {
	m.queryDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) recordSlowQuery(ctx context.Context, level slog.Level) {
	severity := "warning"
	if level >= slog.LevelError {
		severity = "error"
	}
	m.slowQueries.Add(ctx, 1, metric.WithAttributes(attribute.String("severity", severity)))
}
