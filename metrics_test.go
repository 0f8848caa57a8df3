package ygggo_dbconn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// counterValues sums each Int64 counter by its attribute set.
func counterValues(t *testing.T, reader *sdkmetric.ManualReader) map[string]map[attribute.Distinct]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]map[attribute.Distinct]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			byAttr := map[attribute.Distinct]int64{}
			for _, dp := range sum.DataPoints {
				byAttr[dp.Attributes.Equivalent()] += dp.Value
			}
			out[m.Name] = byAttr
		}
	}
	return out
}

func attrs(kvs ...attribute.KeyValue) attribute.Distinct {
	set := attribute.NewSet(kvs...)
	return set.Equivalent()
}

func TestMetrics_RecordsOperations(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	env := newTestEnv(t)
	env.db.metrics = newMetrics(mp)
	env.driver.setError("SELECT broken", errServerGone)
	ctx := context.Background()

	probe := armedProbe(t, env)
	_, err := env.db.Query(ctx, "SELECT 1")
	require.NoError(t, err)
	_, err = env.db.Query(ctx, "SELECT broken")
	require.Error(t, err)

	env.driver.lastConn().setOnQuery(func(string) { env.clock.Advance(time.Second) })
	_, err = env.db.Query(ctx, "SELECT SLEEP(1)")
	require.NoError(t, err)

	env.driver.lastConn().valid.Store(false)
	probe.fn(testEpoch)

	got := counterValues(t, reader)
	success := attrs(attribute.String("status", "success"))
	failure := attrs(attribute.String("status", "error"))

	assert.Equal(t, int64(1), got["ygggo_dbconn_connects_total"][success])
	assert.Equal(t, int64(2), got["ygggo_dbconn_queries_total"][success])
	assert.Equal(t, int64(1), got["ygggo_dbconn_queries_total"][failure])
	assert.Equal(t, int64(1), got["ygggo_dbconn_reconnects_total"][success])
	assert.Equal(t, int64(1), got["ygggo_dbconn_pings_total"][attrs(attribute.String("result", pingResultRepaired))])
	assert.Equal(t, int64(1), got["ygggo_dbconn_slow_queries_total"][attrs(attribute.String("severity", "error"))])
}

func TestMetrics_FailedConnect(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	env := newTestEnv(t)
	env.db.metrics = newMetrics(mp)
	env.driver.setConnectErr(errConnectRefused)

	_, _ = env.db.Query(context.Background(), "SELECT 1")

	got := counterValues(t, reader)
	assert.Equal(t, int64(1), got["ygggo_dbconn_connects_total"][attrs(attribute.String("status", "error"))])
	// The query never reached the server.
	assert.Empty(t, got["ygggo_dbconn_queries_total"])
}
