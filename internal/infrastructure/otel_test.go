package infrastructure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetricsRecording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	metrics, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordStep(ctx, "download", 2*time.Second, nil)
	metrics.RecordStep(ctx, "inequality", time.Second, errors.New("boom"))
	metrics.RecordDownload(ctx, "enigh", 1024, 2)
	metrics.RecordGroups(ctx, "state", 32)
	metrics.RecordHTTPRequest(ctx, "GET", "/api/health", 200, time.Millisecond)
	metrics.RecordWSClient(ctx, 1)
	metrics.RecordWSMessages(ctx, 3, 1)
	metrics.RecordCacheLookup(ctx, true)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	for _, name := range []string{
		"pipeline_step_executions_total",
		"pipeline_step_duration_seconds",
		"download_bytes_total",
		"download_retries_total",
		"inequality_groups_computed_total",
		"http_requests_total",
		"websocket_clients",
		"websocket_messages_total",
		"result_cache_lookups_total",
	} {
		assert.True(t, names[name], "missing metric %s", name)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.RecordStep(context.Background(), "x", time.Second, nil)
		metrics.RecordDownload(context.Background(), "enigh", 10, 0)
		metrics.RecordGroups(context.Background(), "state", 1)
		metrics.RecordHTTPRequest(context.Background(), "GET", "/", 200, time.Second)
		metrics.RecordWSClient(context.Background(), -1)
		metrics.RecordWSMessages(context.Background(), 1, 1)
		metrics.RecordCacheLookup(context.Background(), false)
	})
}

func TestInitializeOTelWithoutExporters(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.MetricExporter = "none"

	providers, err := InitializeOTel(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)
	assert.Nil(t, providers.PrometheusHTTP)
	assert.NoError(t, providers.Shutdown(context.Background()))

	cfg.TraceExporter = "zipkin"
	_, err = InitializeOTel(cfg, nil)
	assert.Error(t, err)
}
