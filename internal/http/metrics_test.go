package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetricsMiddleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newHTTPMetrics(provider.Meter("test"), nil)

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/api/v1/documents/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream")
	})

	for _, path := range []string{"/api/v1/documents/a.md", "/api/v1/documents/b.md", "/fail"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	metrics := collect(t, reader)

	reqs, ok := metrics["ragd.http.requests_total"]
	require.True(t, ok)
	sum, ok := reqs.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		endpoint, _ := dp.Attributes.Value(attribute.Key("endpoint"))
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		counts[endpoint.AsString()+" "+status.Emit()] += dp.Value
	}
	assert.Equal(t, int64(2), counts["/api/v1/documents/* 200"])
	assert.Equal(t, int64(1), counts["/fail 502"])

	active, ok := metrics["ragd.http.active_requests"]
	require.True(t, ok)
	activeSum := active.Data.(metricdata.Sum[int64])
	var inFlight int64
	for _, dp := range activeSum.DataPoints {
		inFlight += dp.Value
	}
	assert.Zero(t, inFlight)

	_, ok = metrics["ragd.http.request_duration_seconds"]
	assert.True(t, ok)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
	he := toHTTPError(assert.AnError)
	assert.Equal(t, "internal error", he.Message)
	assert.ErrorIs(t, he.Internal, assert.AnError)
}
