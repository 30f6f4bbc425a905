package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/lendsaas/backend/internal/infrastructure/metrics"
)

func TestHTTPMetrics_LabelsByRoutePattern(t *testing.T) {
	r := gin.New()
	r.Use(HTTPMetrics())
	r.GET("/api/v1/usage/:kind", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/usage/:kind", "200")
	before := testutil.ToFloat64(counter)

	for _, kind := range []string{"loans", "clients"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/usage/"+kind, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
	assert.Zero(t, testutil.ToFloat64(metrics.HTTPActiveRequests))
}

func TestHTTPMetrics_UnmatchedRoute(t *testing.T) {
	r := gin.New()
	r.Use(HTTPMetrics())

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unknown", "404")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func withRecordingTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestTracing_RecordsServerSpan(t *testing.T) {
	recorder := withRecordingTracer(t)

	r := gin.New()
	r.Use(Tracing(DefaultTracingConfig()))
	r.GET("/api/v1/usage", func(c *gin.Context) {
		c.Set(TenantIDKey, "3f1c2a9e-0000-4000-8000-000000000001")
		c.Status(http.StatusOK)
	})
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "GET /api/v1/usage", spans[0].Name())
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "3f1c2a9e-0000-4000-8000-000000000001", attrs["tenant_id"])
	assert.Equal(t, "200", attrs["http.status_code"])
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestTracing_Disabled(t *testing.T) {
	recorder := withRecordingTracer(t)

	r := gin.New()
	r.Use(Tracing(TracingConfig{Enabled: false}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Empty(t, recorder.Ended())
}
