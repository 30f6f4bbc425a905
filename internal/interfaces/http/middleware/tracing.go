package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lendsaas/backend/internal/infrastructure/logger"
	"github.com/lendsaas/backend/internal/infrastructure/telemetry"
)

// MaxRequestIDLength bounds the request id copied into span attributes
const MaxRequestIDLength = 128

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName names the server spans' tracer
	ServiceName string
	Enabled     bool
	// TracerProvider overrides the global provider; nil uses the global one
	TracerProvider trace.TracerProvider
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "lending-backend",
		Enabled:     true,
	}
}

// Tracing returns the otelgin server-span middleware. Incoming trace context
// is continued through the global propagator. Register SpanAttributes right
// after it to tag spans with the tenant and request id.
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	var opts []otelgin.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgin.WithTracerProvider(cfg.TracerProvider))
	}
	return otelgin.Middleware(cfg.ServiceName, opts...)
}

// SpanAttributes enriches the request span once the handlers have run, when
// the tenant middleware has resolved the tenant. 5xx responses mark the span
// as failed.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		if id := logger.GetRequestID(c.Request.Context()); id != "" {
			if len(id) > MaxRequestIDLength {
				id = id[:MaxRequestIDLength]
			}
			span.SetAttributes(attribute.String("request_id", id))
		}
		if tenantID := GetTenantID(c); tenantID != "" {
			span.SetAttributes(attribute.String(telemetry.SpanAttrTenantID, tenantID))
		}
		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
