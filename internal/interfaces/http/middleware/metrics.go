// Package middleware provides HTTP middleware for the lending API.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lendsaas/backend/internal/infrastructure/metrics"
)

// HTTPMetrics returns a Gin middleware that records request counts, latency
// and in-flight requests. Routes are labelled by pattern, not raw path, to
// keep label cardinality bounded.
func HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.HTTPActiveRequests.Inc()
		defer metrics.HTTPActiveRequests.Dec()

		c.Next()

		route := getRoutePattern(c)
		method := c.Request.Method
		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// getRoutePattern returns the matched route (e.g. "/api/v1/usage/:kind")
func getRoutePattern(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		return "unknown"
	}
	return route
}
