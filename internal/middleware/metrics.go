package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/observability"
)

// MetricsMiddleware returns middleware that records request counts and
// latency per route. The route template is used, not the raw path, so
// cardinality stays bounded.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		observability.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()
		observability.HTTPRequestDuration.WithLabelValues(
			c.Request.Method, path,
		).Observe(time.Since(started).Seconds())
	}
}
