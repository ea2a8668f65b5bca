package middleware

import (
	"strconv"
	"time"

	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics tracks request counts and latencies per route. The route template
// is used rather than the raw path so slugs do not fan out into separate
// series.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		metrics.HttpRequestsTotal.WithLabelValues(method, path, status).Inc()
		metrics.HttpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	}
}
