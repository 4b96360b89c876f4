package middleware

import (
	"strconv"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records latency and status class per route template.
// Unrouted paths share one label so scanners cannot blow up cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		class := strconv.Itoa(c.Writer.Status()/100) + "xx"
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		metrics.HTTPRequests.WithLabelValues(route, class).Inc()
	}
}
