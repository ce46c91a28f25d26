package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/special-week-api/internal/service"
)

// unmatchedRoute labels requests no route matched, so scanners hitting arbitrary URLs cannot
// grow the path label set.
const unmatchedRoute = "unmatched"

// Metrics records the duration and status of every request against its route template, e.g.
// /students/:id/enrollments rather than the concrete student.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
