package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/residencyreview/eras-review-api/internal/metrics"
)

// Metrics records request counts, latency and in-flight requests.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.IncInFlight()
		defer metrics.DecInFlight()

		c.Next()

		// Route templates keep label cardinality bounded.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
