package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirogate/kirogate/internal/monitoring"
)

// Metrics records per-request counters and latency. Handlers set "model" on
// the context when they know it; requests without one are bucketed together.
func Metrics(m *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.ConnOpened()
		defer m.ConnClosed()

		c.Next()

		model := ""
		if v, ok := c.Get("model"); ok {
			if s, ok := v.(string); ok {
				model = s
			}
		}
		m.Record(c.FullPath(), c.Writer.Status(), model, time.Since(start))
		if kind := c.GetString("error_kind"); kind != "" {
			m.RecordError(kind)
		}
	}
}
