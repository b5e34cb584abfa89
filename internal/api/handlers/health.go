package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirogate/kirogate/internal/catalog"
	"github.com/kirogate/kirogate/internal/kiro"
	"github.com/kirogate/kirogate/internal/monitoring"
)

// Status serves the operational endpoints: root banner, health, and the two
// metrics views (JSON and Prometheus exposition).
type Status struct {
	startedAt time.Time
	version   string
	session   *kiro.Session
	cache     *catalog.Cache
	metrics   *monitoring.Metrics
}

func NewStatus(version string, session *kiro.Session, cache *catalog.Cache, metrics *monitoring.Metrics) *Status {
	return &Status{
		startedAt: time.Now(),
		version:   version,
		session:   session,
		cache:     cache,
		metrics:   metrics,
	}
}

// Root handles GET / with a service banner.
func (h *Status) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "kirogate",
		"version": h.version,
		"endpoints": []string{
			"/v1/chat/completions",
			"/v1/messages",
			"/v1/models",
			"/health",
			"/metrics",
			"/metrics/prometheus",
		},
	})
}

// Health handles GET /health. Token validity is reported from the cached
// credential only; the check never calls out.
func (h *Status) Health(c *gin.Context) {
	tokenValid := h.session != nil && h.session.Valid()
	status := "ok"
	if !tokenValid {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"uptime_seconds": time.Since(h.startedAt).Seconds(),
		"token_valid":    tokenValid,
		"model_cache":    h.cache.Stats(),
	})
}

// MetricsJSON handles GET /metrics.
func (h *Status) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// MetricsPrometheus handles GET /metrics/prometheus.
func (h *Status) MetricsPrometheus() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
