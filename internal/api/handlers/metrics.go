package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azzam1122112-dot/school-display/internal/config"
	"github.com/azzam1122112-dot/school-display/internal/ws"
)

// MetricsHandler exposes the WS health snapshot. Public on purpose: counts
// and a verdict, nothing sensitive.
type MetricsHandler struct {
	metrics *ws.Metrics
	cfg     *config.Config
}

func NewMetricsHandler(metrics *ws.Metrics, cfg *config.Config) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, cfg: cfg}
}

func (h *MetricsHandler) WSMetrics(c *gin.Context) {
	if !h.cfg.Display.WSEnabled {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "ws_disabled"})
		return
	}
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
