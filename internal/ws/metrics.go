package ws

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus mirrors of the process-local counters.
var (
	promConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "display_ws_connections_active", Help: "Open WS connections"},
	)
	promConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "display_ws_connections_total", Help: "WS connections accepted"},
	)
	promConnectionsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "display_ws_connections_failed_total", Help: "WS handshakes rejected"},
	)
	promBroadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "display_ws_broadcasts_total", Help: "Invalidation sends"},
		[]string{"result"},
	)
	promBroadcastLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "display_ws_broadcast_latency_seconds",
			Help:    "Per-connection invalidation send time",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(
		promConnectionsActive,
		promConnectionsTotal,
		promConnectionsFailed,
		promBroadcasts,
		promBroadcastLatency,
	)
}

// Metrics is the mutex-guarded tracker behind /api/display/ws-metrics/.
type Metrics struct {
	mu sync.Mutex

	connectionsActive   int64
	connectionsTotal    int64
	connectionsFailed   int64
	broadcastsSent      int64
	broadcastsFailed    int64
	broadcastLatencySum float64 // ms
	broadcastLatencyCnt int64

	lastLogged time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) ConnectionOpened() {
	m.mu.Lock()
	m.connectionsActive++
	m.connectionsTotal++
	m.mu.Unlock()
	promConnectionsActive.Inc()
	promConnectionsTotal.Inc()
}

func (m *Metrics) ConnectionClosed() {
	m.mu.Lock()
	decremented := m.connectionsActive > 0
	if decremented {
		m.connectionsActive--
	}
	m.mu.Unlock()
	if decremented {
		promConnectionsActive.Dec()
	}
}

func (m *Metrics) ConnectionFailed() {
	m.mu.Lock()
	m.connectionsFailed++
	m.mu.Unlock()
	promConnectionsFailed.Inc()
}

func (m *Metrics) BroadcastSent(latencyMS float64) {
	m.mu.Lock()
	m.broadcastsSent++
	if latencyMS > 0 {
		m.broadcastLatencySum += latencyMS
		m.broadcastLatencyCnt++
	}
	m.mu.Unlock()
	promBroadcasts.WithLabelValues("sent").Inc()
	if latencyMS > 0 {
		promBroadcastLatency.Observe(latencyMS / 1000)
	}
}

func (m *Metrics) BroadcastFailed() {
	m.mu.Lock()
	m.broadcastsFailed++
	m.mu.Unlock()
	promBroadcasts.WithLabelValues("failed").Inc()
}

// Snapshot returns the wire payload for the public metrics endpoint,
// including the health verdict.
func (m *Metrics) Snapshot() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	avgLatency := 0.0
	if m.broadcastLatencyCnt > 0 {
		avgLatency = m.broadcastLatencySum / float64(m.broadcastLatencyCnt)
	}

	return map[string]any{
		"connections_active":       m.connectionsActive,
		"connections_total":        m.connectionsTotal,
		"connections_failed":       m.connectionsFailed,
		"broadcasts_sent":          m.broadcastsSent,
		"broadcasts_failed":        m.broadcastsFailed,
		"broadcast_latency_sum_ms": m.broadcastLatencySum,
		"broadcast_latency_count":  m.broadcastLatencyCnt,
		"avg_broadcast_latency_ms": avgLatency,
		"health":                   m.healthLocked(avgLatency),
	}
}

// Health rules:
//
//	critical — >10% of handshakes failed
//	warning  — nobody connected despite traffic, >5% broadcast failures,
//	           or average latency above 100ms
func (m *Metrics) Health() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	avgLatency := 0.0
	if m.broadcastLatencyCnt > 0 {
		avgLatency = m.broadcastLatencySum / float64(m.broadcastLatencyCnt)
	}
	return m.healthLocked(avgLatency)
}

func (m *Metrics) healthLocked(avgLatencyMS float64) string {
	if m.connectionsTotal > 0 &&
		float64(m.connectionsFailed)/float64(m.connectionsTotal) > 0.10 {
		return "critical"
	}
	if m.connectionsActive == 0 && m.connectionsTotal > 10 {
		return "warning"
	}
	totalBroadcasts := m.broadcastsSent + m.broadcastsFailed
	if totalBroadcasts > 0 &&
		float64(m.broadcastsFailed)/float64(totalBroadcasts) > 0.05 {
		return "warning"
	}
	if avgLatencyMS > 100 {
		return "warning"
	}
	return "ok"
}

// LogIfNeeded prints a one-line summary at most once per interval.
func (m *Metrics) LogIfNeeded(interval time.Duration) {
	m.mu.Lock()
	if time.Since(m.lastLogged) < interval {
		m.mu.Unlock()
		return
	}
	m.lastLogged = time.Now()
	active, total, failed := m.connectionsActive, m.connectionsTotal, m.connectionsFailed
	sent, bfailed := m.broadcastsSent, m.broadcastsFailed
	avg := 0.0
	if m.broadcastLatencyCnt > 0 {
		avg = m.broadcastLatencySum / float64(m.broadcastLatencyCnt)
	}
	m.mu.Unlock()

	log.Printf("[WS] active=%d total=%d failed=%d broadcasts=%d (failed=%d) avg_latency=%.1fms",
		active, total, failed, sent, bfailed, avg)
}
