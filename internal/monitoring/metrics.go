// Package monitoring tracks request metrics twice over: Prometheus
// collectors for scraping and an in-process snapshot served as JSON on the
// metrics endpoint.
package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe for concurrent use.
type Metrics struct {
	startedAt time.Time

	requests  *prometheus.CounterVec
	errorsVec *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	active    prometheus.Gauge

	mu         sync.Mutex
	byEndpoint map[string]int64
	byStatus   map[int]int64
	byModel    map[string]int64
	byKind     map[string]int64
	total      int64
	errors     int64
	latencySum time.Duration
	activeNow  int64
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		startedAt: time.Now(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kirogate",
			Name:      "requests_total",
			Help:      "Requests served, by endpoint, status and model.",
		}, []string{"endpoint", "status", "model"}),
		errorsVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kirogate",
			Name:      "errors_total",
			Help:      "Failed requests, by error kind.",
		}, []string{"kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kirogate",
			Name:      "request_duration_seconds",
			Help:      "Request latency, by endpoint.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"endpoint"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kirogate",
			Name:      "active_connections",
			Help:      "Requests currently being served.",
		}),
		byEndpoint: map[string]int64{},
		byStatus:   map[int]int64{},
		byModel:    map[string]int64{},
		byKind:     map[string]int64{},
	}
	reg.MustRegister(m.requests, m.errorsVec, m.latency, m.active)
	return m
}

// ConnOpened marks a request entering the handler stack.
func (m *Metrics) ConnOpened() {
	m.active.Inc()
	m.mu.Lock()
	m.activeNow++
	m.mu.Unlock()
}

// ConnClosed marks a request leaving the handler stack.
func (m *Metrics) ConnClosed() {
	m.active.Dec()
	m.mu.Lock()
	m.activeNow--
	m.mu.Unlock()
}

// Record accounts one finished request.
func (m *Metrics) Record(endpoint string, status int, model string, elapsed time.Duration) {
	if model == "" {
		model = "none"
	}
	m.requests.WithLabelValues(endpoint, statusLabel(status), model).Inc()
	m.latency.WithLabelValues(endpoint).Observe(elapsed.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.byEndpoint[endpoint]++
	m.byStatus[status]++
	m.byModel[model]++
	m.latencySum += elapsed
	if status >= 400 {
		m.errors++
	}
}

// RecordError accounts one failed request under its error kind
// (validation, auth, upstream, translation, canceled).
func (m *Metrics) RecordError(kind string) {
	if kind == "" {
		return
	}
	m.errorsVec.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.byKind[kind]++
	m.mu.Unlock()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Snapshot is the JSON view served on the metrics endpoint.
type Snapshot struct {
	UptimeSeconds     float64          `json:"uptime_seconds"`
	TotalRequests     int64            `json:"total_requests"`
	TotalErrors       int64            `json:"total_errors"`
	ActiveConnections int64            `json:"active_connections"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	ByEndpoint        map[string]int64 `json:"requests_by_endpoint"`
	ByStatus          map[int]int64    `json:"requests_by_status"`
	ByModel           map[string]int64 `json:"requests_by_model"`
	ErrorsByKind      map[string]int64 `json:"errors_by_kind"`
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds:     time.Since(m.startedAt).Seconds(),
		TotalRequests:     m.total,
		TotalErrors:       m.errors,
		ActiveConnections: m.activeNow,
		ByEndpoint:        make(map[string]int64, len(m.byEndpoint)),
		ByStatus:          make(map[int]int64, len(m.byStatus)),
		ByModel:           make(map[string]int64, len(m.byModel)),
		ErrorsByKind:      make(map[string]int64, len(m.byKind)),
	}
	if m.total > 0 {
		snap.AvgLatencyMs = float64(m.latencySum.Milliseconds()) / float64(m.total)
	}
	for k, v := range m.byEndpoint {
		snap.ByEndpoint[k] = v
	}
	for k, v := range m.byStatus {
		snap.ByStatus[k] = v
	}
	for k, v := range m.byModel {
		snap.ByModel[k] = v
	}
	for k, v := range m.byKind {
		snap.ErrorsByKind[k] = v
	}
	return snap
}
