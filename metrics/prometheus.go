package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exchange metrics collector
// Provides pipeline, matching and API metrics for monitoring

var (
	// Singleton collector
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds all exchange metrics
type Collector struct {
	// Order metrics
	OrdersTotal     *prometheus.CounterVec
	RejectionsTotal *prometheus.CounterVec
	CancelsTotal    *prometheus.CounterVec

	// Matching engine metrics
	MatchingLatency *prometheus.HistogramVec
	OrderbookDepth  *prometheus.GaugeVec

	// Trade metrics
	TradesTotal *prometheus.CounterVec
	TradeVolume *prometheus.CounterVec

	// Pipeline metrics
	QueueDepth      *prometheus.GaugeVec
	PendingRequests prometheus.Gauge
	RequestTimeouts prometheus.Counter

	// WebSocket metrics
	WSConnectionsActive prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec

	// API metrics
	APIRequestsTotal  *prometheus.CounterVec
	APIRequestLatency *prometheus.HistogramVec
	RateLimitHits     *prometheus.CounterVec

	// System metrics
	TeamsRegistered prometheus.Gauge
}

// GetCollector returns the singleton metrics collector
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
	})
	return collector
}

// newCollector creates a new metrics collector
func newCollector() *Collector {
	c := &Collector{}

	// Order metrics
	c.OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "orders",
			Name:      "total",
			Help:      "Total number of orders submitted",
		},
		[]string{"symbol", "side", "type", "status"},
	)

	c.RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "orders",
			Name:      "rejections_total",
			Help:      "Total number of rejected orders by error code",
		},
		[]string{"code"},
	)

	c.CancelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "orders",
			Name:      "cancels_total",
			Help:      "Total number of cancellation requests by outcome",
		},
		[]string{"outcome"},
	)

	// Matching engine metrics
	c.MatchingLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "exchange",
			Subsystem: "matching",
			Name:      "latency_ms",
			Help:      "Matching engine latency in milliseconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50},
		},
		[]string{"symbol"},
	)

	c.OrderbookDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "exchange",
			Subsystem: "orderbook",
			Name:      "depth",
			Help:      "Published orderbook depth in price levels (top 20 per side)",
		},
		[]string{"symbol", "side"},
	)

	// Trade metrics
	c.TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "trades",
			Name:      "total",
			Help:      "Total number of trades executed",
		},
		[]string{"symbol"},
	)

	c.TradeVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "trades",
			Name:      "volume_contracts",
			Help:      "Total traded volume in contracts",
		},
		[]string{"symbol"},
	)

	// Pipeline metrics
	c.QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "exchange",
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Current depth of each pipeline queue",
		},
		[]string{"stage"},
	)

	c.PendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "exchange",
			Subsystem: "pipeline",
			Name:      "pending_requests",
			Help:      "Requests awaiting a terminal outcome",
		},
	)

	c.RequestTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "pipeline",
			Name:      "request_timeouts_total",
			Help:      "Requests that expired before a terminal outcome",
		},
	)

	// WebSocket metrics
	c.WSConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "exchange",
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Number of connected teams",
		},
	)

	c.WSMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "websocket",
			Name:      "messages_total",
			Help:      "Total WebSocket messages sent by type",
		},
		[]string{"type"},
	)

	// API metrics
	c.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total API requests",
		},
		[]string{"method", "path", "status"},
	)

	c.APIRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "exchange",
			Subsystem: "api",
			Name:      "request_latency_ms",
			Help:      "API request latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"method", "path"},
	)

	c.RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "api",
			Name:      "rate_limit_hits",
			Help:      "Total rate limit hits",
		},
		[]string{"limit_type"},
	)

	// System metrics
	c.TeamsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "exchange",
			Subsystem: "system",
			Name:      "teams_registered",
			Help:      "Number of registered teams",
		},
	)

	// Register all metrics
	c.registerAll()

	return c
}

// registerAll registers all metrics with Prometheus
func (c *Collector) registerAll() {
	prometheus.MustRegister(c.OrdersTotal)
	prometheus.MustRegister(c.RejectionsTotal)
	prometheus.MustRegister(c.CancelsTotal)

	prometheus.MustRegister(c.MatchingLatency)
	prometheus.MustRegister(c.OrderbookDepth)

	prometheus.MustRegister(c.TradesTotal)
	prometheus.MustRegister(c.TradeVolume)

	prometheus.MustRegister(c.QueueDepth)
	prometheus.MustRegister(c.PendingRequests)
	prometheus.MustRegister(c.RequestTimeouts)

	prometheus.MustRegister(c.WSConnectionsActive)
	prometheus.MustRegister(c.WSMessagesTotal)

	prometheus.MustRegister(c.APIRequestsTotal)
	prometheus.MustRegister(c.APIRequestLatency)
	prometheus.MustRegister(c.RateLimitHits)

	prometheus.MustRegister(c.TeamsRegistered)
}

// ============ Recording Helpers ============

// RecordOrder records an order event
func (c *Collector) RecordOrder(symbol, side, orderType, status string) {
	c.OrdersTotal.WithLabelValues(symbol, side, orderType, status).Inc()
}

// RecordRejection records a business rejection
func (c *Collector) RecordRejection(code string) {
	c.RejectionsTotal.WithLabelValues(code).Inc()
}

// RecordCancel records a cancellation outcome
func (c *Collector) RecordCancel(outcome string) {
	c.CancelsTotal.WithLabelValues(outcome).Inc()
}

// RecordTrade records a trade event
func (c *Collector) RecordTrade(symbol string, volume float64) {
	c.TradesTotal.WithLabelValues(symbol).Inc()
	c.TradeVolume.WithLabelValues(symbol).Add(volume)
}

// RecordMatchingLatency records matching engine latency
func (c *Collector) RecordMatchingLatency(symbol string, latencyMs float64) {
	c.MatchingLatency.WithLabelValues(symbol).Observe(latencyMs)
}

// RecordAPIRequest records an API request
func (c *Collector) RecordAPIRequest(method, path, status string, latencyMs float64) {
	c.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.APIRequestLatency.WithLabelValues(method, path).Observe(latencyMs)
}

// RecordWSConnection records WebSocket connection changes
func (c *Collector) RecordWSConnection(delta int) {
	c.WSConnectionsActive.Add(float64(delta))
}

// RecordWSMessage records a WebSocket message
func (c *Collector) RecordWSMessage(msgType string) {
	c.WSMessagesTotal.WithLabelValues(msgType).Inc()
}

// ============ HTTP Handler ============

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for measuring latency
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ElapsedMs returns the elapsed time in milliseconds
func (t *Timer) ElapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}
