package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics handles all Prometheus metrics for the candle stream
// server.
type PrometheusMetrics struct {
	// Session Metrics
	ActiveSessions     prometheus.Gauge
	SessionsOpened     prometheus.Counter
	HeartbeatEvictions prometheus.Counter

	// Subscription Metrics
	ActiveStreams   prometheus.Gauge
	ListenRequests  *prometheus.CounterVec
	ListenErrors    *prometheus.CounterVec
	StreamListeners *prometheus.GaugeVec

	// Fetch Metrics
	FetchLatency  *prometheus.HistogramVec
	FetchFailures *prometheus.CounterVec

	// Broadcast Metrics
	BroadcastTickLatency prometheus.Histogram
	BroadcastSendErrors  prometheus.Counter

	// Auxiliary Cache
	AuxCachePublishes *prometheus.CounterVec

	server *http.Server
}

// NewPrometheusMetrics creates a new Prometheus metrics instance.
func NewPrometheusMetrics() *PrometheusMetrics {
	metrics := &PrometheusMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "candlestream_active_sessions",
			Help: "Number of currently connected WebSocket sessions",
		}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candlestream_sessions_opened_total",
			Help: "Total number of WebSocket sessions accepted",
		}),
		HeartbeatEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candlestream_heartbeat_evictions_total",
			Help: "Total number of sessions evicted for exceeding the idle timeout",
		}),

		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "candlestream_active_streams",
			Help: "Number of currently subscribed tags",
		}),
		ListenRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlestream_listen_requests_total",
				Help: "Total number of listen requests by mode",
			},
			[]string{"mode"},
		),
		ListenErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlestream_listen_errors_total",
				Help: "Total number of listen requests that failed validation or lookup",
			},
			[]string{"mode", "kind"},
		),
		StreamListeners: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "candlestream_stream_listeners",
				Help: "Current listener count for a subscribed tag",
			},
			[]string{"tag"},
		),

		FetchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "candlestream_fetch_latency_seconds",
				Help:    "Upstream adapter fetch latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"source"},
		),
		FetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlestream_fetch_failures_total",
				Help: "Total number of failed upstream adapter fetches",
			},
			[]string{"source"},
		),

		BroadcastTickLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "candlestream_broadcast_tick_latency_seconds",
			Help:    "Wall-clock time to poll and fan out one broadcast tick across all tags",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		BroadcastSendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candlestream_broadcast_send_errors_total",
			Help: "Total number of per-listener send failures during a broadcast tick",
		}),

		AuxCachePublishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlestream_auxcache_publishes_total",
				Help: "Total number of best-effort auxiliary cache mirror publishes by outcome",
			},
			[]string{"status"},
		),
	}

	prometheus.MustRegister(
		metrics.ActiveSessions,
		metrics.SessionsOpened,
		metrics.HeartbeatEvictions,
		metrics.ActiveStreams,
		metrics.ListenRequests,
		metrics.ListenErrors,
		metrics.StreamListeners,
		metrics.FetchLatency,
		metrics.FetchFailures,
		metrics.BroadcastTickLatency,
		metrics.BroadcastSendErrors,
		metrics.AuxCachePublishes,
	)

	return metrics
}

// Start starts the Prometheus metrics HTTP server.
func (m *PrometheusMetrics) Start(port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	m.server = &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	log.Printf("starting metrics server on port %s", port)

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	return nil
}

// Stop stops the Prometheus metrics server.
func (m *PrometheusMetrics) Stop() error {
	if m.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}

// RecordListenRequest records one listen attempt by tag mode.
func (m *PrometheusMetrics) RecordListenRequest(mode string) {
	m.ListenRequests.WithLabelValues(mode).Inc()
}

// RecordListenError records one failed listen attempt, distinguishing a
// validation failure from an upstream lookup failure.
func (m *PrometheusMetrics) RecordListenError(mode, kind string) {
	m.ListenErrors.WithLabelValues(mode, kind).Inc()
}

// RecordFetch records one adapter fetch's latency and, on failure, bumps
// the failure counter for source.
func (m *PrometheusMetrics) RecordFetch(source string, duration time.Duration, err error) {
	m.FetchLatency.WithLabelValues(source).Observe(duration.Seconds())
	if err != nil {
		m.FetchFailures.WithLabelValues(source).Inc()
	}
}

// RecordBroadcastTick records one full broadcast tick's latency.
func (m *PrometheusMetrics) RecordBroadcastTick(duration time.Duration) {
	m.BroadcastTickLatency.Observe(duration.Seconds())
}

// RecordBroadcastSendError bumps the per-listener send-failure counter.
func (m *PrometheusMetrics) RecordBroadcastSendError() {
	m.BroadcastSendErrors.Inc()
}

// RecordAuxCachePublish records one auxiliary cache mirror attempt.
func (m *PrometheusMetrics) RecordAuxCachePublish(status string) {
	m.AuxCachePublishes.WithLabelValues(status).Inc()
}

// SetActiveSessions sets the current session gauge.
func (m *PrometheusMetrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// SetActiveStreams sets the current subscription gauge.
func (m *PrometheusMetrics) SetActiveStreams(count int) {
	m.ActiveStreams.Set(float64(count))
}

// SetStreamListeners sets the current listener-count gauge for tag.
func (m *PrometheusMetrics) SetStreamListeners(tag string, count int) {
	m.StreamListeners.WithLabelValues(tag).Set(float64(count))
}

// DeleteStreamListeners removes tag's listener-count gauge entirely, for
// when the stream itself is removed from the registry.
func (m *PrometheusMetrics) DeleteStreamListeners(tag string) {
	m.StreamListeners.DeleteLabelValues(tag)
}
