package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	readingsIngested  *prometheus.CounterVec
	ingestErrors      *prometheus.CounterVec
	queryRecords      *prometheus.HistogramVec
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	wsClients         prometheus.Gauge
	kafkaLag          prometheus.Gauge
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		readingsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indoor_readings_ingested_total",
			Help: "Total readings stored by ingestion source.",
		}, []string{"source"}),
		ingestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indoor_ingest_errors_total",
			Help: "Total rejected or failed payloads by ingestion source.",
		}, []string{"source"}),
		queryRecords: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "indoor_query_records",
			Help:    "Raw readings loaded per query by mode.",
			Buckets: prometheus.ExponentialBuckets(10, 10, 6),
		}, []string{"mode"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indoor_cache_hits_total",
			Help: "Total response cache hits observed.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indoor_cache_misses_total",
			Help: "Total response cache misses observed.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indoor_ws_clients",
			Help: "Connected websocket clients.",
		}),
		kafkaLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indoor_kafka_consumer_lag",
			Help: "Messages behind the head of the readings topic.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.readingsIngested,
		m.ingestErrors,
		m.queryRecords,
		m.cacheHits,
		m.cacheMisses,
		m.wsClients,
		m.kafkaLag,
	)

	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Middleware records request count and duration by chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m == nil {
			return
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ReadingsIngested(source string, n int) {
	if m == nil {
		return
	}
	m.readingsIngested.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) IngestError(source string) {
	if m == nil {
		return
	}
	m.ingestErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) QueryRecords(mode string, n int) {
	if m == nil {
		return
	}
	m.queryRecords.WithLabelValues(mode).Observe(float64(n))
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

func (m *Metrics) SetKafkaLag(lag int64) {
	if m == nil {
		return
	}
	m.kafkaLag.Set(float64(lag))
}
