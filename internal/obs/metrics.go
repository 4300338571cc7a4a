package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Chain and sealing metrics.
var (
	chainAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_appends_total",
			Help: "Ledger append attempts by event kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	chainConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chain_conflicts_total",
		Help: "Compare-and-swap conflicts observed while appending.",
	})

	chainVerifyFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chain_verify_failures_total",
		Help: "Chain verifications that reported integrity violations.",
	})

	sealRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seal_requests_total",
			Help: "Trust-timestamp seal requests by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	sealRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seal_request_duration_seconds",
			Help:    "Latency of the full create-then-poll seal exchange.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		chainAppendsTotal, chainConflictsTotal, chainVerifyFailuresTotal,
		sealRequestsTotal, sealRequestDuration,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncChainAppend counts one append attempt.
func IncChainAppend(kind, outcome string) {
	chainAppendsTotal.WithLabelValues(kind, outcome).Inc()
}

// IncChainConflict counts one CAS conflict.
func IncChainConflict() { chainConflictsTotal.Inc() }

// IncChainVerifyFailure counts one failed verification.
func IncChainVerifyFailure() { chainVerifyFailuresTotal.Inc() }

// ObserveSealRequest records the outcome and latency of one seal exchange.
func ObserveSealRequest(provider, outcome string, d time.Duration) {
	sealRequestsTotal.WithLabelValues(provider, outcome).Inc()
	sealRequestDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// CanonicalPath collapses per-contract path segments into placeholders so
// metric label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/v1/contracts/") {
		return path
	}
	parts := strings.Split(strings.TrimPrefix(path, "/v1/contracts/"), "/")
	if parts[0] == "" {
		return path
	}
	parts[0] = ":id"
	// inventory item ids are the second variable segment
	if len(parts) >= 3 && parts[1] == "inventory" && parts[2] != "" {
		parts[2] = ":item_id"
	}
	return "/v1/contracts/" + strings.Join(parts, "/")
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
