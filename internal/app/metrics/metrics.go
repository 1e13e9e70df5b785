package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gasengine",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gasengine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gasengine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	quotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gasengine",
			Subsystem: "fees",
			Name:      "quotes_total",
			Help:      "Total number of fee quotes issued.",
		},
		[]string{"kind", "class"},
	)

	collections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gasengine",
			Subsystem: "fees",
			Name:      "collections_total",
			Help:      "Total number of fee collection attempts.",
		},
		[]string{"kind", "status"},
	)

	collectionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gasengine",
			Subsystem: "fees",
			Name:      "collection_duration_seconds",
			Help:      "Duration of fee collections.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"status"},
	)

	sponsoredDroplets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gasengine",
			Subsystem: "sponsorship",
			Name:      "sponsored_droplets_total",
			Help:      "Total droplets covered by the sponsorship pool.",
		},
		[]string{"status"},
	)

	swaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gasengine",
			Subsystem: "autoswap",
			Name:      "swaps_total",
			Help:      "Total number of auto-swap attempts during collection.",
		},
		[]string{"success"},
	)

	distributedDroplets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gasengine",
			Subsystem: "distribution",
			Name:      "distributed_droplets_total",
			Help:      "Total droplets routed to each distribution destination.",
		},
		[]string{"destination"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		quotes,
		collections,
		collectionDuration,
		sponsoredDroplets,
		swaps,
		distributedDroplets,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordQuote counts an issued quote by kind and content class.
func RecordQuote(kind, class string) {
	quotes.WithLabelValues(kind, class).Inc()
}

// RecordCollection counts a collection attempt and its duration.
func RecordCollection(kind, status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	collections.WithLabelValues(kind, status).Inc()
	collectionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordSponsorship accumulates sponsored droplets per outcome status.
func RecordSponsorship(status string, droplets int64) {
	if droplets < 0 {
		droplets = 0
	}
	sponsoredDroplets.WithLabelValues(status).Add(float64(droplets))
}

// RecordSwap counts an auto-swap attempt.
func RecordSwap(success bool) {
	result := "false"
	if success {
		result = "true"
	}
	swaps.WithLabelValues(result).Inc()
}

// RecordDistribution accumulates distributed droplets per destination.
func RecordDistribution(validators, treasury, liquidity, burn int64) {
	distributedDroplets.WithLabelValues("validators").Add(float64(validators))
	distributedDroplets.WithLabelValues("treasury").Add(float64(treasury))
	distributedDroplets.WithLabelValues("liquidity_pools").Add(float64(liquidity))
	distributedDroplets.WithLabelValues("burn").Add(float64(burn))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "fees":
		if len(parts) == 1 {
			return "/fees"
		}
		return "/fees/" + parts[1]
	case "wallets":
		if len(parts) == 1 {
			return "/wallets"
		}
		if len(parts) == 2 {
			return "/wallets/:address"
		}
		return "/wallets/:address/" + parts[2]
	case "receipts":
		if len(parts) == 1 {
			return "/receipts"
		}
		return "/receipts/:id"
	default:
		return "/" + parts[0]
	}
}
