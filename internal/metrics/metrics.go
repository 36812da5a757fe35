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
			Namespace: "albumforge",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "albumforge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "albumforge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	proxyFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "albumforge",
			Subsystem: "proxy",
			Name:      "fetches_total",
			Help:      "Total number of upstream media fetches.",
		},
		[]string{"outcome"},
	)

	proxyFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "albumforge",
			Subsystem: "proxy",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of upstream media fetches including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"outcome"},
	)

	resolveCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "albumforge",
			Subsystem: "proxy",
			Name:      "resolve_cache_lookups_total",
			Help:      "Total number of reference resolution cache lookups.",
		},
		[]string{"result"},
	)

	rateOverruns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "albumforge",
			Subsystem: "proxy",
			Name:      "rate_overruns_total",
			Help:      "Total number of upstream calls made beyond the advisory rate window.",
		},
	)

	groupCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "albumforge",
			Subsystem: "collector",
			Name:      "group_commits_total",
			Help:      "Total number of media group commits.",
		},
		[]string{"success"},
	)

	groupSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "albumforge",
			Subsystem: "collector",
			Name:      "group_size_items",
			Help:      "Number of media items per committed group.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		proxyFetches,
		proxyFetchDuration,
		resolveCacheLookups,
		rateOverruns,
		groupCommits,
		groupSize,
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

// RecordProxyFetch records the outcome of one upstream fetch cycle.
func RecordProxyFetch(outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	proxyFetches.WithLabelValues(outcome).Inc()
	proxyFetchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordResolveCacheLookup records a cache hit or miss during reference resolution.
func RecordResolveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	resolveCacheLookups.WithLabelValues(result).Inc()
}

// RecordRateOverrun records an upstream call that exceeded the advisory rate
// window.
func RecordRateOverrun() {
	rateOverruns.Inc()
}

// RecordGroupCommit records one attempted media group commit.
func RecordGroupCommit(items int, success bool) {
	result := "false"
	if success {
		result = "true"
	}
	groupCommits.WithLabelValues(result).Inc()
	if success {
		groupSize.Observe(float64(items))
	}
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
	case "media":
		return "/media/:reference"
	case "album":
		return "/album/:id"
	default:
		return "/" + parts[0]
	}
}
