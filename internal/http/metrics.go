package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
)

// initMetrics registers the router's collectors on its own registry so that
// several routers can coexist in one process.
func (r *Router) initMetrics() {
	r.registry = prometheus.NewRegistry()
	r.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "technews",
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"})

	r.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "technews",
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"})

	r.rateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "technews",
		Subsystem: "api",
		Name:      "rate_limit_hits_total",
		Help:      "Number of rate-limited responses",
	}, []string{"route", "key"})

	r.feedStreams = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "technews",
		Subsystem: "feed",
		Name:      "open_streams",
		Help:      "Open live comment streams by transport",
	}, []string{"transport"})

	r.feedReloadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "technews",
		Subsystem: "feed",
		Name:      "reload_errors_total",
		Help:      "Comment snapshot reloads that failed",
	})

	r.registry.MustRegister(
		r.requestTotal,
		r.requestLatency,
		r.rateLimitHits,
		r.feedStreams,
		r.feedReloadErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if r.feed != nil {
		feed := r.feed
		r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "technews",
			Subsystem: "feed",
			Name:      "subscriptions",
			Help:      "Live comment feed subscriptions",
		}, func() float64 { return float64(feed.Subscribers()) }))
		feed.OnReloadError = func(string, error) { r.feedReloadErrors.Inc() }
	}
}

func (r *Router) metricsHandler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route, key string) {
	r.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}

func (r *Router) trackStream(transport string) func() {
	gauge := r.feedStreams.WithLabelValues(transport)
	gauge.Inc()
	return gauge.Dec
}
