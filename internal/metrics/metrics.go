package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tierlink"

// Metrics holds the service collectors on its own registry.
type Metrics struct {
	registry        *prometheus.Registry
	shortens        *prometheus.CounterVec
	resolves        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		shortens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shorten_total",
			Help:      "Shorten calls by outcome.",
		}, []string{"outcome"}),
		resolves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_total",
			Help:      "Resolve calls by outcome.",
		}, []string{"outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by operation and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// ObserveShorten counts a shorten call.
func (m *Metrics) ObserveShorten(outcome string) {
	m.shortens.WithLabelValues(outcome).Inc()
}

// ObserveResolve counts a resolve call.
func (m *Metrics) ObserveResolve(outcome string) {
	m.resolves.WithLabelValues(outcome).Inc()
}

// Middleware returns a Huma middleware recording request latency.
func (m *Metrics) Middleware() func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()

		next(ctx)

		path := ""
		if op := ctx.Operation(); op != nil {
			path = op.Path
		}

		status := ctx.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.requestDuration.
			WithLabelValues(ctx.Method(), path, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
