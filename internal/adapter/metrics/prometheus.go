package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vecsearch/internal/domain"
	"vecsearch/internal/port"
)

// PrometheusObserver implements port.StoreObserver and records HTTP requests.
type PrometheusObserver struct {
	registry     *prometheus.Registry
	opLatency    *prometheus.HistogramVec
	resets       prometheus.Counter
	droppedRows  prometheus.Counter
	cacheLookups *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

var _ port.StoreObserver = (*PrometheusObserver)(nil)

// NewPrometheusObserver registers the collectors on a private registry.
func NewPrometheusObserver() *PrometheusObserver {
	o := &PrometheusObserver{
		registry: prometheus.NewRegistry(),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vecsearch_operation_latency_seconds",
			Help:    "Latency of table store operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vecsearch_table_resets_total",
			Help: "Tables cleared because the embedding dimension changed",
		}),
		droppedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vecsearch_reset_dropped_rows_total",
			Help: "Rows discarded by dimension resets",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vecsearch_cache_lookups_total",
			Help: "Table cache lookups",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vecsearch_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}

	o.registry.MustRegister(o.opLatency)
	o.registry.MustRegister(o.resets)
	o.registry.MustRegister(o.droppedRows)
	o.registry.MustRegister(o.cacheLookups)
	o.registry.MustRegister(o.httpRequests)
	return o
}

func (o *PrometheusObserver) OnOperation(op string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	o.opLatency.WithLabelValues(op, status).Observe(d.Seconds())
}

func (o *PrometheusObserver) OnReset(ev domain.ResetEvent) {
	o.resets.Inc()
	o.droppedRows.Add(float64(ev.DroppedRows))
}

func (o *PrometheusObserver) OnCacheLookup(hit bool) {
	if hit {
		o.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	o.cacheLookups.WithLabelValues("miss").Inc()
}

// TrackCachedTables exposes the number of tables held in memory, read from
// size at scrape time. Call it once per observer.
func (o *PrometheusObserver) TrackCachedTables(size func() int) {
	o.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "vecsearch_cached_tables",
		Help: "Tables currently held in the in-memory table cache",
	}, func() float64 { return float64(size()) }))
}

// OnRequest counts one served HTTP request.
func (o *PrometheusObserver) OnRequest(route string, code int) {
	o.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}
