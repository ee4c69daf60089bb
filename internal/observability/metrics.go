package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	CachedUsers    prometheus.Gauge
	StoreErrors    *prometheus.CounterVec
	AgentFailures  prometheus.Counter
	TurnDuration   prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Context cache lookups that found a warm entry.",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Context cache lookups that required hydration.",
		}),
		CacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Whole-entry LRU evictions from the context cache.",
		}),
		CachedUsers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_users",
			Help:      "Number of users currently held in the context cache.",
		}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "History store failures by operation.",
		}, []string{"op"}),
		AgentFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_failures_total",
			Help:      "Agent invocations that failed or timed out.",
		}),
		TurnDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_ms",
			Help:      "End-to-end turn handling latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
	}
}

func (m *Metrics) ObserveTurnDuration(d time.Duration) {
	m.TurnDuration.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
