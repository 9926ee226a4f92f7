package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bloom"

// Metrics holds the Prometheus counters, histograms, and gauges for the bloom service.
type Metrics struct {
	Requests        *prometheus.CounterVec   // labels: operation={bloom,batch,region,forecast}, outcome={ok,invalid,error}
	RequestDuration *prometheus.HistogramVec // labels: operation

	// Cache metrics.
	CacheLookups *prometheus.CounterVec // labels: type={ndvi,phenology,images}, result={hit,miss,expired,error}
	CacheWrites  *prometheus.CounterVec // labels: type, outcome={ok,error}

	// Provider metrics.
	ProviderRequests *prometheus.CounterVec   // labels: call={observe,history,imagery}, outcome={success,error}
	ProviderDuration *prometheus.HistogramVec // labels: call
	Fallbacks        *prometheus.CounterVec   // labels: reason={disabled,error,timeout}
	ProviderEnabled  prometheus.Gauge
	DedupShared      prometheus.Counter

	// Batch and forecast metrics.
	BatchSize        prometheus.Histogram
	ForecastDuration prometheus.Histogram

	// Publishing and refresh metrics.
	ReportsPublished prometheus.Counter
	PublishErrors    prometheus.Counter
	RefreshRuns      *prometheus.CounterVec // labels: outcome={ok,error}
	EntriesRefreshed prometheus.Counter
	EntriesPurged    prometheus.Counter
	RefresherRunning prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// Register adds all metrics to a custom registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func newMetrics() *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Orchestrator requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of orchestrator operations.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by data type and result.",
		}, []string{"type", "result"}),
		CacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Cache writes by data type and outcome.",
		}, []string{"type", "outcome"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Vegetation index API requests by call and outcome.",
		}, []string{"call", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Vegetation index API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"call"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_total",
			Help:      "Observations synthesized by the fallback generator, by reason.",
		}, []string{"reason"}),
		ProviderEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_enabled",
			Help:      "1 when the real vegetation index provider is configured, 0 otherwise.",
		}),
		DedupShared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_shared_total",
			Help:      "Requests answered by joining an identical in-flight computation.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of points per batch or region request.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		ForecastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_fit_duration_seconds",
			Help:      "Duration of a forecast model fit.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		ReportsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_published_total",
			Help:      "Bloom reports written to the report topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Bloom report publish failures.",
		}),
		RefreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_runs_total",
			Help:      "Background cache refresh cycles by outcome.",
		}, []string{"outcome"}),
		EntriesRefreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_entries_refreshed_total",
			Help:      "Cache entries re-warmed before expiry.",
		}),
		EntriesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_entries_purged_total",
			Help:      "Expired cache entries deleted.",
		}),
		RefresherRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresher_running",
			Help:      "1 when the background refresher is active, 0 when shut down.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Requests,
		m.RequestDuration,
		m.CacheLookups,
		m.CacheWrites,
		m.ProviderRequests,
		m.ProviderDuration,
		m.Fallbacks,
		m.ProviderEnabled,
		m.DedupShared,
		m.BatchSize,
		m.ForecastDuration,
		m.ReportsPublished,
		m.PublishErrors,
		m.RefreshRuns,
		m.EntriesRefreshed,
		m.EntriesPurged,
		m.RefresherRunning,
	}
}
