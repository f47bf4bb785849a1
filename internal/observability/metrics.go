package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flood_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the feature pipeline.
type Metrics struct {
	DatesProcessed  prometheus.Counter
	DatesResumed    prometheus.Counter
	DateFailures    *prometheus.CounterVec // labels: stage
	BuildAttempts   prometheus.Counter
	LandSurfaceGaps prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Raster engine latency.
	SeriesQueryDuration *prometheus.HistogramVec // labels: series={precipitation,land_surface}
	ReductionDuration   *prometheus.HistogramVec // labels: stage

	// Export metrics.
	RecordsExported *prometheus.CounterVec // labels: sink
	RunDuration     prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.DatesProcessed,
		m.DatesResumed,
		m.DateFailures,
		m.BuildAttempts,
		m.LandSurfaceGaps,
		m.PipelineRunning,
		m.SeriesQueryDuration,
		m.ReductionDuration,
		m.RecordsExported,
		m.RunDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DatesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dates_processed_total",
			Help:      "Dates whose feature record was built in this process.",
		}),
		DatesResumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dates_resumed_total",
			Help:      "Dates skipped because a checkpoint already held their record.",
		}),
		DateFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "date_failures_total",
			Help:      "Dates that failed after all attempts, by pipeline stage.",
		}, []string{"stage"}),
		BuildAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_attempts_total",
			Help:      "Per-date build attempts including retries.",
		}),
		LandSurfaceGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "land_surface_gaps_total",
			Help:      "Dates with no land-surface frames, filled with the sentinel.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is active, 0 otherwise.",
		}),
		SeriesQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "series_query_duration_seconds",
			Help:      "Raster series window query duration.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"series"}),
		ReductionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reduction_duration_seconds",
			Help:      "Spatial reduction duration by stage.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"stage"}),
		RecordsExported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_exported_total",
			Help:      "Feature records written, by sink.",
		}, []string{"sink"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete feature extraction run.",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		}),
	}
}
