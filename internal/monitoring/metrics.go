package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ScrapesTotal          *prometheus.CounterVec
	ErrorsTotal           *prometheus.CounterVec
	SkippedUnchangedTotal prometheus.Counter
	ExtractionCoverage    prometheus.Histogram
	ScrapeDuration        prometheus.Histogram
}

func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics against r. Tests pass a fresh
// registry so repeated construction does not collide.
func NewMetricsWith(r prometheus.Registerer) *Metrics {
	factory := promauto.With(r)
	return &Metrics{
		ScrapesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webintel_scrapes_total",
			Help: "The total number of scrape executions",
		}, []string{"type", "status"}), // status: 'success', 'failed'
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webintel_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"reason"}), // e.g., 'fetch_failed', 'db_save_failed'
		SkippedUnchangedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "webintel_records_skipped_unchanged_total",
			Help: "Scrapes whose content hash matched the previous record",
		}),
		ExtractionCoverage: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "webintel_extraction_coverage",
			Help:    "Fraction of expected fields populated per scrape",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ScrapeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "webintel_scrape_duration_seconds",
			Help:    "Wall time of scrape executions",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncScrape(jobType, status string) {
	m.ScrapesTotal.WithLabelValues(jobType, status).Inc()
}

func (m *Metrics) IncError(reason string) {
	m.ErrorsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveCoverage(coverage float64) {
	m.ExtractionCoverage.Observe(coverage)
}

func (m *Metrics) ObserveDuration(seconds float64) {
	m.ScrapeDuration.Observe(seconds)
}
