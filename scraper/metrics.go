package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry           *prometheus.Registry
	PagesTotal         prometheus.Counter
	RecordsTotal       prometheus.Counter
	MissingFieldsTotal *prometheus.CounterVec
	NavigationDuration prometheus.Histogram
	ErrorsTotal        *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Total listing pages fully processed.",
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Total book records written.",
		},
	)
	missing := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_missing_fields_total",
			Help: "Detail-page fields whose locator matched nothing.",
		},
		[]string{"field"},
	)
	navigation := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_navigation_duration_seconds",
			Help:    "Time taken to load listing and detail pages.",
			Buckets: prometheus.DefBuckets,
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of run-aborting errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(pages, records, missing, navigation, errorsTotal)

	return &Metrics{
		Registry:           registry,
		PagesTotal:         pages,
		RecordsTotal:       records,
		MissingFieldsTotal: missing,
		NavigationDuration: navigation,
		ErrorsTotal:        errorsTotal,
	}
}

// IncPages increments the processed pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncRecords increments the written records counter.
func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
}

// IncMissing counts a field that was absent on a detail page.
func (m *Metrics) IncMissing(field string) {
	if m == nil {
		return
	}
	m.MissingFieldsTotal.WithLabelValues(field).Inc()
}

// ObserveNavigation records a page load duration.
func (m *Metrics) ObserveNavigation(d time.Duration) {
	if m == nil {
		return
	}
	m.NavigationDuration.Observe(d.Seconds())
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
