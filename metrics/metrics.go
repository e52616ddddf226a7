// Package metrics provides the Prometheus collectors for archive
// conversion, derivation, queries and ingestion.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "artificer"

// Metrics holds the collectors.
type Metrics struct {
	ConversionsTotal   *prometheus.CounterVec
	ConversionEntries  prometheus.Histogram
	ConversionDuration prometheus.Histogram

	DerivationsTotal *prometheus.CounterVec
	DerivedArtifacts *prometheus.CounterVec

	QueriesTotal  *prometheus.CounterVec
	QueryDuration prometheus.Histogram

	IngestedTotal *prometheus.CounterVec
	StoredTotal   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. A nil reg uses a fresh registry,
// which keeps tests and multiple instances from colliding.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		ConversionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "conversions_total",
				Help:      "Archive conversions by archive type and status",
			},
			[]string{"archive_type", "status"},
		),
		ConversionEntries: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "conversion_entries",
				Help:      "Entries produced per archive conversion",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
			},
		),
		ConversionDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "conversion_duration_seconds",
				Help:      "Archive conversion duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		DerivationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "derivations_total",
				Help:      "Document derivations by builder and status",
			},
			[]string{"builder", "status"},
		),
		DerivedArtifacts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "derived_artifacts_total",
				Help:      "Derived artifacts produced by builder",
			},
			[]string{"builder"},
		),
		QueriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "queries_total",
				Help:      "Executed queries by status",
			},
			[]string{"status"},
		),
		QueryDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "query_duration_seconds",
				Help:      "Query execution duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		IngestedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "ingested_files_total",
				Help:      "Files picked up by the ingester by status",
			},
			[]string{"status"},
		),
		StoredTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "stored_artifacts_total",
				Help:      "Artifacts written to the store by driver",
			},
			[]string{"driver"},
		),
		gatherer: reg,
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordConversion records one archive conversion.
func (m *Metrics) RecordConversion(archiveType string, entries int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.ConversionsTotal.WithLabelValues(archiveType, status(err)).Inc()
	if err == nil {
		m.ConversionEntries.Observe(float64(entries))
	}
	m.ConversionDuration.Observe(duration.Seconds())
}

// RecordDerivation records one builder run over a document.
func (m *Metrics) RecordDerivation(builder string, derived int, err error) {
	if m == nil {
		return
	}
	m.DerivationsTotal.WithLabelValues(builder, status(err)).Inc()
	if err == nil {
		m.DerivedArtifacts.WithLabelValues(builder).Add(float64(derived))
	}
}

// RecordQuery records one query execution.
func (m *Metrics) RecordQuery(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(status(err)).Inc()
	m.QueryDuration.Observe(duration.Seconds())
}

// RecordIngest records one file handled by the ingester.
func (m *Metrics) RecordIngest(err error) {
	if m == nil {
		return
	}
	m.IngestedTotal.WithLabelValues(status(err)).Inc()
}

// RecordStored records artifacts written to a store.
func (m *Metrics) RecordStored(driver string, n int) {
	if m == nil {
		return
	}
	m.StoredTotal.WithLabelValues(driver).Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
