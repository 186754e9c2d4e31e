// Package metrics exposes Prometheus instrumentation for lead intake.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ingestion, export and partner calls.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Rows stored by successful ingests
	RowsIngested prometheus.Counter

	// Rows that failed normalization or validation
	RowsRejected prometheus.Counter

	// Ingest outcomes by result and the phase they ended in
	IngestOutcome *prometheus.CounterVec

	// Ingest duration by file format
	IngestDuration *prometheus.HistogramVec

	// Export and template files written by format
	Exports *prometheus.CounterVec

	// Partner responses by partner and HTTP status
	PartnerResponses *prometheus.CounterVec
}

// New creates a Metrics instance registered on reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RowsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadintake_rows_ingested_total",
			Help: "Total lead rows stored by bulk ingestion",
		}),

		RowsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadintake_rows_rejected_total",
			Help: "Total lead rows that failed normalization or validation",
		}),

		IngestOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadintake_ingest_outcomes_total",
			Help: "Bulk ingest outcomes by result and final phase",
		}, []string{"outcome", "phase"}), // outcome: "committed", "rejected", "failed"

		IngestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadintake_ingest_duration_seconds",
			Help:    "Duration of bulk ingests by file format",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"format"}),

		Exports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadintake_exports_total",
			Help: "Export and template files written by format and kind",
		}, []string{"format", "kind"}), // kind: "export", "template"

		PartnerResponses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadintake_partner_responses_total",
			Help: "Partner API responses by partner and HTTP status",
		}, []string{"partner", "status"}),
	}
}

// ObserveIngest records the end of a bulk ingest.
func (m *Metrics) ObserveIngest(format, outcome, phase string, created, rejected int, d time.Duration) {
	if m == nil {
		return
	}
	m.IngestOutcome.WithLabelValues(outcome, phase).Inc()
	m.IngestDuration.WithLabelValues(format).Observe(d.Seconds())
	if created > 0 {
		m.RowsIngested.Add(float64(created))
	}
	if rejected > 0 {
		m.RowsRejected.Add(float64(rejected))
	}
}

// IncrementExport records a written export or template file.
func (m *Metrics) IncrementExport(format, kind string) {
	if m != nil {
		m.Exports.WithLabelValues(format, kind).Inc()
	}
}

// IncrementPartnerResponse records a partner API response.
func (m *Metrics) IncrementPartnerResponse(partner, status string) {
	if m != nil {
		m.PartnerResponses.WithLabelValues(partner, status).Inc()
	}
}
