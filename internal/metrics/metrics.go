package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Analysis outcomes
const (
	OutcomeReady      = "ready"
	OutcomeFailed     = "failed"
	OutcomeMalformed  = "malformed"
	OutcomeSuperseded = "superseded"
)

// Metrics holds the report pipeline collectors
type Metrics struct {
	analysesTotal    *prometheus.CounterVec
	analyzerDuration prometheus.Histogram
	recordsTotal     *prometheus.CounterVec
	activeSessions   prometheus.Gauge
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		analysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraud_report_analyses_total",
				Help: "Total number of analyses by outcome",
			},
			[]string{"outcome"},
		),
		analyzerDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fraud_report_analyzer_duration_seconds",
				Help:    "Analyzer round trip duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		recordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraud_report_records_total",
				Help: "Verdict records processed, by result",
			},
			[]string{"result"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fraud_report_active_sessions",
				Help: "Upload sessions currently held in memory",
			},
		),
	}
}

// ObserveAnalysis records the outcome and analyzer latency of one submission
func (m *Metrics) ObserveAnalysis(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.analysesTotal.WithLabelValues(outcome).Inc()
	m.analyzerDuration.Observe(took.Seconds())
}

// ObserveRecords counts accepted and rejected records of a batch
func (m *Metrics) ObserveRecords(accepted, rejected int) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues("accepted").Add(float64(accepted))
	m.recordsTotal.WithLabelValues("rejected").Add(float64(rejected))
}

// SetActiveSessions updates the session gauge
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
