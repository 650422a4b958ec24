package metrics

import (
	"sync"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the decision and learning flows.
//
// Metrics:
//   - invoice_memory_decisions_total{outcome} - invoices decided, by outcome
//   - invoice_memory_decision_confidence - histogram of confidence scores
//   - invoice_memory_patterns_applied_total{kind} - patterns applied during decisions
//   - invoice_memory_patterns_learned_total{kind} - patterns written from corrections
//   - invoice_memory_recall_failures_total{family} - recalls degraded to empty
//   - invoice_memory_duplicates_total - duplicate invoices flagged
//   - invoice_memory_version_conflicts_total{family} - optimistic write retries
type Metrics struct {
	DecisionsTotal        *prometheus.CounterVec
	DecisionConfidence    prometheus.Histogram
	PatternsAppliedTotal  *prometheus.CounterVec
	PatternsLearnedTotal  *prometheus.CounterVec
	RecallFailuresTotal   *prometheus.CounterVec
	DuplicatesTotal       prometheus.Counter
	VersionConflictsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics once per process
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = newMetrics(promauto.With(prometheus.DefaultRegisterer))
	})
	return globalMetrics
}

// NewMetricsWithRegistry registers the metrics on reg, for tests and custom exposition
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(factory promauto.Factory) *Metrics {
	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_memory_decisions_total",
				Help: "Total number of invoice decisions",
			},
			[]string{"outcome"}, // "auto_accepted", "duplicate", "below_threshold", ...
		),
		DecisionConfidence: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "invoice_memory_decision_confidence",
				Help:    "Confidence score of invoice decisions",
				Buckets: []float64{0.3, 0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95},
			},
		),
		PatternsAppliedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_memory_patterns_applied_total",
				Help: "Total number of learned patterns applied to invoices",
			},
			[]string{"kind"},
		),
		PatternsLearnedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_memory_patterns_learned_total",
				Help: "Total number of patterns written from human corrections",
			},
			[]string{"kind"},
		),
		RecallFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_memory_recall_failures_total",
				Help: "Total number of memory reads that degraded to an empty result",
			},
			[]string{"family"},
		),
		DuplicatesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "invoice_memory_duplicates_total",
				Help: "Total number of duplicate invoices flagged",
			},
		),
		VersionConflictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_memory_version_conflicts_total",
				Help: "Total number of optimistic pattern writes that lost a race",
			},
			[]string{"family"},
		),
	}
}

// ObserveDecision records a decision outcome and its confidence
func (m *Metrics) ObserveDecision(outcome string, confidence float64) {
	m.DecisionsTotal.WithLabelValues(outcome).Inc()
	m.DecisionConfidence.Observe(confidence)
}

// IncPatternApplied counts a pattern applied during a decision
func (m *Metrics) IncPatternApplied(kind string) {
	m.PatternsAppliedTotal.WithLabelValues(kind).Inc()
}

// IncPatternLearned counts a pattern written from a correction
func (m *Metrics) IncPatternLearned(kind string) {
	m.PatternsLearnedTotal.WithLabelValues(kind).Inc()
}

// IncRecallFailure counts a degraded memory read
func (m *Metrics) IncRecallFailure(family string) {
	m.RecallFailuresTotal.WithLabelValues(family).Inc()
}

// IncDuplicateDetected counts a duplicate invoice
func (m *Metrics) IncDuplicateDetected() {
	m.DuplicatesTotal.Inc()
}

// IncVersionConflict counts a lost optimistic write
func (m *Metrics) IncVersionConflict(family string) {
	m.VersionConflictsTotal.WithLabelValues(family).Inc()
}

var _ port.MemoryMetrics = (*Metrics)(nil)
