// Package metrics provides Prometheus collectors for ranking requests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricRankRequestsTotal      = "yojana_rank_requests_total"
	MetricRankDuration           = "yojana_rank_duration_seconds"
	MetricCandidatesSkippedTotal = "yojana_candidates_skipped_total"
	MetricClauseEvaluationsTotal = "yojana_clause_evaluations_total"
	MetricSpecParseErrorsTotal   = "yojana_spec_parse_errors_total"
)

// Request outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomeInvalid       = "invalid"
	OutcomeLoadFailed    = "load_failed"
	OutcomeRankingFailed = "ranking_failed"
)

// Skip reasons.
const (
	SkipNotFound = "not_found"
)

// Metrics holds the ranking collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests   *prometheus.CounterVec
	duration   prometheus.Histogram
	skipped    *prometheus.CounterVec
	clauses    *prometheus.CounterVec
	specErrors prometheus.Counter
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankRequestsTotal,
				Help: "Total number of ranking requests by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricRankDuration,
				Help:    "Histogram of ranking request duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
			},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCandidatesSkippedTotal,
				Help: "Total number of semantic candidates dropped before scoring by reason",
			},
			[]string{"reason"},
		),
		clauses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricClauseEvaluationsTotal,
				Help: "Total number of evaluated eligibility clauses by scope and status",
			},
			[]string{"scope", "status"},
		),
		specErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricSpecParseErrorsTotal,
				Help: "Total number of stored eligibility documents that failed to parse",
			},
		),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requests,
		m.duration,
		m.skipped,
		m.clauses,
		m.specErrors,
	}
}

func (m *Metrics) IncRequests(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDuration(seconds float64) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
}

func (m *Metrics) IncSkipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncClause(scope, status string) {
	if m == nil {
		return
	}
	m.clauses.WithLabelValues(scope, status).Inc()
}

func (m *Metrics) IncSpecErrors() {
	if m == nil {
		return
	}
	m.specErrors.Inc()
}
