// Package metrics exports evaluation events as Prometheus metrics.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wbrown/horus-datalog/datalog/annotations"
)

const namespace = "horus"

// Recorder turns annotation events into metrics. Its Handle method is an
// annotations.Handler.
type Recorder struct {
	ruleEvaluations    *prometheus.CounterVec
	ruleDuration       *prometheus.HistogramVec
	tuplesDerived      *prometheus.CounterVec
	fixpointIterations *prometheus.CounterVec
	relationTuples     *prometheus.GaugeVec
	predicateWarnings  *prometheus.CounterVec
}

// New registers the metrics with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ruleEvaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_evaluations_total",
			Help:      "number of rule evaluations, by rule and outcome",
		}, []string{"rule", "outcome"}),

		ruleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rule_duration_seconds",
			Help:      "time spent evaluating a rule",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
		}, []string{"rule"}),

		tuplesDerived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tuples_derived_total",
			Help:      "new tuples inserted by rules, by target relation",
		}, []string{"relation"}),

		fixpointIterations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fixpoint_iterations_total",
			Help:      "semi-naive rounds run, by target group",
		}, []string{"targets"}),

		relationTuples: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relation_tuples",
			Help:      "tuple count of a relation when it was last loaded or emitted",
		}, []string{"relation", "stage"}),

		predicateWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predicate_warnings_total",
			Help:      "predicates that degraded to false or empty string",
		}, []string{"rule"}),
	}
}

// Handle records one event.
func (r *Recorder) Handle(e annotations.Event) {
	switch e.Name {
	case annotations.RuleEvaluated:
		rule := e.String("rule")
		r.ruleEvaluations.WithLabelValues(rule, "evaluated").Inc()
		r.ruleDuration.WithLabelValues(rule).Observe(e.Latency.Seconds())
		r.tuplesDerived.WithLabelValues(e.String("relation")).Add(float64(e.Int("tuple.count")))

	case annotations.RuleSkipped:
		r.ruleEvaluations.WithLabelValues(e.String("rule"), "skipped").Inc()

	case annotations.FixpointIteration:
		targets, _ := e.Data["targets"].([]string)
		r.fixpointIterations.WithLabelValues(strings.Join(targets, ",")).Inc()

	case annotations.RelationLoaded:
		r.relationTuples.WithLabelValues(e.String("relation"), "loaded").Set(float64(e.Int("tuple.count")))

	case annotations.RelationEmitted:
		r.relationTuples.WithLabelValues(e.String("relation"), "emitted").Set(float64(e.Int("tuple.count")))

	case annotations.PredicateWarning:
		r.predicateWarnings.WithLabelValues(e.String("rule")).Inc()
	}
}
