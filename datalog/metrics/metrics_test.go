package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/horus-datalog/datalog/annotations"
)

func TestRecorderHandle(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Handle(annotations.Event{Name: annotations.RuleEvaluated, Latency: time.Millisecond, Data: map[string]interface{}{
		"rule": "Reentrancy", "relation": "Reentrancy", "tuple.count": 3,
	}})
	r.Handle(annotations.Event{Name: annotations.RuleEvaluated, Data: map[string]interface{}{
		"rule": "Reentrancy", "relation": "Reentrancy", "tuple.count": 2,
	}})
	r.Handle(annotations.Event{Name: annotations.RuleSkipped, Data: map[string]interface{}{"rule": "ShortAddress"}})
	r.Handle(annotations.Event{Name: annotations.FixpointIteration, Data: map[string]interface{}{"targets": []string{"data_flow"}}})
	r.Handle(annotations.Event{Name: annotations.RelationLoaded, Data: map[string]interface{}{"relation": "call", "tuple.count": 42}})
	r.Handle(annotations.Event{Name: annotations.PredicateWarning, Data: map[string]interface{}{"rule": "ShortAddress"}})

	require.Equal(t, 2.0, testutil.ToFloat64(r.ruleEvaluations.WithLabelValues("Reentrancy", "evaluated")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.ruleEvaluations.WithLabelValues("ShortAddress", "skipped")))
	require.Equal(t, 5.0, testutil.ToFloat64(r.tuplesDerived.WithLabelValues("Reentrancy")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.fixpointIterations.WithLabelValues("data_flow")))
	require.Equal(t, 42.0, testutil.ToFloat64(r.relationTuples.WithLabelValues("call", "loaded")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.predicateWarnings.WithLabelValues("ShortAddress")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	require.True(t, names["horus_rule_duration_seconds"])
	require.True(t, names["horus_rule_evaluations_total"])
}
