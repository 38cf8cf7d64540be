package executor

import (
	"time"

	"github.com/wbrown/horus-datalog/datalog/annotations"
	"github.com/wbrown/horus-datalog/datalog/relation"
)

// Context provides annotation points for program evaluation. Rule
// workers call into it concurrently.
type Context interface {
	// Program lifecycle
	ProgramBegin(name string, strata int)
	ProgramComplete(emitted int, err error)

	ExecuteStratum(index int, name string, fn func() error) error

	// Rules
	RuleEvaluated(rule, head string, busy time.Duration, derived int)
	RuleSkipped(rule, head, empty string)
	FixpointIteration(targets []string, iteration, added int, start time.Time)

	// Relation traffic
	LoadRelation(rel *relation.Relation, fn func() error) error
	EmitRelation(rel *relation.Relation, fn func() error) error
	RelationPurged(rel *relation.Relation, tuples int)

	PredicateWarning(rule, predicate, message string)

	// Get underlying collector
	Collector() *annotations.Collector
}

// BaseContext provides a no-op implementation with zero overhead.
type BaseContext struct{}

// NewContext creates an appropriate context based on whether annotations are needed.
func NewContext(handler annotations.Handler) Context {
	if handler == nil {
		return &BaseContext{}
	}
	return &AnnotatedContext{
		collector: annotations.NewCollector(handler),
	}
}

// BaseContext implementations - all are simple pass-throughs

func (c *BaseContext) ProgramBegin(name string, strata int) {}

func (c *BaseContext) ProgramComplete(emitted int, err error) {}

func (c *BaseContext) ExecuteStratum(index int, name string, fn func() error) error {
	return fn()
}

func (c *BaseContext) RuleEvaluated(rule, head string, busy time.Duration, derived int) {}

func (c *BaseContext) RuleSkipped(rule, head, empty string) {}

func (c *BaseContext) FixpointIteration(targets []string, iteration, added int, start time.Time) {}

func (c *BaseContext) LoadRelation(rel *relation.Relation, fn func() error) error {
	return fn()
}

func (c *BaseContext) EmitRelation(rel *relation.Relation, fn func() error) error {
	return fn()
}

func (c *BaseContext) RelationPurged(rel *relation.Relation, tuples int) {}

func (c *BaseContext) PredicateWarning(rule, predicate, message string) {}

func (c *BaseContext) Collector() *annotations.Collector {
	return nil
}

// AnnotatedContext provides full annotation tracking
type AnnotatedContext struct {
	BaseContext
	collector    *annotations.Collector
	programStart time.Time
}

func (c *AnnotatedContext) ProgramBegin(name string, strata int) {
	c.programStart = time.Now()
	c.collector.Add(annotations.Event{
		Name:  annotations.ProgramBegin,
		Start: c.programStart,
		Data: map[string]interface{}{
			"program":      name,
			"strata.count": strata,
		},
	})
}

func (c *AnnotatedContext) ProgramComplete(emitted int, err error) {
	data := map[string]interface{}{
		"tuple.count": emitted,
		"success":     err == nil,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	c.collector.AddTiming(annotations.ProgramComplete, c.programStart, data)
}

func (c *AnnotatedContext) ExecuteStratum(index int, name string, fn func() error) error {
	start := time.Now()
	c.collector.Add(annotations.Event{
		Name:  annotations.StratumBegin,
		Start: start,
		Data: map[string]interface{}{
			"stratum.index": index,
			"stratum":       name,
		},
	})

	err := fn()

	data := map[string]interface{}{
		"stratum.index": index,
		"stratum":       name,
		"success":       err == nil,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	c.collector.AddTiming(annotations.StratumComplete, start, data)
	return err
}

func (c *AnnotatedContext) RuleEvaluated(rule, head string, busy time.Duration, derived int) {
	c.collector.AddTiming(annotations.RuleEvaluated, time.Now().Add(-busy), map[string]interface{}{
		"rule":        rule,
		"relation":    head,
		"tuple.count": derived,
	})
}

func (c *AnnotatedContext) RuleSkipped(rule, head, empty string) {
	c.collector.Add(annotations.Event{
		Name:  annotations.RuleSkipped,
		Start: time.Now(),
		Data: map[string]interface{}{
			"rule":     rule,
			"relation": head,
			"empty":    empty,
		},
	})
}

func (c *AnnotatedContext) FixpointIteration(targets []string, iteration, added int, start time.Time) {
	c.collector.AddTiming(annotations.FixpointIteration, start, map[string]interface{}{
		"targets":     targets,
		"iteration":   iteration,
		"tuple.count": added,
	})
}

func (c *AnnotatedContext) LoadRelation(rel *relation.Relation, fn func() error) error {
	start := time.Now()
	err := fn()
	if err != nil {
		c.collector.AddTiming(annotations.RelationLoadFailed, start, map[string]interface{}{
			"relation": rel.Name(),
			"error":    err.Error(),
		})
		return err
	}
	c.collector.AddTiming(annotations.RelationLoaded, start, relationData(rel))
	return nil
}

func (c *AnnotatedContext) EmitRelation(rel *relation.Relation, fn func() error) error {
	start := time.Now()
	err := fn()
	data := relationData(rel)
	data["success"] = err == nil
	c.collector.AddTiming(annotations.RelationEmitted, start, data)
	return err
}

func (c *AnnotatedContext) RelationPurged(rel *relation.Relation, tuples int) {
	data := relationData(rel)
	data["tuple.count"] = tuples
	c.collector.Add(annotations.Event{
		Name:  annotations.RelationPurged,
		Start: time.Now(),
		Data:  data,
	})
}

func (c *AnnotatedContext) PredicateWarning(rule, predicate, message string) {
	c.collector.Add(annotations.Event{
		Name:  annotations.PredicateWarning,
		Start: time.Now(),
		Data: map[string]interface{}{
			"rule":      rule,
			"predicate": predicate,
			"message":   message,
		},
	})
}

func (c *AnnotatedContext) Collector() *annotations.Collector {
	return c.collector
}

func relationData(rel *relation.Relation) map[string]interface{} {
	return map[string]interface{}{
		"relation":    rel.Name(),
		"columns":     rel.Schema().ColumnNames(),
		"tuple.count": rel.Size(),
	}
}
