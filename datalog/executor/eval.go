package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wbrown/horus-datalog/datalog"
	"github.com/wbrown/horus-datalog/datalog/logging"
	"github.com/wbrown/horus-datalog/datalog/query"
	"github.com/wbrown/horus-datalog/datalog/relation"
)

// evaluation is the state of one Run.
type evaluation struct {
	plan *Plan
	ectx Context
}

// worker evaluates one rule over one chunk. It owns its frame, probe
// buffers and hints, so workers never share mutable state.
type worker struct {
	plan   *Plan
	ectx   Context
	rule   *rule
	frame  []datalog.Tuple
	probes []datalog.Tuple
	head   datalog.Tuple
	hints  []*relation.Hints

	derived int
}

func (e *evaluation) newWorker(r *rule) *worker {
	w := &worker{
		plan:   e.plan,
		ectx:   e.ectx,
		rule:   r,
		frame:  make([]datalog.Tuple, r.slots),
		probes: make([]datalog.Tuple, len(r.gens)),
		head:   make(datalog.Tuple, len(r.head)),
		hints:  make([]*relation.Hints, len(e.plan.relations)),
	}
	for i, g := range r.gens {
		if len(g.bind) > 0 {
			w.probes[i] = make(datalog.Tuple, g.rel.Arity())
		}
	}
	return w
}

func (w *worker) hint(relID int) *relation.Hints {
	h := w.hints[relID]
	if h == nil {
		h = relation.NewHints()
		w.hints[relID] = h
	}
	return h
}

// release hands hint statistics back to the relations.
func (w *worker) release() {
	for id, h := range w.hints {
		if h != nil {
			w.plan.relations[id].Release(h)
		}
	}
}

func (w *worker) resolve(v datalog.Value) string {
	s, _ := w.plan.symbols.Resolve(v)
	return s
}

func (w *worker) intern(s string) datalog.Value {
	return w.plan.symbols.Intern(s)
}

func (w *worker) warn(predicate, message string) {
	logging.Warn().
		Str("rule", w.rule.name).
		Str("predicate", predicate).
		Msg(message)
	w.ectx.PredicateWarning(w.rule.name, predicate, message)
}

// rangeFor returns the tuples of generator i matching its bindings under
// the current frame.
func (w *worker) rangeFor(i int) relation.Range {
	g := w.rule.gens[i]
	if g.sig == 0 {
		return g.rel.Scan(w.hint(g.relID))
	}
	probe := w.fillProbe(i)
	return g.rel.RangeOn(g.idx, g.sig, probe, w.hint(g.relID))
}

func (w *worker) fillProbe(i int) datalog.Tuple {
	g := w.rule.gens[i]
	probe := w.probes[i]
	for _, b := range g.bind {
		probe[b.col] = b.term.eval(w)
	}
	return probe
}

func (w *worker) filters(g *generator) bool {
	for _, p := range g.where {
		if !p.holds(w) {
			return false
		}
	}
	return true
}

// step runs generators i.. as nested loops. top, when non-nil, replaces
// the range of the outermost generator.
func (w *worker) step(i int, top *relation.Range) {
	r := w.rule
	if i == len(r.gens) {
		w.emit()
		return
	}
	g := r.gens[i]

	switch g.kind {
	case query.Exists, query.NotExists:
		if !w.filters(g) {
			return
		}
		var empty bool
		if g.sig == 0 {
			empty = g.rel.Empty()
		} else {
			empty = g.rel.EmptyOn(g.idx, g.sig, w.fillProbe(i), w.hint(g.relID))
		}
		if empty == (g.kind == query.Exists) {
			return
		}
		w.step(i+1, nil)

	default:
		var rg relation.Range
		if top != nil && i == 0 {
			rg = *top
		} else {
			rg = w.rangeFor(i)
		}
		rg.Each(func(t datalog.Tuple) bool {
			w.frame[g.slot] = t
			if !w.filters(g) {
				return true
			}
			w.step(i+1, nil)
			return !g.first
		})
	}
}

func (w *worker) emit() {
	r := w.rule
	for i, t := range r.head {
		w.head[i] = t.eval(w)
	}
	if r.exclude != nil && r.exclude.Contains(w.head, w.hint(r.excludeID)) {
		return
	}
	if r.target.Insert(w.head, w.hint(r.targetID)) {
		w.derived++
	}
}

// ruleRun aggregates the chunks of one rule.
type ruleRun struct {
	rule    *rule
	pending atomic.Int32
	derived atomic.Int64
	busy    atomic.Int64
}

type task struct {
	run *ruleRun
	top *relation.Range
}

// emptyInput returns the first relation the rule reads positively that
// has no tuples, if any.
func (r *rule) emptyInput() *relation.Relation {
	for _, rel := range r.guard {
		if rel.Empty() {
			return rel
		}
	}
	return nil
}

// splittable reports whether the outermost generator can be cut into
// chunks. A first-match generator must see its range whole.
func (r *rule) splittable() bool {
	return len(r.gens) > 0 && r.gens[0].slot >= 0 && !r.gens[0].first
}

// runRules evaluates rules together, chunking outer ranges across the
// worker pool, and returns the number of new tuples.
func (e *evaluation) runRules(ctx context.Context, rules []*rule) (int, error) {
	opts := e.plan.opts
	var tasks []task
	var runs []*ruleRun

	for _, r := range rules {
		if empty := r.emptyInput(); empty != nil {
			e.ectx.RuleSkipped(r.name, r.target.Name(), empty.Name())
			continue
		}
		run := &ruleRun{rule: r}
		runs = append(runs, run)

		if opts.Workers > 1 && r.splittable() {
			w := e.newWorker(r)
			top := w.rangeFor(0)
			w.release()
			parts := top.Split(opts.Chunks)
			run.pending.Store(int32(len(parts)))
			for j := range parts {
				tasks = append(tasks, task{run: run, top: &parts[j]})
			}
			continue
		}
		run.pending.Store(1)
		tasks = append(tasks, task{run: run})
	}

	err := e.plan.pool.Execute(ctx, len(tasks), func(ctx context.Context, i int) error {
		return e.runTask(tasks[i])
	})
	if err != nil {
		return 0, err
	}

	total := 0
	for _, run := range runs {
		total += int(run.derived.Load())
	}
	return total, nil
}

func (e *evaluation) runTask(t task) (err error) {
	r := t.run.rule
	w := e.newWorker(r)
	start := time.Now()

	defer func() {
		w.release()
		if rec := recover(); rec != nil {
			err = panicError(r.name, rec)
			return
		}
		t.run.derived.Add(int64(w.derived))
		t.run.busy.Add(int64(time.Since(start)))
		if t.run.pending.Add(-1) == 0 {
			derived := int(t.run.derived.Load())
			e.ectx.RuleEvaluated(r.name, r.target.Name(), time.Duration(t.run.busy.Load()), derived)
			logging.Debug().
				Str("rule", r.name).
				Int("derived", derived).
				Msg("rule evaluated")
		}
	}()

	w.step(0, t.top)
	return nil
}

// panicError converts a panic inside a rule into an error. Arity and
// conversion failures arrive as error values and keep their chain.
func panicError(rule string, rec interface{}) error {
	if err, ok := rec.(error); ok {
		return fmt.Errorf("rule %s: %w", rule, err)
	}
	return fmt.Errorf("rule %s: %w: %v", rule, ErrRulePanic, rec)
}
