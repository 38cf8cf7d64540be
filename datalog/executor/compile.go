package executor

import (
	"fmt"
	"strings"

	"github.com/wbrown/horus-datalog/datalog"
	"github.com/wbrown/horus-datalog/datalog/query"
	"github.com/wbrown/horus-datalog/datalog/relation"
)

// Plan is a compiled program. It owns one relation per declaration plus
// the delta and new relations of every fixpoint target. Every rule is
// resolved down to relation pointers, index numbers and frame slots.
type Plan struct {
	name    string
	program *query.Program
	symbols *datalog.SymbolTable
	opts    Options
	pool    *WorkerPool
	regexes *RegexCache

	relations []*relation.Relation
	byName    map[string]int
	strata    []*stratum
}

type stratum struct {
	index     int
	name      string
	kind      query.StratumKind
	relations []*relation.Relation
	rules     []*rule
	fixpoint  *fixpoint
}

type rule struct {
	name string

	// target receives head tuples; when exclude is set, tuples it already
	// holds are dropped first.
	target    *relation.Relation
	targetID  int
	exclude   *relation.Relation
	excludeID int

	head  []*term
	gens  []*generator
	guard []*relation.Relation
	slots int
}

type generator struct {
	kind  query.GeneratorKind
	rel   *relation.Relation
	relID int
	slot  int
	idx   int
	sig   relation.Signature
	bind  []boundTerm
	where []*predicate
	first bool
	src   query.Generator
}

type boundTerm struct {
	col  int
	term *term
}

// Compile resolves a program against its declarations. symbols may be
// nil; the program's seed symbols are interned first either way.
func Compile(prog *query.Program, symbols *datalog.SymbolTable, opts Options) (*Plan, error) {
	if prog == nil {
		return nil, fmt.Errorf("%w: nil program", ErrInvalidProgram)
	}
	opts = opts.normalized()
	if symbols == nil {
		symbols = datalog.NewSymbolTable()
	}
	for _, s := range prog.Symbols {
		symbols.Intern(s)
	}

	p := &Plan{
		name:    prog.Name,
		program: prog,
		symbols: symbols,
		opts:    opts,
		pool:    NewWorkerPool(opts.Workers),
		regexes: NewRegexCache(opts.RegexCacheSize),
		byName:  make(map[string]int),
	}

	for _, decl := range prog.Relations {
		if _, dup := p.byName[decl.Name]; dup {
			return nil, fmt.Errorf("%w: relation %s declared twice", ErrInvalidProgram, decl.Name)
		}
		schema, err := schemaFor(decl)
		if err != nil {
			return nil, err
		}
		rel, err := relation.New(schema)
		if err != nil {
			return nil, err
		}
		p.byName[decl.Name] = p.add(rel)
	}

	if opts.Stratum >= len(prog.Strata) {
		return nil, fmt.Errorf("%w: stratum %d out of range, program has %d", ErrInvalidProgram, opts.Stratum, len(prog.Strata))
	}

	for i, s := range prog.Strata {
		cs, err := p.compileStratum(i, s)
		if err != nil {
			return nil, fmt.Errorf("stratum %d (%s): %w", i, s.Name(), err)
		}
		p.strata = append(p.strata, cs)
	}

	if err := p.checkStratification(); err != nil {
		return nil, err
	}
	return p, nil
}

func schemaFor(decl query.RelationDecl) (relation.Schema, error) {
	schema := relation.Schema{Name: decl.Name, Columns: decl.Columns}
	for _, names := range decl.Indices {
		perm := make([]int, len(names))
		for i, n := range names {
			c := schema.ColumnIndex(n)
			if c < 0 {
				return schema, fmt.Errorf("%w: index of %s names %s", ErrUnknownColumn, decl.Name, n)
			}
			perm[i] = c
		}
		schema.Indices = append(schema.Indices, perm)
	}
	return schema, nil
}

func (p *Plan) add(rel *relation.Relation) int {
	p.relations = append(p.relations, rel)
	return len(p.relations) - 1
}

func (p *Plan) lookup(name string) (*relation.Relation, int, error) {
	id, ok := p.byName[name]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownRelation, name)
	}
	return p.relations[id], id, nil
}

// Name returns the program name.
func (p *Plan) Name() string { return p.name }

// Symbols returns the symbol table the plan interns into.
func (p *Plan) Symbols() *datalog.SymbolTable { return p.symbols }

// Options returns the normalized options the plan runs with.
func (p *Plan) Options() Options { return p.opts }

// Program returns the source program.
func (p *Plan) Program() *query.Program { return p.program }

// Relation returns a declared relation by name.
func (p *Plan) Relation(name string) (*relation.Relation, bool) {
	id, ok := p.byName[name]
	if !ok {
		return nil, false
	}
	return p.relations[id], true
}

// Relations returns the declared relations in declaration order.
func (p *Plan) Relations() []*relation.Relation {
	out := make([]*relation.Relation, 0, len(p.byName))
	for _, decl := range p.program.Relations {
		out = append(out, p.relations[p.byName[decl.Name]])
	}
	return out
}

// fixpointScope tells the rule compiler which targets a recursive rule
// may read through delta generators, and where its heads go.
type fixpointScope struct {
	targets   map[string]*fixTarget
	recursive bool
}

func (p *Plan) compileStratum(index int, s query.Stratum) (*stratum, error) {
	cs := &stratum{index: index, name: s.Name(), kind: s.Kind}

	switch s.Kind {
	case query.Load, query.Emit, query.Purge:
		if len(s.Relations) == 0 {
			return nil, fmt.Errorf("%w: %s stratum names no relations", ErrInvalidProgram, s.Kind)
		}
		for _, name := range s.Relations {
			rel, _, err := p.lookup(name)
			if err != nil {
				return nil, err
			}
			cs.relations = append(cs.relations, rel)
		}

	case query.Derive:
		if len(s.Rules) == 0 {
			return nil, fmt.Errorf("%w: derive stratum has no rules", ErrInvalidProgram)
		}
		for _, r := range s.Rules {
			cr, err := p.compileRule(r, nil)
			if err != nil {
				return nil, err
			}
			cs.rules = append(cs.rules, cr)
		}

	case query.Fixpoint:
		fp, err := p.compileFixpoint(s.Group)
		if err != nil {
			return nil, err
		}
		cs.fixpoint = fp

	default:
		return nil, fmt.Errorf("%w: unknown stratum kind %d", ErrInvalidProgram, int(s.Kind))
	}
	return cs, nil
}

func (p *Plan) compileFixpoint(g *query.FixpointGroup) (*fixpoint, error) {
	if g == nil || len(g.Targets) == 0 {
		return nil, fmt.Errorf("%w: fixpoint without targets", ErrInvalidProgram)
	}
	fp := &fixpoint{names: g.Targets}
	scope := &fixpointScope{targets: make(map[string]*fixTarget)}

	for _, name := range g.Targets {
		full, id, err := p.lookup(name)
		if err != nil {
			return nil, err
		}
		if _, dup := scope.targets[name]; dup {
			return nil, fmt.Errorf("%w: fixpoint target %s listed twice", ErrInvalidProgram, name)
		}
		t := &fixTarget{full: full, fullID: id}
		for _, suffix := range []string{"delta", "new"} {
			schema := full.Schema()
			schema.Name = name + "." + suffix
			rel, err := relation.New(schema)
			if err != nil {
				return nil, err
			}
			if suffix == "delta" {
				t.delta, t.deltaID = rel, p.add(rel)
			} else {
				t.next, t.nextID = rel, p.add(rel)
			}
		}
		scope.targets[name] = t
		fp.targets = append(fp.targets, t)
	}

	for _, r := range g.Base {
		cr, err := p.compileRule(r, scope)
		if err != nil {
			return nil, err
		}
		fp.base = append(fp.base, cr)
	}

	scope.recursive = true
	for _, r := range g.Recursive {
		cr, err := p.compileRule(r, scope)
		if err != nil {
			return nil, err
		}
		fp.recursive = append(fp.recursive, cr)
	}
	return fp, nil
}

// aliasInfo is a frame slot bound by an earlier generator.
type aliasInfo struct {
	slot   int
	schema relation.Schema
}

type ruleScope struct {
	aliases map[string]aliasInfo
}

func (p *Plan) compileRule(r query.Rule, fs *fixpointScope) (*rule, error) {
	name := r.Name
	if name == "" {
		name = r.Head.Relation
	}
	cr, err := p.compileRuleBody(name, r, fs)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", name, err)
	}
	return cr, nil
}

func (p *Plan) compileRuleBody(name string, r query.Rule, fs *fixpointScope) (*rule, error) {
	cr := &rule{name: name}
	scope := &ruleScope{aliases: make(map[string]aliasInfo)}
	guarded := make(map[*relation.Relation]bool)

	for i, g := range r.Body {
		cg, err := p.compileGenerator(g, scope, fs)
		if err != nil {
			return nil, fmt.Errorf("generator %d (%s): %w", i, g.Relation, err)
		}
		cr.gens = append(cr.gens, cg)
		if cg.kind != query.NotExists && !guarded[cg.rel] {
			guarded[cg.rel] = true
			cr.guard = append(cr.guard, cg.rel)
		}
	}
	cr.slots = len(scope.aliases)

	target, targetID, err := p.lookup(r.Head.Relation)
	if err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}
	schema := target.Schema()
	if len(r.Head.Terms) != schema.Arity() {
		return nil, fmt.Errorf("%w: head %s has %d terms, relation has %d columns",
			ErrArity, r.Head.Relation, len(r.Head.Terms), schema.Arity())
	}
	for i, t := range r.Head.Terms {
		ct, err := p.compileTerm(t, scope)
		if err != nil {
			return nil, fmt.Errorf("head column %s: %w", schema.Columns[i].Name, err)
		}
		if ct.typ != schema.Columns[i].Kind {
			return nil, fmt.Errorf("%w: head column %s is %s, term %s is %s",
				ErrTypeMismatch, schema.Columns[i].Name, schema.Columns[i].Kind, t, ct.typ)
		}
		cr.head = append(cr.head, ct)
	}

	cr.target, cr.targetID = target, targetID
	if fs != nil {
		t, isTarget := fs.targets[r.Head.Relation]
		if !isTarget {
			return nil, fmt.Errorf("%w: fixpoint rule derives %s, which is not a target", ErrInvalidProgram, r.Head.Relation)
		}
		if fs.recursive {
			cr.target, cr.targetID = t.next, t.nextID
			cr.exclude, cr.excludeID = t.full, t.fullID
		}
	}
	return cr, nil
}

func (p *Plan) compileGenerator(g query.Generator, scope *ruleScope, fs *fixpointScope) (*generator, error) {
	rel, relID, err := p.lookup(g.Relation)
	if err != nil {
		return nil, err
	}
	if g.Delta {
		if fs == nil || !fs.recursive {
			return nil, fmt.Errorf("%w: %s", ErrInvalidDelta, g.Relation)
		}
		t, ok := fs.targets[g.Relation]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a target of this fixpoint", ErrInvalidDelta, g.Relation)
		}
		if g.Kind == query.NotExists {
			return nil, fmt.Errorf("%w: negated delta of %s", ErrNotStratified, g.Relation)
		}
		rel, relID = t.delta, t.deltaID
	}

	schema := rel.Schema()
	cg := &generator{kind: g.Kind, rel: rel, relID: relID, slot: -1, first: g.First, src: g}

	var bound []int
	for _, b := range g.Bind {
		col := schema.ColumnIndex(b.Column)
		if col < 0 {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, g.Relation, b.Column)
		}
		for _, c := range bound {
			if c == col {
				return nil, fmt.Errorf("%w: column %s bound twice", ErrInvalidProgram, b.Column)
			}
		}
		ct, err := p.compileTerm(b.Term, scope)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", b.Column, err)
		}
		if ct.typ != schema.Columns[col].Kind {
			return nil, fmt.Errorf("%w: %s.%s is %s, term %s is %s",
				ErrTypeMismatch, g.Relation, b.Column, schema.Columns[col].Kind, b.Term, ct.typ)
		}
		bound = append(bound, col)
		cg.bind = append(cg.bind, boundTerm{col: col, term: ct})
	}
	cg.sig = relation.SignatureOf(bound...)

	switch g.Kind {
	case query.Scan, query.Range:
		if g.Alias == "" {
			return nil, fmt.Errorf("%w: %s generator needs an alias", ErrInvalidProgram, g.Kind)
		}
		if _, dup := scope.aliases[g.Alias]; dup {
			return nil, fmt.Errorf("%w: alias %s reused", ErrInvalidProgram, g.Alias)
		}
		cg.slot = len(scope.aliases)
		scope.aliases[g.Alias] = aliasInfo{slot: cg.slot, schema: schema}
	case query.Exists, query.NotExists:
		if g.First {
			return nil, fmt.Errorf("%w: first on %s generator", ErrInvalidProgram, g.Kind)
		}
	default:
		return nil, fmt.Errorf("%w: unknown generator kind %d", ErrInvalidProgram, int(g.Kind))
	}

	if cg.idx, err = rel.IndexFor(cg.sig); err != nil {
		return nil, err
	}

	for _, w := range g.Where {
		cp, err := p.compilePredicate(w, scope)
		if err != nil {
			return nil, fmt.Errorf("where %s: %w", w, err)
		}
		cg.where = append(cg.where, cp)
	}
	return cg, nil
}

// checkStratification verifies that every relation a rule reads is
// complete before the rule's stratum runs: it is produced (loaded or
// derived) only by earlier strata. A fixpoint may read its own targets
// from recursive rules, but never negate them.
func (p *Plan) checkStratification() error {
	producers := make(map[*relation.Relation][]int)
	for _, s := range p.strata {
		switch s.kind {
		case query.Load:
			for _, rel := range s.relations {
				producers[rel] = append(producers[rel], s.index)
			}
		case query.Derive:
			for _, r := range s.rules {
				producers[r.target] = append(producers[r.target], s.index)
			}
		case query.Fixpoint:
			for _, t := range s.fixpoint.targets {
				producers[t.full] = append(producers[t.full], s.index)
			}
		}
	}

	check := func(s *stratum, r *rule, recursive bool, targets map[*relation.Relation]bool) error {
		for _, g := range r.gens {
			for _, at := range producers[g.rel] {
				if at < s.index {
					continue
				}
				if at == s.index && recursive && targets[g.rel] && g.kind != query.NotExists {
					continue
				}
				verb := "reads"
				if g.kind == query.NotExists {
					verb = "negates"
				}
				return fmt.Errorf("%w: stratum %d rule %s %s %s, which stratum %d produces",
					ErrNotStratified, s.index, r.name, verb, g.rel.Name(), at)
			}
		}
		return nil
	}

	for _, s := range p.strata {
		switch s.kind {
		case query.Derive:
			for _, r := range s.rules {
				if err := check(s, r, false, nil); err != nil {
					return err
				}
			}
		case query.Fixpoint:
			targets := make(map[*relation.Relation]bool)
			for _, t := range s.fixpoint.targets {
				targets[t.full] = true
			}
			for _, r := range s.fixpoint.base {
				if err := check(s, r, false, nil); err != nil {
					return err
				}
			}
			for _, r := range s.fixpoint.recursive {
				if err := check(s, r, true, targets); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Describe renders the compiled plan, one line per stratum and rule,
// with the index chosen for every generator.
func (p *Plan) Describe() string {
	var b strings.Builder
	for _, s := range p.strata {
		fmt.Fprintf(&b, "[%d] %s\n", s.index, s.name)
		var rules []*rule
		rules = append(rules, s.rules...)
		if s.fixpoint != nil {
			rules = append(rules, s.fixpoint.base...)
			rules = append(rules, s.fixpoint.recursive...)
		}
		for _, r := range rules {
			fmt.Fprintf(&b, "    %s → %s\n", r.name, r.target.Name())
			for _, g := range r.gens {
				fmt.Fprintf(&b, "        %s %s index %d %v\n", g.kind, g.rel.Name(), g.idx, g.rel.Orders()[g.idx])
			}
		}
	}
	return b.String()
}
