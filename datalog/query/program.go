package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wbrown/horus-datalog/datalog"
)

// Role says where a relation's contents come from and go to.
type Role int

const (
	Internal Role = iota
	Input
	Output
)

func (r Role) String() string {
	switch r {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return "internal"
	}
}

// ParseRole accepts "input", "output" and "internal".
func ParseRole(s string) (Role, error) {
	switch s {
	case "input":
		return Input, nil
	case "output":
		return Output, nil
	case "internal", "":
		return Internal, nil
	}
	return Internal, fmt.Errorf("unknown relation role %q", s)
}

// RelationDecl declares a relation. Indices list column names; each
// order may cover only a prefix of the columns.
type RelationDecl struct {
	Name    string
	Role    Role
	Columns []datalog.Column
	Indices [][]string
}

// GeneratorKind selects how a generator produces bindings.
type GeneratorKind int

const (
	// Scan iterates the whole relation.
	Scan GeneratorKind = iota
	// Range iterates the tuples whose bound columns match.
	Range
	// Exists passes when at least one tuple matches; binds nothing.
	Exists
	// NotExists passes when no tuple matches; binds nothing.
	NotExists
)

func (k GeneratorKind) String() string {
	switch k {
	case Scan:
		return "scan"
	case Range:
		return "range"
	case Exists:
		return "exists"
	case NotExists:
		return "not"
	}
	return fmt.Sprintf("generator(%d)", int(k))
}

// Binding fixes a column of a generator to a term.
type Binding struct {
	Column string
	Term   Term
}

// Generator is one step of a rule's nested loop.
type Generator struct {
	Kind     GeneratorKind
	Relation string
	Alias    string
	Bind     []Binding
	Where    []Predicate
	// First stops the generator after its first tuple that passes Where,
	// once the rest of the body has run for it.
	First bool
	// Delta reads the previous round's new tuples of a fixpoint target.
	Delta bool
}

// Binds reports whether the generator makes an alias visible to later
// generators.
func (g Generator) Binds() bool {
	return g.Kind == Scan || g.Kind == Range
}

func (g Generator) String() string {
	var b strings.Builder
	b.WriteString(g.Kind.String())
	b.WriteByte(' ')
	if g.Delta {
		b.WriteString("@delta ")
	}
	b.WriteString(g.Relation)
	if g.Alias != "" {
		b.WriteString(" as ")
		b.WriteString(g.Alias)
	}
	if len(g.Bind) > 0 {
		parts := make([]string, len(g.Bind))
		for i, bd := range g.Bind {
			parts[i] = bd.Column + "=" + bd.Term.String()
		}
		b.WriteString(" {" + strings.Join(parts, ", ") + "}")
	}
	for _, p := range g.Where {
		b.WriteString(" where " + p.String())
	}
	if g.First {
		b.WriteString(" first")
	}
	return b.String()
}

// Head is the projection of a rule into its target relation.
type Head struct {
	Relation string
	Terms    []Term
}

func (h Head) String() string {
	terms := make([]string, len(h.Terms))
	for i, t := range h.Terms {
		terms[i] = t.String()
	}
	return h.Relation + "(" + strings.Join(terms, ", ") + ")"
}

// Rule derives Head tuples for every binding produced by Body.
type Rule struct {
	Name string
	Head Head
	Body []Generator
}

func (r Rule) String() string {
	body := make([]string, len(r.Body))
	for i, g := range r.Body {
		body[i] = g.String()
	}
	return r.Head.String() + " :- " + strings.Join(body, "; ")
}

// StratumKind tags the variants of Stratum.
type StratumKind int

const (
	Load StratumKind = iota
	Derive
	Fixpoint
	Emit
	Purge
)

func (k StratumKind) String() string {
	switch k {
	case Load:
		return "load"
	case Derive:
		return "derive"
	case Fixpoint:
		return "fixpoint"
	case Emit:
		return "emit"
	case Purge:
		return "purge"
	}
	return fmt.Sprintf("stratum(%d)", int(k))
}

// FixpointGroup is a recursive rule group evaluated semi-naively.
type FixpointGroup struct {
	Targets   []string
	Base      []Rule
	Recursive []Rule
}

// Stratum is one step of a program. Relations is used by Load, Emit and
// Purge; Rules by Derive; Group by Fixpoint.
type Stratum struct {
	Kind      StratumKind
	Relations []string
	Rules     []Rule
	Group     *FixpointGroup
}

// Name describes the stratum for logs and events.
func (s Stratum) Name() string {
	switch s.Kind {
	case Derive:
		targets := make(map[string]bool)
		for _, r := range s.Rules {
			targets[r.Head.Relation] = true
		}
		return "derive " + strings.Join(sortedKeys(targets), ",")
	case Fixpoint:
		if s.Group != nil {
			return "fixpoint " + strings.Join(s.Group.Targets, ",")
		}
		return "fixpoint"
	default:
		return s.Kind.String() + " " + strings.Join(s.Relations, ",")
	}
}

// Program is a complete rule program.
type Program struct {
	Name      string
	Symbols   []string
	Relations []RelationDecl
	Strata    []Stratum
}

// Relation returns the declaration named name.
func (p *Program) Relation(name string) (*RelationDecl, bool) {
	for i := range p.Relations {
		if p.Relations[i].Name == name {
			return &p.Relations[i], true
		}
	}
	return nil, false
}

// RelationsWithRole lists relation names with the role in declaration
// order.
func (p *Program) RelationsWithRole(role Role) []string {
	var names []string
	for _, r := range p.Relations {
		if r.Role == role {
			names = append(names, r.Name)
		}
	}
	return names
}

// Rules returns every rule in stratum order, fixpoint rules included.
func (p *Program) Rules() []Rule {
	var rules []Rule
	for _, s := range p.Strata {
		switch s.Kind {
		case Derive:
			rules = append(rules, s.Rules...)
		case Fixpoint:
			if s.Group != nil {
				rules = append(rules, s.Group.Base...)
				rules = append(rules, s.Group.Recursive...)
			}
		}
	}
	return rules
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
