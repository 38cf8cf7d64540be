package parser

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/wbrown/horus-datalog/datalog"
	"github.com/wbrown/horus-datalog/datalog/query"
)

type programDoc struct {
	Name      string        `yaml:"name"`
	Symbols   []string      `yaml:"symbols"`
	Relations []relationDoc `yaml:"relations"`
	Strata    []stratumDoc  `yaml:"strata"`
}

type relationDoc struct {
	Name    string     `yaml:"name"`
	Role    string     `yaml:"role"`
	Columns []string   `yaml:"columns"`
	Indices [][]string `yaml:"indices"`
}

type stratumDoc struct {
	Load     []string     `yaml:"load"`
	Derive   []ruleDoc    `yaml:"derive"`
	Fixpoint *fixpointDoc `yaml:"fixpoint"`
	Emit     []string     `yaml:"emit"`
	Purge    []string     `yaml:"purge"`
}

type fixpointDoc struct {
	Targets   []string  `yaml:"targets"`
	Base      []ruleDoc `yaml:"base"`
	Recursive []ruleDoc `yaml:"recursive"`
}

type ruleDoc struct {
	Name string         `yaml:"name"`
	Head string         `yaml:"head"`
	Body []generatorDoc `yaml:"body"`
}

type generatorDoc struct {
	Scan   string    `yaml:"scan"`
	Range  string    `yaml:"range"`
	Exists string    `yaml:"exists"`
	Not    string    `yaml:"not"`
	As     string    `yaml:"as"`
	Bind   yaml.Node `yaml:"bind"`
	Where  []string  `yaml:"where"`
	First  bool      `yaml:"first"`
	Delta  bool      `yaml:"delta"`
}

// ParseProgram decodes a YAML rule program. It checks syntax only;
// name resolution and typing happen when the program is compiled.
func ParseProgram(data []byte) (*query.Program, error) {
	var doc programDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode program: %w", err)
	}

	prog := &query.Program{Name: doc.Name, Symbols: doc.Symbols}

	for _, rd := range doc.Relations {
		decl, err := convertRelation(rd)
		if err != nil {
			return nil, err
		}
		prog.Relations = append(prog.Relations, decl)
	}

	for i, sd := range doc.Strata {
		s, err := convertStratum(sd)
		if err != nil {
			return nil, fmt.Errorf("stratum %d: %w", i, err)
		}
		prog.Strata = append(prog.Strata, s)
	}
	return prog, nil
}

func convertRelation(rd relationDoc) (query.RelationDecl, error) {
	if rd.Name == "" {
		return query.RelationDecl{}, fmt.Errorf("relation without a name")
	}
	role, err := query.ParseRole(rd.Role)
	if err != nil {
		return query.RelationDecl{}, fmt.Errorf("relation %s: %w", rd.Name, err)
	}
	decl := query.RelationDecl{Name: rd.Name, Role: role, Indices: rd.Indices}
	for _, c := range rd.Columns {
		col, err := datalog.ParseColumn(c)
		if err != nil {
			return query.RelationDecl{}, fmt.Errorf("relation %s: %w", rd.Name, err)
		}
		decl.Columns = append(decl.Columns, col)
	}
	return decl, nil
}

func convertStratum(sd stratumDoc) (query.Stratum, error) {
	set := 0
	var s query.Stratum
	if sd.Load != nil {
		set++
		s = query.Stratum{Kind: query.Load, Relations: sd.Load}
	}
	if sd.Derive != nil {
		set++
		rules, err := convertRules(sd.Derive)
		if err != nil {
			return s, err
		}
		s = query.Stratum{Kind: query.Derive, Rules: rules}
	}
	if sd.Fixpoint != nil {
		set++
		base, err := convertRules(sd.Fixpoint.Base)
		if err != nil {
			return s, err
		}
		rec, err := convertRules(sd.Fixpoint.Recursive)
		if err != nil {
			return s, err
		}
		s = query.Stratum{Kind: query.Fixpoint, Group: &query.FixpointGroup{
			Targets:   sd.Fixpoint.Targets,
			Base:      base,
			Recursive: rec,
		}}
	}
	if sd.Emit != nil {
		set++
		s = query.Stratum{Kind: query.Emit, Relations: sd.Emit}
	}
	if sd.Purge != nil {
		set++
		s = query.Stratum{Kind: query.Purge, Relations: sd.Purge}
	}
	if set != 1 {
		return s, fmt.Errorf("expected exactly one of load, derive, fixpoint, emit, purge; got %d", set)
	}
	return s, nil
}

func convertRules(docs []ruleDoc) ([]query.Rule, error) {
	rules := make([]query.Rule, 0, len(docs))
	for i, rd := range docs {
		r, err := convertRule(rd)
		if err != nil {
			name := rd.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func convertRule(rd ruleDoc) (query.Rule, error) {
	head, err := ParseHead(rd.Head)
	if err != nil {
		return query.Rule{}, err
	}
	rule := query.Rule{Name: rd.Name, Head: head}
	if rule.Name == "" {
		rule.Name = head.Relation
	}
	for _, gd := range rd.Body {
		g, err := convertGenerator(gd)
		if err != nil {
			return query.Rule{}, err
		}
		rule.Body = append(rule.Body, g)
	}
	return rule, nil
}

func convertGenerator(gd generatorDoc) (query.Generator, error) {
	var g query.Generator
	set := 0
	for _, c := range []struct {
		name string
		kind query.GeneratorKind
	}{
		{gd.Scan, query.Scan},
		{gd.Range, query.Range},
		{gd.Exists, query.Exists},
		{gd.Not, query.NotExists},
	} {
		if c.name != "" {
			set++
			g.Kind = c.kind
			g.Relation = c.name
		}
	}
	if set != 1 {
		return g, fmt.Errorf("generator needs exactly one of scan, range, exists, not")
	}
	g.Alias = gd.As
	g.First = gd.First
	g.Delta = gd.Delta

	if g.Binds() && g.Alias == "" {
		return g, fmt.Errorf("%s %s: missing alias", g.Kind, g.Relation)
	}

	if gd.Bind.Kind != 0 {
		if gd.Bind.Kind != yaml.MappingNode {
			return g, fmt.Errorf("line %d: bind must be a mapping", gd.Bind.Line)
		}
		// Mapping content alternates key and value nodes.
		for i := 0; i+1 < len(gd.Bind.Content); i += 2 {
			key, val := gd.Bind.Content[i], gd.Bind.Content[i+1]
			term, err := ParseTerm(val.Value)
			if err != nil {
				return g, fmt.Errorf("line %d: bind %s: %w", val.Line, key.Value, err)
			}
			g.Bind = append(g.Bind, query.Binding{Column: key.Value, Term: term})
		}
	}

	for _, w := range gd.Where {
		p, err := ParsePredicate(w)
		if err != nil {
			return g, err
		}
		g.Where = append(g.Where, p)
	}

	if g.Kind == query.Scan && len(g.Bind) > 0 {
		g.Kind = query.Range
	}
	if g.Kind == query.Range && len(g.Bind) == 0 {
		g.Kind = query.Scan
	}
	return g, nil
}
