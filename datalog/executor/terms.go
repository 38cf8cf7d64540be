package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wbrown/horus-datalog/datalog"
	"github.com/wbrown/horus-datalog/datalog/query"
)

type termForm uint8

const (
	formColumn termForm = iota
	formConst
	formArith
	formCall
)

// term is a compiled query.Term. Symbol-typed terms evaluate to symbol
// ids; producing a new string interns it.
type term struct {
	form  termForm
	typ   datalog.ColumnKind
	slot  int
	col   int
	value datalog.Value
	op    string
	args  []*term
	src   query.Term
}

// signatures of the built-in functions: argument kinds, then result kind.
var builtins = map[string]struct {
	args   []datalog.ColumnKind
	result datalog.ColumnKind
}{
	"substr":    {[]datalog.ColumnKind{datalog.Symbol, datalog.Number, datalog.Number}, datalog.Symbol},
	"strlen":    {[]datalog.ColumnKind{datalog.Symbol}, datalog.Number},
	"cat":       {[]datalog.ColumnKind{datalog.Symbol, datalog.Symbol}, datalog.Symbol},
	"to_number": {[]datalog.ColumnKind{datalog.Symbol}, datalog.Number},
	"to_string": {[]datalog.ColumnKind{datalog.Number}, datalog.Symbol},
}

func (p *Plan) compileTerm(t query.Term, scope *ruleScope) (*term, error) {
	switch t := t.(type) {
	case query.ColumnRef:
		a, ok := scope.aliases[t.Alias]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAlias, t.Alias)
		}
		col := a.schema.ColumnIndex(t.Column)
		if col < 0 {
			return nil, fmt.Errorf("%w: %s.%s (relation %s)", ErrUnknownColumn, t.Alias, t.Column, a.schema.Name)
		}
		return &term{form: formColumn, typ: a.schema.Columns[col].Kind, slot: a.slot, col: col, src: t}, nil

	case query.Number:
		return &term{form: formConst, typ: datalog.Number, value: datalog.Value(t.Value), src: t}, nil

	case query.Text:
		return &term{form: formConst, typ: datalog.Symbol, value: p.symbols.Intern(t.Value), src: t}, nil

	case query.Arith:
		switch t.Op {
		case "+", "-", "*", "/", "%":
		default:
			return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidProgram, t.Op)
		}
		l, err := p.compileTerm(t.Left, scope)
		if err != nil {
			return nil, err
		}
		r, err := p.compileTerm(t.Right, scope)
		if err != nil {
			return nil, err
		}
		if l.typ != datalog.Number || r.typ != datalog.Number {
			return nil, fmt.Errorf("%w: arithmetic on symbol in %s", ErrTypeMismatch, t)
		}
		return &term{form: formArith, typ: datalog.Number, op: t.Op, args: []*term{l, r}, src: t}, nil

	case query.Call:
		sig, ok := builtins[t.Func]
		if !ok {
			return nil, fmt.Errorf("%w: unknown function %s", ErrInvalidProgram, t.Func)
		}
		if len(t.Args) != len(sig.args) {
			return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidProgram, t.Func, len(sig.args), len(t.Args))
		}
		ct := &term{form: formCall, typ: sig.result, op: t.Func, src: t}
		for i, a := range t.Args {
			ca, err := p.compileTerm(a, scope)
			if err != nil {
				return nil, err
			}
			if ca.typ != sig.args[i] {
				return nil, fmt.Errorf("%w: argument %d of %s must be %s, %s is %s",
					ErrTypeMismatch, i+1, t.Func, sig.args[i], a, ca.typ)
			}
			ct.args = append(ct.args, ca)
		}
		return ct, nil
	}
	return nil, fmt.Errorf("%w: unsupported term %T", ErrInvalidProgram, t)
}

func (t *term) eval(w *worker) datalog.Value {
	switch t.form {
	case formColumn:
		return w.frame[t.slot][t.col]
	case formConst:
		return t.value
	case formArith:
		l, r := t.args[0].eval(w), t.args[1].eval(w)
		switch t.op {
		case "+":
			return l + r
		case "-":
			return l - r
		case "*":
			return l * r
		case "/":
			if r == 0 {
				panic(fmt.Errorf("%w: %s", ErrDivisionByZero, t.src))
			}
			return l / r
		default:
			if r == 0 {
				panic(fmt.Errorf("%w: %s", ErrDivisionByZero, t.src))
			}
			return l % r
		}
	}
	return t.call(w)
}

func (t *term) call(w *worker) datalog.Value {
	switch t.op {
	case "substr":
		s := w.resolve(t.args[0].eval(w))
		start, n := int64(t.args[1].eval(w)), int64(t.args[2].eval(w))
		if start < 0 || start > int64(len(s)) {
			w.warn(t.src.String(), fmt.Sprintf("substring (%d, %d) out of range for length %d", start, n, len(s)))
			return w.intern("")
		}
		end := int64(len(s))
		if n >= 0 && n < end-start {
			end = start + n
		}
		return w.intern(s[start:end])

	case "strlen":
		return datalog.Value(len(w.resolve(t.args[0].eval(w))))

	case "cat":
		return w.intern(w.resolve(t.args[0].eval(w)) + w.resolve(t.args[1].eval(w)))

	case "to_number":
		s := w.resolve(t.args[0].eval(w))
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			panic(fmt.Errorf("%w: to_number(%q): %v", ErrConversion, s, err))
		}
		return datalog.Value(v)

	case "to_string":
		return w.intern(strconv.FormatInt(int64(t.args[0].eval(w)), 10))
	}
	panic(fmt.Errorf("%w: unknown function %s", ErrInvalidProgram, t.op))
}

type predForm uint8

const (
	predCompare predForm = iota
	predMatch
	predContains
)

// predicate is a compiled query.Predicate.
type predicate struct {
	form    predForm
	op      string
	left    *term
	right   *term
	negated bool
	src     string
}

func (p *Plan) compilePredicate(pr query.Predicate, scope *ruleScope) (*predicate, error) {
	var cp *predicate
	var l, r query.Term
	switch pr := pr.(type) {
	case query.Comparison:
		switch pr.Op {
		case "<", "<=", ">", ">=", "=", "!=":
		default:
			return nil, fmt.Errorf("%w: unknown comparison %q", ErrInvalidProgram, pr.Op)
		}
		cp = &predicate{form: predCompare, op: pr.Op}
		l, r = pr.Left, pr.Right
	case query.Match:
		cp = &predicate{form: predMatch, negated: pr.Negated}
		l, r = pr.Pattern, pr.Text
	case query.Contains:
		cp = &predicate{form: predContains, negated: pr.Negated}
		l, r = pr.Needle, pr.Haystack
	default:
		return nil, fmt.Errorf("%w: unsupported predicate %T", ErrInvalidProgram, pr)
	}
	cp.src = pr.String()

	var err error
	if cp.left, err = p.compileTerm(l, scope); err != nil {
		return nil, err
	}
	if cp.right, err = p.compileTerm(r, scope); err != nil {
		return nil, err
	}

	switch cp.form {
	case predCompare:
		if cp.left.typ != cp.right.typ {
			return nil, fmt.Errorf("%w: %s compares %s with %s", ErrTypeMismatch, cp.src, cp.left.typ, cp.right.typ)
		}
		if cp.left.typ == datalog.Symbol && cp.op != "=" && cp.op != "!=" {
			return nil, fmt.Errorf("%w: symbols only support = and !=, in %s", ErrTypeMismatch, cp.src)
		}
	default:
		if cp.left.typ != datalog.Symbol || cp.right.typ != datalog.Symbol {
			return nil, fmt.Errorf("%w: %s needs symbol arguments", ErrTypeMismatch, cp.src)
		}
	}
	return cp, nil
}

func (p *predicate) holds(w *worker) bool {
	l, r := p.left.eval(w), p.right.eval(w)
	switch p.form {
	case predCompare:
		switch p.op {
		case "<":
			return l < r
		case "<=":
			return l <= r
		case ">":
			return l > r
		case ">=":
			return l >= r
		case "=":
			return l == r
		default:
			return l != r
		}

	case predMatch:
		// a pattern that cannot run counts as a non-match
		pattern := w.resolve(l)
		re, err := w.plan.regexes.Get(pattern)
		if err != nil {
			w.warn(p.src, fmt.Sprintf("invalid regular expression %q: %v", pattern, err))
			return p.negated
		}
		ok, err := re.MatchString(w.resolve(r))
		if err != nil {
			w.warn(p.src, fmt.Sprintf("regular expression %q failed: %v", pattern, err))
			return p.negated
		}
		return ok != p.negated

	default:
		return strings.Contains(w.resolve(r), w.resolve(l)) != p.negated
	}
}
