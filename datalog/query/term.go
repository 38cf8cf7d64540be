// Package query defines rule programs: relation declarations, rules made
// of generators with bindings and filters, and the ordered strata that
// drive evaluation.
package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Term is a value-producing expression inside a rule.
type Term interface {
	String() string
	term()
}

// ColumnRef reads a column of the tuple bound by an earlier generator.
type ColumnRef struct {
	Alias  string
	Column string
}

// Number is an integer literal.
type Number struct {
	Value int64
}

// Text is a string literal; it evaluates to the symbol id of the string.
type Text struct {
	Value string
}

// Call applies a built-in function: substr, strlen, cat, to_number,
// to_string.
type Call struct {
	Func string
	Args []Term
}

// Arith is integer arithmetic over two terms.
type Arith struct {
	Op    string // + - * / %
	Left  Term
	Right Term
}

func (ColumnRef) term() {}
func (Number) term()    {}
func (Text) term()      {}
func (Call) term()      {}
func (Arith) term()     {}

func (c ColumnRef) String() string { return c.Alias + "." + c.Column }
func (n Number) String() string    { return strconv.FormatInt(n.Value, 10) }
func (t Text) String() string      { return strconv.Quote(t.Value) }

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Func + "(" + strings.Join(args, ", ") + ")"
}

func (a Arith) String() string {
	return "(" + a.Left.String() + " " + a.Op + " " + a.Right.String() + ")"
}

// Col, Num and Str are shorthands for building programs in Go.
func Col(alias, column string) ColumnRef { return ColumnRef{Alias: alias, Column: column} }
func Num(v int64) Number                { return Number{Value: v} }
func Str(s string) Text                 { return Text{Value: s} }

// Predicate is a filter evaluated after a generator binds its tuple.
type Predicate interface {
	String() string
	predicate()
}

// Comparison compares two terms: < <= > >= = !=.
type Comparison struct {
	Op    string
	Left  Term
	Right Term
}

// Match is a full-string regular expression match of Text against
// Pattern.
type Match struct {
	Pattern Term
	Text    Term
	Negated bool
}

// Contains holds when Needle occurs as a substring of Haystack.
type Contains struct {
	Needle   Term
	Haystack Term
	Negated  bool
}

func (Comparison) predicate() {}
func (Match) predicate()      {}
func (Contains) predicate()   {}

func (c Comparison) String() string {
	return c.Left.String() + " " + c.Op + " " + c.Right.String()
}

func (m Match) String() string {
	return negation(m.Negated) + fmt.Sprintf("match(%s, %s)", m.Pattern, m.Text)
}

func (c Contains) String() string {
	return negation(c.Negated) + fmt.Sprintf("contains(%s, %s)", c.Needle, c.Haystack)
}

func negation(neg bool) string {
	if neg {
		return "!"
	}
	return ""
}
