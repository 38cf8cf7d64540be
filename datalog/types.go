// Package datalog holds the value model shared by the relation store, the
// rule evaluator and the fact loaders: fixed-width integer tuples whose
// columns are either raw numbers or interned symbol ids.
package datalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a single domain value. Whether it is a number or a symbol id is
// a static property of the column it lives in.
type Value int64

const (
	// MinValue and MaxValue are the sentinels used for unbound columns
	// when building range probes.
	MinValue Value = math.MinInt64
	MaxValue Value = math.MaxInt64
)

// ColumnKind says how a column's values are interpreted.
type ColumnKind uint8

const (
	Number ColumnKind = iota
	Symbol
)

func (k ColumnKind) String() string {
	switch k {
	case Number:
		return "number"
	case Symbol:
		return "symbol"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseColumnKind accepts "number"/"symbol" plus the short forms used in
// fact schemas ("i", "s").
func ParseColumnKind(s string) (ColumnKind, error) {
	switch strings.ToLower(s) {
	case "number", "i", "int":
		return Number, nil
	case "symbol", "s", "string":
		return Symbol, nil
	}
	return Number, fmt.Errorf("unknown column kind %q", s)
}

// Column describes one position of a relation.
type Column struct {
	Name string
	Kind ColumnKind
}

func (c Column) String() string {
	return c.Name + ":" + c.Kind.String()
}

// ParseColumn parses the "name:kind" form.
func ParseColumn(s string) (Column, error) {
	name, kind, ok := strings.Cut(s, ":")
	if !ok {
		return Column{}, fmt.Errorf("column %q: expected name:kind", s)
	}
	k, err := ParseColumnKind(kind)
	if err != nil {
		return Column{}, fmt.Errorf("column %q: %w", s, err)
	}
	if name == "" {
		return Column{}, fmt.Errorf("column %q: empty name", s)
	}
	return Column{Name: name, Kind: k}, nil
}

// Tuple is one row. Tuples handed out by a relation are shared and must
// not be modified.
type Tuple []Value

// Clone returns a copy that the caller owns.
func (t Tuple) Clone() Tuple {
	out := make(Tuple, len(t))
	copy(out, t)
	return out
}

// Equal reports whether both tuples hold the same values.
func (t Tuple) Equal(other Tuple) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i] != other[i] {
			return false
		}
	}
	return true
}

func (t Tuple) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range t {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatInt(int64(v), 10))
	}
	b.WriteByte(')')
	return b.String()
}

// Format renders each column as text, resolving symbol columns through
// the table. Unknown symbol ids render as "#<id>".
func Format(t Tuple, columns []Column, symbols *SymbolTable) []string {
	out := make([]string, len(t))
	for i, v := range t {
		if i < len(columns) && columns[i].Kind == Symbol && symbols != nil {
			if s, ok := symbols.Resolve(v); ok {
				out[i] = s
				continue
			}
			out[i] = "#" + strconv.FormatInt(int64(v), 10)
			continue
		}
		out[i] = strconv.FormatInt(int64(v), 10)
	}
	return out
}
