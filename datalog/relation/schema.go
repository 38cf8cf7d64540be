package relation

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/wbrown/horus-datalog/datalog"
)

// MaxArity is bounded by the width of Signature.
const MaxArity = 64

// Signature is the set of bound columns of a range query, one bit per
// column. Bit i set means column i is bound.
type Signature uint64

// SignatureOf builds a signature from column positions.
func SignatureOf(cols ...int) Signature {
	var s Signature
	for _, c := range cols {
		s |= 1 << uint(c)
	}
	return s
}

// FullSignature binds every column of an arity-n relation.
func FullSignature(n int) Signature {
	if n >= MaxArity {
		return ^Signature(0)
	}
	return Signature(1)<<uint(n) - 1
}

// Has reports whether col is bound.
func (s Signature) Has(col int) bool {
	return s&(1<<uint(col)) != 0
}

// Len is the number of bound columns.
func (s Signature) Len() int {
	return bits.OnesCount64(uint64(s))
}

// Columns lists the bound columns in ascending order.
func (s Signature) Columns() []int {
	cols := make([]int, 0, s.Len())
	for c := 0; c < MaxArity; c++ {
		if s.Has(c) {
			cols = append(cols, c)
		}
	}
	return cols
}

func (s Signature) String() string {
	parts := make([]string, 0, s.Len())
	for _, c := range s.Columns() {
		parts = append(parts, strconv.Itoa(c))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Schema describes a relation: its name, columns and index orders.
// Each index order may name only a prefix of the columns; the remaining
// columns are appended in ascending position. The first index is the
// primary one. A schema without indices gets the identity order.
type Schema struct {
	Name    string
	Columns []datalog.Column
	Indices [][]int
}

// Arity is the number of columns.
func (s Schema) Arity() int {
	return len(s.Columns)
}

// ColumnIndex returns the position of the named column or -1.
func (s Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ColumnNames lists column names in position order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Kinds lists column kinds in position order.
func (s Schema) Kinds() []datalog.ColumnKind {
	kinds := make([]datalog.ColumnKind, len(s.Columns))
	for i, c := range s.Columns {
		kinds[i] = c.Kind
	}
	return kinds
}

// Orders returns the completed index orders.
func (s Schema) Orders() ([][]int, error) {
	n := s.Arity()
	if n == 0 {
		return nil, fmt.Errorf("%w: relation %s has no columns", ErrInvalidSchema, s.Name)
	}
	if n > MaxArity {
		return nil, fmt.Errorf("%w: relation %s has %d columns, max %d", ErrInvalidSchema, s.Name, n, MaxArity)
	}

	declared := s.Indices
	if len(declared) == 0 {
		declared = [][]int{nil}
	}

	orders := make([][]int, 0, len(declared))
	for i, perm := range declared {
		order, err := completeOrder(perm, n)
		if err != nil {
			return nil, fmt.Errorf("%w: relation %s index %d: %v", ErrInvalidSchema, s.Name, i, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func completeOrder(perm []int, n int) ([]int, error) {
	used := make([]bool, n)
	order := make([]int, 0, n)
	for _, c := range perm {
		if c < 0 || c >= n {
			return nil, fmt.Errorf("column %d out of range", c)
		}
		if used[c] {
			return nil, fmt.Errorf("column %d repeated", c)
		}
		used[c] = true
		order = append(order, c)
	}
	for c := 0; c < n; c++ {
		if !used[c] {
			order = append(order, c)
		}
	}
	return order, nil
}

// prefixSignatures maps every signature an index can answer, the sets of
// leading columns of its order, to the first index that answers it.
func prefixSignatures(orders [][]int) map[Signature]int {
	sigs := make(map[Signature]int)
	sigs[0] = 0
	for i, order := range orders {
		var s Signature
		for _, c := range order {
			s |= 1 << uint(c)
			if _, ok := sigs[s]; !ok {
				sigs[s] = i
			}
		}
	}
	return sigs
}

// SameShape reports whether two schemas have the same columns and index
// orders; names may differ.
func SameShape(a, b Schema) bool {
	if len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i].Kind != b.Columns[i].Kind {
			return false
		}
	}
	ao, err := a.Orders()
	if err != nil {
		return false
	}
	bo, err := b.Orders()
	if err != nil || len(ao) != len(bo) {
		return false
	}
	for i := range ao {
		for j := range ao[i] {
			if ao[i][j] != bo[i][j] {
				return false
			}
		}
	}
	return true
}
