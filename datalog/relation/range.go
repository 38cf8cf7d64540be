package relation

import (
	"iter"

	"github.com/wbrown/horus-datalog/datalog"
)

// Range is an ascending run of tuples in one index of a snapshot. It is
// lazy and may be iterated any number of times; every iteration sees the
// same snapshot.
type Range struct {
	tree  *index
	order []int
	// low is inclusive; nil means from the first tuple.
	low datalog.Tuple
	// high is inclusive unless exclusive is set; nil means to the end.
	high      datalog.Tuple
	exclusive bool
}

func (rg Range) within(t datalog.Tuple) bool {
	if rg.high == nil {
		return true
	}
	c := datalog.ComparePermuted(rg.order, t, rg.high)
	return c < 0 || (c == 0 && !rg.exclusive)
}

// Each calls fn for every tuple in order until fn returns false.
func (rg Range) Each(fn func(datalog.Tuple) bool) {
	if rg.tree == nil {
		return
	}
	visit := func(t datalog.Tuple) bool {
		if !rg.within(t) {
			return false
		}
		return fn(t)
	}
	if rg.low == nil {
		rg.tree.Ascend(visit)
		return
	}
	rg.tree.AscendGreaterOrEqual(rg.low, visit)
}

// All adapts Each to a range-over-func iterator.
func (rg Range) All() iter.Seq[datalog.Tuple] {
	return func(yield func(datalog.Tuple) bool) {
		rg.Each(yield)
	}
}

// First returns the first tuple of the range.
func (rg Range) First() (datalog.Tuple, bool) {
	var first datalog.Tuple
	found := false
	rg.Each(func(t datalog.Tuple) bool {
		first, found = t, true
		return false
	})
	return first, found
}

// Empty reports whether the range has no tuples.
func (rg Range) Empty() bool {
	_, found := rg.First()
	return !found
}

// Len counts the tuples in the range.
func (rg Range) Len() int {
	if rg.tree == nil {
		return 0
	}
	if rg.low == nil && rg.high == nil {
		return rg.tree.Len()
	}
	n := 0
	rg.Each(func(datalog.Tuple) bool {
		n++
		return true
	})
	return n
}

// Collect returns the tuples of the range. The tuples are shared with the
// relation and must not be modified.
func (rg Range) Collect() []datalog.Tuple {
	var out []datalog.Tuple
	rg.Each(func(t datalog.Tuple) bool {
		out = append(out, t)
		return true
	})
	return out
}

// Split cuts the range into at most n disjoint, contiguous ranges whose
// concatenation is rg.
func (rg Range) Split(n int) []Range {
	total := rg.Len()
	if n <= 1 || total <= 1 {
		return []Range{rg}
	}
	if n > total {
		n = total
	}
	chunk := (total + n - 1) / n

	bounds := make([]datalog.Tuple, 0, n)
	i := 0
	rg.Each(func(t datalog.Tuple) bool {
		if i > 0 && i%chunk == 0 {
			bounds = append(bounds, t)
		}
		i++
		return true
	})

	parts := make([]Range, 0, len(bounds)+1)
	low := rg.low
	for _, b := range bounds {
		parts = append(parts, Range{tree: rg.tree, order: rg.order, low: low, high: b, exclusive: true})
		low = b
	}
	parts = append(parts, Range{tree: rg.tree, order: rg.order, low: low, high: rg.high, exclusive: rg.exclusive})
	return parts
}
