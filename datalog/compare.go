package datalog

// CompareTuples compares two tuples column by column and returns:
//
//	-1 if left < right
//	 0 if left == right
//	 1 if left > right
//
// A shorter tuple that is a prefix of a longer one sorts first.
func CompareTuples(left, right Tuple) int {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	for i := 0; i < n; i++ {
		if c := compareValue(left[i], right[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(left) < len(right):
		return -1
	case len(left) > len(right):
		return 1
	}
	return 0
}

// ComparePermuted compares two tuples of equal arity under a column order.
// The order must name every column exactly once.
func ComparePermuted(order []int, left, right Tuple) int {
	for _, col := range order {
		if c := compareValue(left[col], right[col]); c != 0 {
			return c
		}
	}
	return 0
}

// LessPermuted is ComparePermuted(order, left, right) < 0 without the
// three-way result.
func LessPermuted(order []int, left, right Tuple) bool {
	for _, col := range order {
		l, r := left[col], right[col]
		if l != r {
			return l < r
		}
	}
	return false
}

func compareValue(a, b Value) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
