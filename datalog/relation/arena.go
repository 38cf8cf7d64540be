package relation

import "github.com/wbrown/horus-datalog/datalog"

// arena hands out fixed-width rows carved from large slabs so that the
// tuples referenced by every index share one copy.
type arena struct {
	arity int
	rows  int
	slab  []datalog.Value
	off   int
	slabs int
}

const slabRows = 1024

func newArena(arity int) *arena {
	return &arena{arity: arity, rows: slabRows}
}

// alloc copies t into the arena and returns the stored row. The row is
// capacity-limited so an append by a careless caller cannot spill into
// its neighbour.
func (a *arena) alloc(t datalog.Tuple) datalog.Tuple {
	if len(a.slab)-a.off < a.arity {
		a.slab = make([]datalog.Value, a.arity*a.rows)
		a.off = 0
		a.slabs++
		if a.rows < 64*slabRows {
			a.rows *= 2
		}
	}
	row := a.slab[a.off : a.off+a.arity : a.off+a.arity]
	copy(row, t)
	a.off += a.arity
	return datalog.Tuple(row)
}

// reset drops every slab. Rows already handed out stay valid for holders
// of old snapshots.
func (a *arena) reset() {
	a.slab = nil
	a.off = 0
	a.slabs = 0
	a.rows = slabRows
}
