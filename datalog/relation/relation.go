// Package relation implements deduplicated, multiply-indexed tuple sets.
//
// Every index is a google/btree ordered by a column permutation. Writers
// serialize on a short per-relation mutex. Readers never iterate the live
// trees: they work on a published snapshot (a Clone of every index) that
// is refreshed lazily when the relation has changed since it was taken.
package relation

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/wbrown/horus-datalog/datalog"
)

const btreeDegree = 32

// versionClock hands out globally unique versions, so a snapshot can
// never be mistaken for the current state of another relation after a
// Swap.
var versionClock atomic.Uint64

var relationIDs atomic.Uint64

type index = btree.BTreeG[datalog.Tuple]

type snapshot struct {
	version uint64
	trees   []*index
}

// Relation is a named set of fixed-arity tuples with one or more indices.
type Relation struct {
	id     uint64
	schema Schema
	arity  int
	orders [][]int
	sigs   map[Signature]int

	mu      sync.Mutex
	indices []*index
	arena   *arena

	size    atomic.Int64
	version atomic.Uint64
	snap    atomic.Pointer[snapshot]

	statsMu sync.Mutex
	stats   HintStats
}

// New creates an empty relation for the schema.
func New(schema Schema) (*Relation, error) {
	orders, err := schema.Orders()
	if err != nil {
		return nil, err
	}
	r := &Relation{
		id:     relationIDs.Add(1),
		schema: schema,
		arity:  schema.Arity(),
		orders: orders,
		sigs:   prefixSignatures(orders),
		arena:  newArena(schema.Arity()),
	}
	r.indices = r.newIndices()
	r.version.Store(versionClock.Add(1))
	return r, nil
}

// MustNew is New for schemas known to be valid.
func MustNew(schema Schema) *Relation {
	r, err := New(schema)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Relation) newIndices() []*index {
	indices := make([]*index, len(r.orders))
	for i, order := range r.orders {
		order := order
		indices[i] = btree.NewG[datalog.Tuple](btreeDegree, func(a, b datalog.Tuple) bool {
			return datalog.LessPermuted(order, a, b)
		})
	}
	return indices
}

func (r *Relation) Name() string    { return r.schema.Name }
func (r *Relation) Arity() int      { return r.arity }
func (r *Relation) Schema() Schema  { return r.schema }
func (r *Relation) Version() uint64 { return r.version.Load() }

// Orders returns the completed column order of every index.
func (r *Relation) Orders() [][]int {
	return r.orders
}

// Size returns the number of tuples.
func (r *Relation) Size() int {
	return int(r.size.Load())
}

// Empty reports whether the relation holds no tuples.
func (r *Relation) Empty() bool {
	return r.size.Load() == 0
}

func (r *Relation) String() string {
	return fmt.Sprintf("%s/%d (%d tuples)", r.schema.Name, r.arity, r.Size())
}

func (r *Relation) checkArity(t datalog.Tuple) {
	if len(t) != r.arity {
		panic(&ArityError{Relation: r.schema.Name, Want: r.arity, Got: len(t)})
	}
}

// Insert adds t and reports whether it was new. Among concurrent inserts
// of equal tuples exactly one returns true. The caller keeps ownership of
// t; the relation stores its own copy.
func (r *Relation) Insert(t datalog.Tuple, h *Hints) bool {
	r.checkArity(t)

	r.mu.Lock()
	if r.indices[0].Has(t) {
		r.mu.Unlock()
		h.duplicate()
		return false
	}
	row := r.arena.alloc(t)
	for _, idx := range r.indices {
		idx.ReplaceOrInsert(row)
	}
	r.size.Add(1)
	r.version.Store(versionClock.Add(1))
	r.mu.Unlock()

	h.inserted()
	return true
}

// InsertAll inserts every tuple of src and returns how many were new.
func (r *Relation) InsertAll(src *Relation, h *Hints) int {
	if src.arity != r.arity {
		panic(&ArityError{Relation: r.schema.Name, Want: r.arity, Got: src.arity})
	}
	n := 0
	src.Scan(nil).Each(func(t datalog.Tuple) bool {
		if r.Insert(t, h) {
			n++
		}
		return true
	})
	return n
}

// Contains reports whether t is present.
func (r *Relation) Contains(t datalog.Tuple, h *Hints) bool {
	r.checkArity(t)
	return r.view(h).trees[0].Has(t)
}

// Find returns the stored tuple equal to t.
func (r *Relation) Find(t datalog.Tuple, h *Hints) (datalog.Tuple, bool) {
	r.checkArity(t)
	return r.view(h).trees[0].Get(t)
}

// IndexFor returns the index answering sig. Signature 0 is a full scan of
// the primary index.
func (r *Relation) IndexFor(sig Signature) (int, error) {
	if sig&^FullSignature(r.arity) != 0 {
		return 0, fmt.Errorf("%w: relation %s has no column in %s", ErrUndeclaredSignature, r.schema.Name, sig)
	}
	idx, ok := r.sigs[sig]
	if !ok {
		return 0, fmt.Errorf("%w: relation %s, bound columns %s", ErrUndeclaredSignature, r.schema.Name, sig)
	}
	return idx, nil
}

// Range returns the tuples whose sig columns equal those of probe, in the
// order of the index declared for sig. Columns outside sig are ignored.
func (r *Relation) Range(sig Signature, probe datalog.Tuple, h *Hints) (Range, error) {
	idx, err := r.IndexFor(sig)
	if err != nil {
		return Range{}, err
	}
	return r.RangeOn(idx, sig, probe, h), nil
}

// RangeOn is Range with the index already resolved through IndexFor.
func (r *Relation) RangeOn(idx int, sig Signature, probe datalog.Tuple, h *Hints) Range {
	r.checkArity(probe)
	snap := r.view(h)
	if sig == 0 {
		return Range{tree: snap.trees[idx], order: r.orders[idx]}
	}
	low := make(datalog.Tuple, r.arity)
	high := make(datalog.Tuple, r.arity)
	for c := 0; c < r.arity; c++ {
		if sig.Has(c) {
			low[c], high[c] = probe[c], probe[c]
		} else {
			low[c], high[c] = datalog.MinValue, datalog.MaxValue
		}
	}
	return Range{tree: snap.trees[idx], order: r.orders[idx], low: low, high: high}
}

// EmptyOn reports whether RangeOn(idx, sig, probe) has no tuples. The
// answer for the last probe per index is cached in h until the relation
// changes.
func (r *Relation) EmptyOn(idx int, sig Signature, probe datalog.Tuple, h *Hints) bool {
	snap := r.view(h)
	if h != nil {
		if empty, ok := h.cachedProbe(idx, snap.version, sig, probe); ok {
			return empty
		}
	}
	empty := r.RangeOn(idx, sig, probe, h).Empty()
	if h != nil {
		h.storeProbe(idx, snap.version, sig, probe, empty)
	}
	return empty
}

// Scan returns the whole relation in primary index order.
func (r *Relation) Scan(h *Hints) Range {
	snap := r.view(h)
	return Range{tree: snap.trees[0], order: r.orders[0]}
}

// Partition splits a full scan into at most n disjoint ranges.
func (r *Relation) Partition(n int) []Range {
	return r.Scan(nil).Split(n)
}

// Purge drops every tuple. No reader may be active.
func (r *Relation) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, idx := range r.indices {
		idx.Clear(false)
	}
	r.arena.reset()
	r.size.Store(0)
	r.snap.Store(nil)
	r.version.Store(versionClock.Add(1))
}

// Swap exchanges the contents of two relations with the same shape.
func (r *Relation) Swap(other *Relation) error {
	if r == other {
		return nil
	}
	if !SameShape(r.schema, other.schema) {
		return fmt.Errorf("%w: cannot swap %s and %s", ErrSchemaMismatch, r.schema.Name, other.schema.Name)
	}
	first, second := r, other
	if second.id < first.id {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	r.indices, other.indices = other.indices, r.indices
	r.arena, other.arena = other.arena, r.arena
	mine, theirs := r.size.Load(), other.size.Load()
	r.size.Store(theirs)
	other.size.Store(mine)
	r.snap.Store(nil)
	other.snap.Store(nil)
	r.version.Store(versionClock.Add(1))
	other.version.Store(versionClock.Add(1))
	return nil
}

// view returns a snapshot that reflects every insert that completed
// before the call.
func (r *Relation) view(h *Hints) *snapshot {
	v := r.version.Load()
	if h != nil && h.owner == r && h.snap != nil && h.snap.version == v {
		h.stats.SnapshotHits++
		return h.snap
	}
	s := r.snap.Load()
	if s == nil || s.version != v {
		s = r.publish()
	}
	if h != nil {
		if h.owner != r {
			h.bind(r)
		}
		h.snap = s
		h.stats.SnapshotMisses++
	}
	return s
}

func (r *Relation) publish() *snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.version.Load()
	if s := r.snap.Load(); s != nil && s.version == v {
		return s
	}
	trees := make([]*index, len(r.indices))
	for i, idx := range r.indices {
		trees[i] = idx.Clone()
	}
	s := &snapshot{version: v, trees: trees}
	r.snap.Store(s)
	return s
}
