package relation

import (
	"fmt"

	"github.com/wbrown/horus-datalog/datalog"
)

// HintStats counts how often per-worker caching paid off.
type HintStats struct {
	SnapshotHits   uint64
	SnapshotMisses uint64
	ProbeHits      uint64
	ProbeMisses    uint64
	Inserts        uint64
	Duplicates     uint64
}

func (s *HintStats) add(o HintStats) {
	s.SnapshotHits += o.SnapshotHits
	s.SnapshotMisses += o.SnapshotMisses
	s.ProbeHits += o.ProbeHits
	s.ProbeMisses += o.ProbeMisses
	s.Inserts += o.Inserts
	s.Duplicates += o.Duplicates
}

func (s HintStats) String() string {
	return fmt.Sprintf("snapshot %d/%d, probe %d/%d, insert %d new %d dup",
		s.SnapshotHits, s.SnapshotHits+s.SnapshotMisses,
		s.ProbeHits, s.ProbeHits+s.ProbeMisses,
		s.Inserts, s.Duplicates)
}

type probeCache struct {
	valid   bool
	version uint64
	sig     Signature
	probe   datalog.Tuple
	empty   bool
}

// Hints is per-worker scratch state for one relation: the last snapshot
// it read and the outcome of the last emptiness probe per index. A Hints
// must never be shared between goroutines. A nil *Hints is valid and
// caches nothing.
type Hints struct {
	owner  *Relation
	snap   *snapshot
	probes []probeCache
	stats  HintStats
}

// NewHints returns empty hints; they bind to the first relation they are
// used with.
func NewHints() *Hints {
	return &Hints{}
}

func (h *Hints) bind(r *Relation) {
	h.owner = r
	h.snap = nil
	h.probes = make([]probeCache, len(r.orders))
}

// Stats returns the counters gathered so far.
func (h *Hints) Stats() HintStats {
	if h == nil {
		return HintStats{}
	}
	return h.stats
}

func (h *Hints) inserted() {
	if h != nil {
		h.stats.Inserts++
	}
}

func (h *Hints) duplicate() {
	if h != nil {
		h.stats.Duplicates++
	}
}

func (h *Hints) cachedProbe(idx int, version uint64, sig Signature, probe datalog.Tuple) (bool, bool) {
	if idx >= len(h.probes) {
		h.stats.ProbeMisses++
		return false, false
	}
	pc := &h.probes[idx]
	if !pc.valid || pc.version != version || pc.sig != sig {
		h.stats.ProbeMisses++
		return false, false
	}
	for c := 0; c < len(probe); c++ {
		if sig.Has(c) && pc.probe[c] != probe[c] {
			h.stats.ProbeMisses++
			return false, false
		}
	}
	h.stats.ProbeHits++
	return pc.empty, true
}

func (h *Hints) storeProbe(idx int, version uint64, sig Signature, probe datalog.Tuple, empty bool) {
	if idx >= len(h.probes) {
		return
	}
	pc := &h.probes[idx]
	if cap(pc.probe) < len(probe) {
		pc.probe = make(datalog.Tuple, len(probe))
	}
	pc.probe = pc.probe[:len(probe)]
	copy(pc.probe, probe)
	pc.valid, pc.version, pc.sig, pc.empty = true, version, sig, empty
}

// Release folds the counters of h into the relation's totals and resets
// them. Workers call it when they finish with a relation.
func (r *Relation) Release(h *Hints) {
	if h == nil {
		return
	}
	r.statsMu.Lock()
	r.stats.add(h.stats)
	r.statsMu.Unlock()
	h.stats = HintStats{}
}

// HintStats returns the totals released by all workers.
func (r *Relation) HintStats() HintStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}
