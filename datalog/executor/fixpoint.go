package executor

import (
	"context"
	"time"

	"github.com/wbrown/horus-datalog/datalog/logging"
	"github.com/wbrown/horus-datalog/datalog/relation"
)

// fixpoint is a recursive rule group evaluated semi-naively.
type fixpoint struct {
	names     []string
	targets   []*fixTarget
	base      []*rule
	recursive []*rule
}

// fixTarget holds a target relation with its two working relations:
// delta (the tuples found by the previous round) and next (the tuples the
// current round found that full does not have yet).
type fixTarget struct {
	full    *relation.Relation
	fullID  int
	delta   *relation.Relation
	deltaID int
	next    *relation.Relation
	nextID  int
}

// runFixpoint drives Seed, Iterate and Done. The only stopping condition
// is a round that finds nothing new.
func (e *evaluation) runFixpoint(ctx context.Context, f *fixpoint) error {
	// Seed
	if _, err := e.runRules(ctx, f.base); err != nil {
		return err
	}
	for _, t := range f.targets {
		t.delta.Purge()
		t.next.Purge()
		t.delta.InsertAll(t.full, nil)
	}

	// Iterate
	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		if _, err := e.runRules(ctx, f.recursive); err != nil {
			return err
		}

		added := 0
		for _, t := range f.targets {
			added += t.next.Size()
		}
		e.ectx.FixpointIteration(f.names, iteration, added, start)
		logging.Debug().
			Strs("targets", f.names).
			Int("iteration", iteration).
			Int("added", added).
			Msg("fixpoint round")

		if added == 0 {
			break
		}
		for _, t := range f.targets {
			t.full.InsertAll(t.next, nil)
			if err := t.delta.Swap(t.next); err != nil {
				return err
			}
			t.next.Purge()
		}
	}

	// Done
	for _, t := range f.targets {
		t.delta.Purge()
		t.next.Purge()
	}
	return nil
}
