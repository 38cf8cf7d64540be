package executor

import (
	"context"
	"fmt"

	"github.com/wbrown/horus-datalog/datalog/logging"
	"github.com/wbrown/horus-datalog/datalog/query"
)

// Run evaluates the program without annotations. loader and sink may be
// nil, in which case load strata leave relations as they are and emit
// strata do nothing.
func (p *Plan) Run(ctx context.Context, loader Loader, sink Sink) error {
	return p.RunWithContext(ctx, NewContext(nil), loader, sink)
}

// RunWithContext evaluates the strata in order, reporting to ectx.
//
// Load failures are logged and leave the relation empty. Emit failures
// and errors inside rules stop the run. Purge strata are skipped when
// Options.KeepRelations is set.
func (p *Plan) RunWithContext(ctx context.Context, ectx Context, loader Loader, sink Sink) (err error) {
	if ectx == nil {
		ectx = NewContext(nil)
	}
	e := &evaluation{plan: p, ectx: ectx}
	emitted := 0

	ectx.ProgramBegin(p.name, len(p.strata))
	defer func() {
		ectx.ProgramComplete(emitted, err)
	}()

	for _, s := range p.strata {
		if p.opts.Stratum != AllStrata && s.index != p.opts.Stratum {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		logging.Debug().Int("stratum", s.index).Str("name", s.name).Msg("stratum begin")
		err := ectx.ExecuteStratum(s.index, s.name, func() error {
			n, err := e.runStratum(ctx, s, loader, sink)
			emitted += n
			return err
		})
		if err != nil {
			return fmt.Errorf("stratum %d (%s): %w", s.index, s.name, err)
		}
		logging.Debug().Int("stratum", s.index).Str("name", s.name).Msg("stratum complete")
	}
	return nil
}

// runStratum runs one stratum and returns the number of tuples emitted.
func (e *evaluation) runStratum(ctx context.Context, s *stratum, loader Loader, sink Sink) (int, error) {
	switch s.kind {
	case query.Load:
		if loader == nil {
			return 0, nil
		}
		for _, rel := range s.relations {
			err := e.ectx.LoadRelation(rel, func() error {
				return loader.Load(ctx, rel, e.plan.symbols)
			})
			if err != nil {
				logging.Ctx(ctx).Warn().
					Err(err).
					Str("relation", rel.Name()).
					Msg("failed to load relation, continuing with it empty")
				rel.Purge()
			}
		}

	case query.Derive:
		_, err := e.runRules(ctx, s.rules)
		return 0, err

	case query.Fixpoint:
		return 0, e.runFixpoint(ctx, s.fixpoint)

	case query.Emit:
		if sink == nil {
			return 0, nil
		}
		emitted := 0
		for _, rel := range s.relations {
			err := e.ectx.EmitRelation(rel, func() error {
				return sink.Emit(ctx, rel, e.plan.symbols)
			})
			if err != nil {
				return emitted, fmt.Errorf("emit %s: %w", rel.Name(), err)
			}
			emitted += rel.Size()
		}
		return emitted, nil

	case query.Purge:
		if e.plan.opts.KeepRelations {
			return 0, nil
		}
		for _, rel := range s.relations {
			n := rel.Size()
			rel.Purge()
			e.ectx.RelationPurged(rel, n)
		}
	}
	return 0, nil
}
