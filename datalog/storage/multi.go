package storage

import (
	"context"
	"errors"

	"github.com/wbrown/horus-datalog/datalog"
	"github.com/wbrown/horus-datalog/datalog/executor"
	"github.com/wbrown/horus-datalog/datalog/relation"
)

// MultiSink emits each relation to every sink in order. All sinks are
// tried; their errors are joined.
type MultiSink []executor.Sink

func (m MultiSink) Emit(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, rel, symbols); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ executor.Loader = (*FactDir)(nil)
	_ executor.Loader = (*BadgerStore)(nil)
	_ executor.Sink   = (*CSVDir)(nil)
	_ executor.Sink   = (*TableSink)(nil)
	_ executor.Sink   = (*BadgerStore)(nil)
	_ executor.Sink   = MultiSink(nil)
)
