package executor

import (
	"context"

	"github.com/wbrown/horus-datalog/datalog"
	"github.com/wbrown/horus-datalog/datalog/relation"
)

// Loader fills an input relation. Symbol columns must be interned into
// symbols.
type Loader interface {
	Load(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error
}

// Sink receives an output relation once it is final.
type Sink interface {
	Emit(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error

func (f LoaderFunc) Load(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error {
	return f(ctx, rel, symbols)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error

func (f SinkFunc) Emit(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error {
	return f(ctx, rel, symbols)
}
