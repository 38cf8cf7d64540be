package executor

import (
	"errors"

	"github.com/wbrown/horus-datalog/datalog/relation"
)

var (
	ErrUnknownRelation = errors.New("unknown relation")
	ErrUnknownColumn   = errors.New("unknown column")
	ErrUnknownAlias    = errors.New("unknown alias")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrNotStratified   = errors.New("program is not stratified")
	ErrInvalidDelta    = errors.New("delta generator outside a fixpoint")
	ErrInvalidProgram  = errors.New("invalid program")

	// Raised as panics inside rules and returned from Run.
	ErrConversion     = errors.New("conversion failed")
	ErrDivisionByZero = errors.New("division by zero")
	ErrRulePanic      = errors.New("rule panicked")
)

// Relation-level sentinels, re-exported so callers of Compile and Run
// can match every error through this package.
var (
	ErrArity               = relation.ErrArity
	ErrUndeclaredSignature = relation.ErrUndeclaredSignature
	ErrSchemaMismatch      = relation.ErrSchemaMismatch
)
