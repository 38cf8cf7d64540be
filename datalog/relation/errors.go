package relation

import (
	"errors"
	"fmt"
)

var (
	// ErrArity is wrapped by ArityError.
	ErrArity = errors.New("tuple arity mismatch")
	// ErrUndeclaredSignature means no index of the relation answers the
	// requested set of bound columns.
	ErrUndeclaredSignature = errors.New("undeclared index signature")
	// ErrInvalidSchema covers bad column or index declarations.
	ErrInvalidSchema = errors.New("invalid relation schema")
	// ErrSchemaMismatch is returned when two relations must share a shape
	// and do not.
	ErrSchemaMismatch = errors.New("relation schema mismatch")
)

// ArityError is raised (as a panic value) when a tuple of the wrong width
// reaches a relation. It indicates the program and the schema disagree.
type ArityError struct {
	Relation string
	Want     int
	Got      int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("relation %s: expected %d columns, got %d", e.Relation, e.Want, e.Got)
}

func (e *ArityError) Unwrap() error {
	return ErrArity
}
