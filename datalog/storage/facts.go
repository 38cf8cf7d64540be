// Package storage moves relations in and out of the engine: tab-separated
// fact and result files, markdown tables, and a badger database.
package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wbrown/horus-datalog/datalog"
	"github.com/wbrown/horus-datalog/datalog/relation"
)

// maxLine bounds a single fact line. Call input data is hex and can be
// long.
const maxLine = 64 << 20

// ParseError reports a malformed line of a fact file. Line and Column
// are 1-based; Column is the field number.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("%s:%d: field %d: %v", e.Path, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FactDir loads relations from <Dir>/<name>.facts. Each line is one
// tuple with tab-separated fields.
type FactDir struct {
	Dir string
}

// NewFactDir returns a loader reading from dir.
func NewFactDir(dir string) *FactDir {
	return &FactDir{Dir: dir}
}

// Path returns the fact file of a relation.
func (d *FactDir) Path(name string) string {
	return filepath.Join(d.Dir, name+".facts")
}

// Load reads the relation's fact file. A missing file is an error that
// wraps fs.ErrNotExist.
func (d *FactDir) Load(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error {
	path := d.Path(rel.Name())
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open facts: %w", err)
	}
	defer f.Close()

	return ReadFacts(ctx, f, path, rel, symbols)
}

// ReadFacts parses tab-separated tuples from r into rel. name is used in
// errors only.
func ReadFacts(ctx context.Context, r io.Reader, name string, rel *relation.Relation, symbols *datalog.SymbolTable) error {
	kinds := rel.Schema().Kinds()
	arity := len(kinds)
	tuple := make(datalog.Tuple, arity)
	hints := relation.NewHints()
	defer rel.Release(hints)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLine)

	line := 0
	for scanner.Scan() {
		line++
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		text := strings.TrimSuffix(scanner.Text(), "\r")
		if text == "" {
			continue
		}

		fields := strings.Split(text, "\t")
		if len(fields) != arity {
			return &ParseError{
				Path: name,
				Line: line,
				Err:  fmt.Errorf("%w: %d fields, %s has %d columns", relation.ErrArity, len(fields), rel.Name(), arity),
			}
		}
		for i, field := range fields {
			if kinds[i] == datalog.Symbol {
				tuple[i] = symbols.Intern(field)
				continue
			}
			v, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return &ParseError{Path: name, Line: line, Column: i + 1, Err: err}
			}
			tuple[i] = datalog.Value(v)
		}
		rel.Insert(tuple, hints)
	}
	if err := scanner.Err(); err != nil {
		return &ParseError{Path: name, Line: line + 1, Err: err}
	}
	return nil
}
