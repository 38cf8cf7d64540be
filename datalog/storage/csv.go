package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wbrown/horus-datalog/datalog"
	"github.com/wbrown/horus-datalog/datalog/relation"
)

// CSVDir writes relations to <Dir>/<name>.csv: a header of column names,
// then one tab-separated row per tuple in primary index order. Fields
// are written verbatim, without quoting.
type CSVDir struct {
	Dir string
}

// NewCSVDir returns a sink writing into dir, which is created on first
// use.
func NewCSVDir(dir string) *CSVDir {
	return &CSVDir{Dir: dir}
}

// Path returns the result file of a relation.
func (d *CSVDir) Path(name string) string {
	return filepath.Join(d.Dir, name+".csv")
}

// Emit writes the relation, replacing any previous file. The file
// appears complete or not at all.
func (d *CSVDir) Emit(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(d.Dir, "."+rel.Name()+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := WriteCSV(ctx, tmp, rel, symbols); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.Path(rel.Name())); err != nil {
		return fmt.Errorf("failed to publish %s: %w", rel.Name(), err)
	}
	return nil
}

// WriteCSV writes the header and rows of rel to w.
func WriteCSV(ctx context.Context, w io.Writer, rel *relation.Relation, symbols *datalog.SymbolTable) error {
	bw := bufio.NewWriterSize(w, 1<<16)
	schema := rel.Schema()

	bw.WriteString(strings.Join(schema.ColumnNames(), "\t"))
	bw.WriteByte('\n')

	n := 0
	var err error
	rel.Scan(nil).Each(func(t datalog.Tuple) bool {
		n++
		if n%4096 == 0 {
			if err = ctx.Err(); err != nil {
				return false
			}
		}
		bw.WriteString(strings.Join(datalog.Format(t, schema.Columns, symbols), "\t"))
		if err = bw.WriteByte('\n'); err != nil {
			return false
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", rel.Name(), err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel.Name(), err)
	}
	return nil
}
