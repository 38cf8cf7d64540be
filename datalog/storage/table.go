package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/wbrown/horus-datalog/datalog"
	"github.com/wbrown/horus-datalog/datalog/relation"
)

// TableFormatter renders relations as markdown tables
type TableFormatter struct {
	// MaxWidth is the maximum width for a cell; 0 disables truncation
	MaxWidth int
	// TruncateString is the string to append when truncating
	TruncateString string
	// MaxRows limits the rows rendered; 0 renders all of them
	MaxRows int
}

// NewTableFormatter creates a new table formatter with default settings
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// FormatRelation formats a relation as a markdown table, resolving
// symbol columns through symbols.
func (tf *TableFormatter) FormatRelation(rel *relation.Relation, symbols *datalog.SymbolTable) string {
	if rel == nil || rel.Empty() {
		return "_Empty relation_"
	}

	schema := rel.Schema()
	var rows [][]string
	rel.Scan(nil).Each(func(t datalog.Tuple) bool {
		if tf.MaxRows > 0 && len(rows) == tf.MaxRows {
			return false
		}
		rows = append(rows, datalog.Format(t, schema.Columns, symbols))
		return true
	})
	return tf.formatTable(schema.ColumnNames(), rows, rel.Size())
}

// Format renders arbitrary rows under the given column names.
func (tf *TableFormatter) Format(columns []string, rows [][]string) string {
	if len(rows) == 0 {
		return "_Empty relation_"
	}
	return tf.formatTable(columns, rows, len(rows))
}

// formatTable formats columns and rows as a markdown table
func (tf *TableFormatter) formatTable(columns []string, rows [][]string, total int) string {
	tableString := &strings.Builder{}

	// AlignNone keeps the separator row plain
	alignment := make([]tw.Align, len(columns))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(columns)

	for _, row := range rows {
		for j, cell := range row {
			row[j] = tf.truncate(cell)
		}
		table.Append(row)
	}
	table.Render()

	if len(rows) < total {
		fmt.Fprintf(tableString, "\n_%s of %s rows_\n", humanize.Comma(int64(len(rows))), humanize.Comma(int64(total)))
	} else {
		fmt.Fprintf(tableString, "\n_%s rows_\n", humanize.Comma(int64(total)))
	}
	return tableString.String()
}

func (tf *TableFormatter) truncate(s string) string {
	if tf.MaxWidth <= 0 || len(s) <= tf.MaxWidth {
		return s
	}
	keep := tf.MaxWidth - len(tf.TruncateString)
	if keep < 0 {
		keep = 0
	}
	return s[:keep] + tf.TruncateString
}

// TableSink writes every emitted relation to W as a titled markdown
// table.
type TableSink struct {
	W         io.Writer
	Formatter *TableFormatter

	mu sync.Mutex
}

// NewTableSink creates a sink with the default formatter.
func NewTableSink(w io.Writer) *TableSink {
	return &TableSink{W: w, Formatter: NewTableFormatter()}
}

func (s *TableSink) Emit(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error {
	table := s.Formatter.FormatRelation(rel, symbols)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.W, "## %s\n\n%s\n", rel.Name(), table); err != nil {
		return fmt.Errorf("failed to write table %s: %w", rel.Name(), err)
	}
	return nil
}
