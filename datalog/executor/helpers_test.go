package executor

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wbrown/horus-datalog/datalog"
	"github.com/wbrown/horus-datalog/datalog/annotations"
	"github.com/wbrown/horus-datalog/datalog/parser"
	"github.com/wbrown/horus-datalog/datalog/relation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// facts is an in-memory Loader keyed by relation name. Symbol columns
// are given as strings and interned on load.
type facts map[string][][]interface{}

func (f facts) Load(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error {
	kinds := rel.Schema().Kinds()
	for _, row := range f[rel.Name()] {
		t := make(datalog.Tuple, len(row))
		for i, v := range row {
			if kinds[i] == datalog.Symbol {
				t[i] = symbols.Intern(v.(string))
			} else {
				t[i] = datalog.Value(v.(int))
			}
		}
		rel.Insert(t, nil)
	}
	return nil
}

// capture is a Sink that keeps the formatted rows of every emitted
// relation.
type capture struct {
	mu   sync.Mutex
	rows map[string][]string
}

func newCapture() *capture {
	return &capture{rows: make(map[string][]string)}
}

func (c *capture) Emit(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error {
	var rows []string
	for t := range rel.Scan(nil).All() {
		rows = append(rows, joinRow(datalog.Format(t, rel.Schema().Columns, symbols)))
	}
	c.mu.Lock()
	c.rows[rel.Name()] = rows
	c.mu.Unlock()
	return nil
}

func (c *capture) get(name string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows[name]
}

func joinRow(cells []string) string {
	out := ""
	for i, c := range cells {
		if i > 0 {
			out += " "
		}
		out += c
	}
	return out
}

func compileYAML(t *testing.T, src string, opts Options) *Plan {
	t.Helper()
	prog, err := parser.ParseProgram([]byte(src))
	require.NoError(t, err)
	plan, err := Compile(prog, nil, opts)
	require.NoError(t, err)
	return plan
}

func compileErr(t *testing.T, src string) error {
	t.Helper()
	prog, err := parser.ParseProgram([]byte(src))
	require.NoError(t, err)
	_, err = Compile(prog, nil, DefaultOptions())
	require.Error(t, err)
	return err
}

func sequential() Options {
	opts := DefaultOptions()
	opts.Workers = 1
	return opts
}

func parallel() Options {
	opts := DefaultOptions()
	opts.Workers = 4
	opts.Chunks = 7
	return opts
}

// tuples returns the relation's contents as sorted formatted rows.
func tuples(t *testing.T, plan *Plan, name string) []string {
	t.Helper()
	rel, ok := plan.Relation(name)
	require.True(t, ok, "relation %s", name)
	var rows []string
	for tu := range rel.Scan(nil).All() {
		rows = append(rows, joinRow(datalog.Format(tu, rel.Schema().Columns, plan.Symbols())))
	}
	sort.Strings(rows)
	return rows
}

func runAnnotated(t *testing.T, plan *Plan, loader Loader, sink Sink) (*annotations.Collector, error) {
	t.Helper()
	ectx := NewContext(func(annotations.Event) {})
	err := plan.RunWithContext(context.Background(), ectx, loader, sink)
	return ectx.Collector(), err
}
