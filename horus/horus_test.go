package horus

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wbrown/horus-datalog/datalog"
	"github.com/wbrown/horus-datalog/datalog/executor"
	"github.com/wbrown/horus-datalog/datalog/query"
	"github.com/wbrown/horus-datalog/datalog/relation"
	"github.com/wbrown/horus-datalog/datalog/storage"
)

func TestMain(m *testing.M) {
	// badger links glog, whose flush daemon starts at init
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/golang/glog.(*loggingT).flushDaemon"))
}

// trace holds tab-separated fact lines per input relation.
type trace map[string][]string

// writeTrace writes one .facts file per input relation, empty when the
// trace has no rows for it.
func writeTrace(t *testing.T, tr trace) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range Input {
		content := ""
		if rows := tr[name]; len(rows) > 0 {
			content = strings.Join(rows, "\n") + "\n"
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".facts"), []byte(content), 0o644))
	}
	return dir
}

type findings struct {
	mu   sync.Mutex
	rows map[string][]string
}

func (f *findings) Emit(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error {
	var rows []string
	for t := range rel.Scan(nil).All() {
		rows = append(rows, strings.Join(datalog.Format(t, rel.Schema().Columns, symbols), " "))
	}
	sort.Strings(rows)
	f.mu.Lock()
	f.rows[rel.Name()] = rows
	f.mu.Unlock()
	return nil
}

func run(t *testing.T, tr trace, opts executor.Options) map[string][]string {
	t.Helper()
	prog, err := Program()
	require.NoError(t, err)
	plan, err := executor.Compile(prog, nil, opts)
	require.NoError(t, err)

	out := &findings{rows: make(map[string][]string)}
	require.NoError(t, plan.Run(context.Background(), storage.NewFactDir(writeTrace(t, tr)), out))
	return out.rows
}

func bothModes(t *testing.T, fn func(t *testing.T, opts executor.Options)) {
	seq := executor.DefaultOptions()
	seq.Workers = 1
	par := executor.DefaultOptions()
	par.Workers = 4
	par.Chunks = 5
	t.Run("sequential", func(t *testing.T) { fn(t, seq) })
	t.Run("parallel", func(t *testing.T) { fn(t, par) })
}

func TestProgramCompiles(t *testing.T) {
	prog, err := Program()
	require.NoError(t, err)

	assert.Equal(t, "horus", prog.Name)
	assert.Len(t, prog.Symbols, 20)
	assert.Len(t, prog.Relations, 28)
	assert.Equal(t, Input, prog.RelationsWithRole(query.Input))
	assert.Equal(t, Output, prog.RelationsWithRole(query.Output))

	plan, err := executor.Compile(prog, nil, executor.DefaultOptions())
	require.NoError(t, err)

	// seed symbols keep their ids
	for i, s := range prog.Symbols {
		id, ok := plan.Symbols().Lookup(s)
		require.True(t, ok, s)
		assert.Equal(t, datalog.Value(i), id, s)
	}

	desc := plan.Describe()
	assert.Contains(t, desc, "CrossFunctionReentrancy → CrossFunctionReentrancy")
	assert.Contains(t, desc, "data_flow.step → data_flow")
}

func TestEveryOutputIsEmittedOnce(t *testing.T) {
	prog := MustProgram()
	emitted := make(map[string]int)
	for _, s := range prog.Strata {
		if s.Kind == query.Emit {
			for _, name := range s.Relations {
				emitted[name]++
			}
		}
	}
	for _, name := range Output {
		assert.Equal(t, 1, emitted[name], name)
	}
}

func TestSourceIsACopy(t *testing.T) {
	a := Source()
	a[0] = 'X'
	assert.NotEqual(t, a[0], Source()[0])
}

func TestReentrancy(t *testing.T) {
	tr := trace{
		"block": {"100\t21000\t30000\t1600000000"},
		"call": {
			"1\t0xabc\tCALL\t0xa\t0xb\t0x1234\t5\t1\t1",
			"2\t0xabc\tCALL\t0xa\t0xb\t0x1234\t5\t2\t1",
		},
		"transaction": {"0xabc\t0xa\t0xb\t0x1234\t21000\t30000\t1\t100"},
	}

	bothModes(t, func(t *testing.T, opts executor.Options) {
		out := run(t, tr, opts)
		assert.Equal(t, []string{"0xabc 1600000000 2 0xa 0xb 2 5"}, out["Reentrancy"])
		assert.Empty(t, out["CreateBasedReentrancy"])
		assert.Empty(t, out["UnhandledException"])
	})
}

func TestReentrancyIgnoresZeroValue(t *testing.T) {
	tr := trace{
		"block": {"100\t21000\t30000\t1600000000"},
		"call": {
			"1\t0xabc\tCALL\t0xa\t0xb\t0x1234\t0\t1\t1",
			"2\t0xabc\tCALL\t0xa\t0xb\t0x1234\t0\t2\t1",
		},
		"transaction": {"0xabc\t0xa\t0xb\t0x1234\t21000\t30000\t1\t100"},
	}
	out := run(t, tr, executor.DefaultOptions())
	assert.Empty(t, out["Reentrancy"])
}

func TestParityWalletHack2(t *testing.T) {
	base := trace{
		"block": {"10\t0\t0\t1000", "11\t0\t0\t1100"},
		"transaction": {
			"0xh1\t0xowner\t0xwallet\te46dcfeb00\t0\t0\t1\t10",
			"0xh2\t0xowner\t0xwallet\tcbf0b0c0ff\t0\t0\t1\t11",
		},
		"selfdestruct": {"7\t0xh2\t0xowner\t0xwallet\t0xthief\t100"},
	}

	tests := []struct {
		name  string
		calls []string
		want  []string
	}{
		{
			name: "no delegatecall",
			want: []string{"0xh1 0xh2 1000 1100 0xowner 0xwallet 0xthief 100"},
		},
		{
			name:  "delegatecall in first transaction",
			calls: []string{"1\t0xh1\tDELEGATECALL\t0xwallet\t0xlib\t\t0\t1\t1"},
		},
		{
			name:  "delegatecall in second transaction",
			calls: []string{"1\t0xh2\tDELEGATECALL\t0xwallet\t0xlib\t\t0\t1\t1"},
		},
		{
			name:  "failed delegatecall",
			calls: []string{"1\t0xh1\tDELEGATECALL\t0xwallet\t0xlib\t\t0\t1\t0"},
			want:  []string{"0xh1 0xh2 1000 1100 0xowner 0xwallet 0xthief 100"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := trace{}
			for k, v := range base {
				tr[k] = v
			}
			tr["call"] = tt.calls
			out := run(t, tr, executor.DefaultOptions())
			assert.Equal(t, tt.want, out["ParityWalletHack2"])
		})
	}
}

func TestTaintAnalysis(t *testing.T) {
	// CALLDATALOAD at step 1 flows through step 3 into the selfdestruct
	// at step 5.
	base := trace{
		"block":        {"1\t0\t0\t50"},
		"transaction":  {"0xh\t0xc\t0xk\t\t0\t0\t1\t1"},
		"def":          {"1\tCALLDATALOAD"},
		"use":          {"3\t1", "5\t3"},
		"selfdestruct": {"5\t0xh\t0xc\t0xk\t0xd\t9"},
	}

	t.Run("unchecked", func(t *testing.T) {
		bothModes(t, func(t *testing.T, opts executor.Options) {
			out := run(t, base, opts)
			assert.Equal(t, []string{"0xh 50 5 0xc 0xk 0xd 9"}, out["UncheckedSuicide"])
		})
	})

	t.Run("caller checked", func(t *testing.T) {
		tr := trace{}
		for k, v := range base {
			tr[k] = v
		}
		// CALLER at step 2 reaches the condition at step 8
		tr["def"] = []string{"1\tCALLDATALOAD", "2\tCALLER"}
		tr["use"] = []string{"3\t1", "5\t3", "8\t2"}
		tr["condition"] = []string{"8\t0xh"}

		out := run(t, tr, executor.DefaultOptions())
		assert.Empty(t, out["UncheckedSuicide"])
	})
}

func TestUnhandledException(t *testing.T) {
	base := trace{
		"block":       {"1\t0\t0\t50"},
		"transaction": {"0xh\t0xa\t0xb\t\t0\t0\t1\t1"},
		"call":        {"4\t0xh\tCALL\t0xa\t0xb\t\t7\t1\t0"},
	}

	out := run(t, base, executor.DefaultOptions())
	assert.Equal(t, []string{"0xh 50 4 0xa 0xb 7"}, out["UnhandledException"])

	// the failed call's result feeds a condition
	checked := trace{
		"block":       base["block"],
		"transaction": base["transaction"],
		"call":        base["call"],
		"use":         {"8\t4"},
		"condition":   {"8\t0xh"},
	}
	out = run(t, checked, executor.DefaultOptions())
	assert.Empty(t, out["UnhandledException"])
}

func TestDoSWithUnexpectedThrow(t *testing.T) {
	tr := trace{
		"block":       {"1\t0\t0\t50"},
		"transaction": {"0xh\t0xa\t0xb\t\t0\t0\t0\t1"},
		"call":        {"1\t0xh\tCALL\t0xa\t0xb\t\t3\t1\t0"},
		"throw": {
			"2\t0xh\tREVERT\t0xb\t2",
			"3\t0xh\tREVERT\t0xa\t1",
		},
	}
	out := run(t, tr, executor.DefaultOptions())
	assert.Equal(t, []string{"0xh 50 3 0xa 0xb 3"}, out["DoSWithUnexpectedThrow"])
}

func TestShortAddress(t *testing.T) {
	// 4-byte selector plus a 31-byte address and a 32-byte amount
	short := "a9059cbb" + strings.Repeat("0", 62) + strings.Repeat("1", 64)
	full := "a9059cbb" + strings.Repeat("0", 64) + strings.Repeat("1", 64)

	tr := trace{
		"block": {"1\t0\t0\t50"},
		"transaction": {
			"0xs\t0xa\t0xt\t" + short + "\t0\t0\t1\t1",
			"0xf\t0xa\t0xt\t" + full + "\t0\t0\t1\t1",
		},
		"transfer": {
			"9\t0xs\t0xa\t0xb\t256",
			"9\t0xf\t0xa\t0xb\t1",
		},
	}
	out := run(t, tr, executor.DefaultOptions())
	assert.Equal(t, []string{"0xs 50 9 0xa 0xb 256"}, out["ShortAddress"])
}
