package executor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/horus-datalog/datalog"
	"github.com/wbrown/horus-datalog/datalog/query"
)

const relationsHeader = `
relations:
  - name: call
    role: input
    columns: [step:number, opcode:symbol, hash:symbol]
    indices: [[step], [hash, step]]
  - name: storage
    role: input
    columns: [step:number, hash:symbol]
  - name: out
    role: output
    columns: [a:number, b:number]
strata:
  - load: [call, storage]
`

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		strata  string
		wantErr error
	}{
		{
			name: "unknown relation",
			strata: `
  - derive:
      - head: out(c.step, c.step)
        body:
          - scan: nope
            as: c`,
			wantErr: ErrUnknownRelation,
		},
		{
			name: "unknown head relation",
			strata: `
  - derive:
      - head: nope(c.step)
        body:
          - scan: call
            as: c`,
			wantErr: ErrUnknownRelation,
		},
		{
			name: "unknown column",
			strata: `
  - derive:
      - head: out(c.step, c.depth)
        body:
          - scan: call
            as: c`,
			wantErr: ErrUnknownColumn,
		},
		{
			name: "alias used before its generator",
			strata: `
  - derive:
      - head: out(c.step, s.step)
        body:
          - range: call
            as: c
            bind: {hash: s.hash}
          - scan: storage
            as: s`,
			wantErr: ErrUnknownAlias,
		},
		{
			name: "undeclared signature",
			strata: `
  - derive:
      - head: out(c.step, c.step)
        body:
          - range: call
            as: c
            bind: {opcode: '"CALL"'}`,
			wantErr: ErrUndeclaredSignature,
		},
		{
			name: "symbol into number column",
			strata: `
  - derive:
      - head: out(c.step, c.hash)
        body:
          - scan: call
            as: c`,
			wantErr: ErrTypeMismatch,
		},
		{
			name: "number bound to symbol column",
			strata: `
  - derive:
      - head: out(c.step, c.step)
        body:
          - range: call
            as: c
            bind: {hash: 1}`,
			wantErr: ErrTypeMismatch,
		},
		{
			name: "ordering symbols",
			strata: `
  - derive:
      - head: out(c.step, c.step)
        body:
          - scan: call
            as: c
            where: ['c.hash < "x"']`,
			wantErr: ErrTypeMismatch,
		},
		{
			name: "arithmetic on symbol",
			strata: `
  - derive:
      - head: out(c.step, c.hash + 1)
        body:
          - scan: call
            as: c`,
			wantErr: ErrTypeMismatch,
		},
		{
			name: "head arity",
			strata: `
  - derive:
      - head: out(c.step)
        body:
          - scan: call
            as: c`,
			wantErr: ErrArity,
		},
		{
			name: "delta outside fixpoint",
			strata: `
  - derive:
      - head: out(c.step, c.step)
        body:
          - scan: call
            as: c
            delta: true`,
			wantErr: ErrInvalidDelta,
		},
		{
			name: "rule reads its own stratum",
			strata: `
  - derive:
      - head: out(c.step, c.step)
        body:
          - scan: call
            as: c
      - head: out(o.a, o.b)
        body:
          - scan: out
            as: o`,
			wantErr: ErrNotStratified,
		},
		{
			name: "rule negates a later stratum",
			strata: `
  - derive:
      - head: out(c.step, c.step)
        body:
          - scan: call
            as: c
          - not: storage
            bind: {step: c.step}
  - load: [storage]`,
			wantErr: ErrNotStratified,
		},
		{
			name: "alias reused",
			strata: `
  - derive:
      - head: out(c.step, c.step)
        body:
          - scan: call
            as: c
          - scan: storage
            as: c`,
			wantErr: ErrInvalidProgram,
		},
		{
			name: "first on negation",
			strata: `
  - derive:
      - head: out(c.step, c.step)
        body:
          - scan: call
            as: c
          - not: storage
            bind: {step: c.step}
            first: true`,
			wantErr: ErrInvalidProgram,
		},
		{
			name: "match on number",
			strata: `
  - derive:
      - head: out(c.step, c.step)
        body:
          - scan: call
            as: c
            where: ['match("1.*", c.step)']`,
			wantErr: ErrTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := compileErr(t, relationsHeader+tt.strata)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCompileFixpointErrors(t *testing.T) {
	header := `
relations:
  - name: edge
    columns: [src:number, dst:number]
  - name: path
    columns: [src:number, dst:number]
    indices: [[src], [dst]]
strata:
  - load: [edge]
`
	tests := map[string]struct {
		strata  string
		wantErr error
	}{
		"negated delta": {`
  - fixpoint:
      targets: [path]
      recursive:
        - head: path(e.src, e.dst)
          body:
            - scan: edge
              as: e
            - not: path
              bind: {src: e.src}
              delta: true`, ErrNotStratified},
		"negated target": {`
  - fixpoint:
      targets: [path]
      recursive:
        - head: path(e.src, e.dst)
          body:
            - scan: edge
              as: e
            - not: path
              bind: {src: e.src}`, ErrNotStratified},
		"delta of a non-target": {`
  - fixpoint:
      targets: [path]
      recursive:
        - head: path(e.src, e.dst)
          body:
            - scan: edge
              as: e
              delta: true`, ErrInvalidDelta},
		"delta in a base rule": {`
  - fixpoint:
      targets: [path]
      base:
        - head: path(p.src, p.dst)
          body:
            - scan: path
              as: p
              delta: true`, ErrInvalidDelta},
		"head outside targets": {`
  - fixpoint:
      targets: [path]
      base:
        - head: edge(p.src, p.dst)
          body:
            - scan: path
              as: p`, ErrInvalidProgram},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := compileErr(t, header+tt.strata)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCompileErrorNamesRule(t *testing.T) {
	err := compileErr(t, relationsHeader+`
  - derive:
      - name: broken
        head: out(c.step, c.depth)
        body:
          - scan: call
            as: c`)
	assert.Contains(t, err.Error(), "stratum 1")
	assert.Contains(t, err.Error(), "rule broken")
	assert.Contains(t, err.Error(), "c.depth")
}

func TestCompileStratumOutOfRange(t *testing.T) {
	prog := &query.Program{
		Relations: []query.RelationDecl{{Name: "a", Columns: []datalog.Column{{Name: "x"}}}},
		Strata:    []query.Stratum{{Kind: query.Load, Relations: []string{"a"}}},
	}
	opts := DefaultOptions()
	opts.Stratum = 3
	_, err := Compile(prog, nil, opts)
	assert.ErrorIs(t, err, ErrInvalidProgram)

	_, err = Compile(nil, nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidProgram)
}

func TestCompileDuplicateRelation(t *testing.T) {
	prog := &query.Program{
		Relations: []query.RelationDecl{
			{Name: "a", Columns: []datalog.Column{{Name: "x"}}},
			{Name: "a", Columns: []datalog.Column{{Name: "y"}}},
		},
	}
	_, err := Compile(prog, nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidProgram)
}

func TestCompileInternsSeedSymbols(t *testing.T) {
	symbols := datalog.NewSymbolTable()
	pre := symbols.Intern("already")

	prog := &query.Program{Symbols: []string{"CALL", "0"}}
	plan, err := Compile(prog, symbols, DefaultOptions())
	require.NoError(t, err)

	assert.Same(t, symbols, plan.Symbols())
	id, ok := symbols.Lookup("CALL")
	require.True(t, ok)
	assert.Greater(t, int64(id), int64(pre))
	_, ok = symbols.Lookup("0")
	assert.True(t, ok)
}

func TestCompileChoosesIndex(t *testing.T) {
	plan := compileYAML(t, relationsHeader+`
  - derive:
      - name: pairs
        head: out(c0.step, c1.step)
        body:
          - scan: call
            as: c0
          - range: call
            as: c1
            bind: {hash: c0.hash}
            where: [c1.step > c0.step]
`, sequential())

	desc := plan.Describe()
	assert.Contains(t, desc, "[0] load call,storage")
	assert.Contains(t, desc, "pairs → out")
	assert.Contains(t, desc, "scan call index 0 [0 1 2]")
	assert.Contains(t, desc, "range call index 1 [2 0 1]")

	names := make([]string, 0)
	for _, rel := range plan.Relations() {
		names = append(names, rel.Name())
	}
	assert.Equal(t, []string{"call", "storage", "out"}, names)
	assert.Equal(t, "pairs", strings.Fields(strings.Split(desc, "\n")[2])[0])
}

func TestCompileFixpointWorkingRelations(t *testing.T) {
	plan := compileYAML(t, closureProgram, sequential())

	_, ok := plan.Relation("data_flow")
	assert.True(t, ok)
	_, ok = plan.Relation("data_flow.delta")
	assert.False(t, ok, "working relations are not declared relations")
	assert.Len(t, plan.Relations(), 2)
}
