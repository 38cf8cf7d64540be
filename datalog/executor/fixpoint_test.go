package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/horus-datalog/datalog/annotations"
)

const closureProgram = `
name: closure
relations:
  - name: use
    role: input
    columns: [step1:number, step2:number]
    indices: [[step1, step2], [step2, step1]]
  - name: data_flow
    role: output
    columns: [step1:number, step2:number]
strata:
  - load: [use]
  - fixpoint:
      targets: [data_flow]
      base:
        - head: data_flow(u.step2, u.step1)
          body:
            - scan: use
              as: u
      recursive:
        - name: data_flow_step
          head: data_flow(d.step1, u.step1)
          body:
            - scan: data_flow
              as: d
              delta: true
            - range: use
              as: u
              bind: {step2: d.step2}
  - emit: [data_flow]
`

var chain = facts{"use": {{1, 2}, {2, 3}, {3, 4}}}

func TestTransitiveClosure(t *testing.T) {
	for name, opts := range map[string]Options{"sequential": sequential(), "parallel": parallel()} {
		t.Run(name, func(t *testing.T) {
			plan := compileYAML(t, closureProgram, opts)
			sink := newCapture()
			events, err := runAnnotated(t, plan, chain, sink)
			require.NoError(t, err)

			want := []string{"2 1", "3 1", "3 2", "4 1", "4 2", "4 3"}
			assert.Equal(t, want, tuples(t, plan, "data_flow"))
			assert.ElementsMatch(t, want, sink.get("data_flow"))

			rounds := events.Named(annotations.FixpointIteration)
			require.Len(t, rounds, 3)
			added := []int{rounds[0].Int("tuple.count"), rounds[1].Int("tuple.count"), rounds[2].Int("tuple.count")}
			assert.Equal(t, []int{2, 1, 0}, added)
			assert.Equal(t, 3, rounds[2].Int("iteration"))

			emitted := events.Named(annotations.RelationEmitted)
			require.Len(t, emitted, 1)
			assert.Equal(t, 6, emitted[0].Int("tuple.count"))
		})
	}
}

func TestFixpointRerunAddsNothing(t *testing.T) {
	plan := compileYAML(t, closureProgram, sequential())
	_, err := runAnnotated(t, plan, chain, nil)
	require.NoError(t, err)

	events, err := runAnnotated(t, plan, chain, nil)
	require.NoError(t, err)
	assert.Len(t, tuples(t, plan, "data_flow"), 6)

	rounds := events.Named(annotations.FixpointIteration)
	require.Len(t, rounds, 1)
	assert.Equal(t, 0, rounds[0].Int("tuple.count"))
}

func TestFixpointWithoutInput(t *testing.T) {
	plan := compileYAML(t, closureProgram, sequential())
	events, err := runAnnotated(t, plan, facts{}, nil)
	require.NoError(t, err)
	assert.Empty(t, tuples(t, plan, "data_flow"))

	rounds := events.Named(annotations.FixpointIteration)
	require.Len(t, rounds, 1)
	assert.Equal(t, 0, rounds[0].Int("tuple.count"))
	assert.Len(t, events.Named(annotations.RuleSkipped), 2)
}

func TestMutualRecursion(t *testing.T) {
	plan := compileYAML(t, `
relations:
  - name: edge
    columns: [src:number, dst:number]
  - name: even
    columns: [node:number]
  - name: odd
    columns: [node:number]
strata:
  - load: [edge]
  - fixpoint:
      targets: [even, odd]
      base:
        - head: even(e.src)
          body:
            - range: edge
              as: e
              bind: {src: 0}
      recursive:
        - head: odd(e.dst)
          body:
            - scan: even
              as: v
              delta: true
            - range: edge
              as: e
              bind: {src: v.node}
        - head: even(e.dst)
          body:
            - scan: odd
              as: o
              delta: true
            - range: edge
              as: e
              bind: {src: o.node}
`, parallel())

	edges := facts{"edge": {{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 2}}}
	require.NoError(t, plan.Run(context.Background(), edges, nil))

	assert.Equal(t, []string{"0", "2", "3", "4"}, tuples(t, plan, "even"))
	assert.Equal(t, []string{"1", "2", "3", "4"}, tuples(t, plan, "odd"))
}

func TestFixpointRespectsCancellation(t *testing.T) {
	plan := compileYAML(t, closureProgram, sequential())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := plan.Run(ctx, chain, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
