package annotations

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatEvents(t *testing.T) {
	f := NewOutputFormatter(&bytes.Buffer{})
	require.False(t, f.useColor)

	tests := []struct {
		event Event
		want  string
	}{
		{
			Event{Name: RuleEvaluated, Latency: 1500 * time.Microsecond, Data: map[string]interface{}{
				"rule": "Reentrancy", "relation": "Reentrancy", "tuple.count": 1234,
			}},
			"[1.5ms] Rule(Reentrancy) → Reentrancy(1,234 Tuples)",
		},
		{
			Event{Name: RelationLoaded, Latency: 20 * time.Microsecond, Data: map[string]interface{}{
				"relation": "use", "columns": []string{"step1", "step2"}, "tuple.count": 3,
			}},
			"[20µs] loaded use([step1 step2], 3 Tuples)",
		},
		{
			Event{Name: RuleSkipped, Data: map[string]interface{}{"rule": "ShortAddress", "empty": "transaction"}},
			"[0µs] Rule(ShortAddress) skipped: transaction is empty",
		},
		{
			Event{Name: FixpointIteration, Data: map[string]interface{}{
				"targets": []string{"data_flow"}, "iteration": 2, "tuple.count": 0,
			}},
			"[0µs] Fixpoint(data_flow) round 2 → 0 new Tuples",
		},
		{
			Event{Name: ProgramComplete, Data: map[string]interface{}{"success": false, "error": errors.New("boom")}},
			"[0µs] ✗ Program failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.event.Name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Format(tt.event))
		})
	}
}

func TestCollector(t *testing.T) {
	var mu sync.Mutex
	seen := 0
	c := NewCollector(func(Event) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddTiming(RuleEvaluated, time.Now(), map[string]interface{}{"rule": "r"})
		}()
	}
	wg.Wait()
	c.Add(Event{Name: StratumBegin})

	assert.Equal(t, 17, seen)
	assert.Len(t, c.Events(), 17)
	assert.Len(t, c.Named(RuleEvaluated), 16)

	c.Reset()
	assert.Empty(t, c.Events())
}

func TestCollectorDisabled(t *testing.T) {
	c := NewCollector(nil)
	c.Add(Event{Name: StratumBegin})
	assert.Empty(t, c.Events())
}

func TestMulti(t *testing.T) {
	assert.Nil(t, Multi(nil, nil))

	var a, b int
	h := Multi(func(Event) { a++ }, nil, func(Event) { b++ })
	h(Event{})
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestSummary(t *testing.T) {
	out := Summary([]Event{
		{Name: RelationEmitted, Data: map[string]interface{}{"relation": "Reentrancy", "tuple.count": 1}},
		{Name: RelationLoaded, Data: map[string]interface{}{"relation": "call", "tuple.count": 5}},
	})
	assert.Contains(t, out, "Reentrancy")
	assert.NotContains(t, out, "call")
}
