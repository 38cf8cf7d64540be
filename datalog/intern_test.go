package datalog

import (
	"fmt"
	"sync"
	"testing"
)

func TestSymbolTableSeedOrder(t *testing.T) {
	st := NewSymbolTable("CALLER", "CALL", "0")

	if id := st.Intern("CALL"); id != 1 {
		t.Errorf("expected CALL to have id 1, got %d", id)
	}
	if id := st.Intern("fresh"); id != 3 {
		t.Errorf("expected next id 3, got %d", id)
	}
	if s, ok := st.Resolve(2); !ok || s != "0" {
		t.Errorf("expected id 2 to resolve to \"0\", got %q (%v)", s, ok)
	}
	if _, ok := st.Resolve(99); ok {
		t.Error("expected unknown id to fail to resolve")
	}
	if _, ok := st.Resolve(-1); ok {
		t.Error("expected negative id to fail to resolve")
	}
	if _, ok := st.Lookup("missing"); ok {
		t.Error("lookup must not intern")
	}
	if st.Len() != 4 {
		t.Errorf("expected 4 symbols, got %d", st.Len())
	}
}

func TestSymbolTableConcurrentIntern(t *testing.T) {
	st := NewSymbolTable()
	const workers = 16
	const keys = 200

	var wg sync.WaitGroup
	results := make([][]Value, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]Value, keys)
			for i := 0; i < keys; i++ {
				ids[i] = st.Intern(fmt.Sprintf("sym/%d", i))
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()

	if st.Len() != keys {
		t.Fatalf("expected %d symbols, got %d", keys, st.Len())
	}
	for w := 1; w < workers; w++ {
		for i := range results[w] {
			if results[w][i] != results[0][i] {
				t.Fatalf("worker %d got id %d for key %d, worker 0 got %d", w, results[w][i], i, results[0][i])
			}
		}
	}
	seen := make(map[Value]bool)
	for _, id := range results[0] {
		if id < 0 || int(id) >= keys {
			t.Fatalf("id %d outside dense range", id)
		}
		if seen[id] {
			t.Fatalf("id %d assigned twice", id)
		}
		seen[id] = true
	}
}

// BenchmarkSymbolTableIntern measures interning with realistic reuse
func BenchmarkSymbolTableIntern(b *testing.B) {
	st := NewSymbolTable()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			st.Intern(fmt.Sprintf("0x%040x", i%100))
			i++
		}
	})
}
