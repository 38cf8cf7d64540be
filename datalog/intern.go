package datalog

import (
	"sync"
)

// SymbolTable interns strings to dense ids starting at zero.
// Lookups of known strings go through a sync.Map and take no lock.
type SymbolTable struct {
	ids sync.Map // map[string]Value

	mu    sync.RWMutex
	names []string
}

// NewSymbolTable creates a table whose first ids are the seed strings in
// order.
func NewSymbolTable(seed ...string) *SymbolTable {
	st := &SymbolTable{names: make([]string, 0, len(seed)+64)}
	for _, s := range seed {
		st.Intern(s)
	}
	return st
}

// Intern returns the id for s, assigning the next id on first sight.
func (st *SymbolTable) Intern(s string) Value {
	// Fast path: load existing (lock-free)
	if v, ok := st.ids.Load(s); ok {
		return v.(Value)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if v, ok := st.ids.Load(s); ok {
		return v.(Value)
	}
	id := Value(len(st.names))
	st.names = append(st.names, s)
	st.ids.Store(s, id)
	return id
}

// Lookup returns the id for s without interning it.
func (st *SymbolTable) Lookup(s string) (Value, bool) {
	v, ok := st.ids.Load(s)
	if !ok {
		return 0, false
	}
	return v.(Value), true
}

// Resolve returns the string behind id.
func (st *SymbolTable) Resolve(id Value) (string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if id < 0 || int64(id) >= int64(len(st.names)) {
		return "", false
	}
	return st.names[id], true
}

// Len returns the number of interned strings.
func (st *SymbolTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.names)
}

// Symbols returns a copy of all strings in id order.
func (st *SymbolTable) Symbols() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]string, len(st.names))
	copy(out, st.names)
	return out
}
