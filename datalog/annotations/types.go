// Package annotations provides a low-overhead event system for tracking
// program evaluation: strata, rules, fixpoint rounds and relation traffic.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Program lifecycle
	ProgramBegin    = "program/begin"
	ProgramComplete = "program/complete"

	// Strata
	StratumBegin    = "stratum/begin"
	StratumComplete = "stratum/complete"

	// Rules
	RuleEvaluated = "rule/evaluated"
	RuleSkipped   = "rule/skipped"

	FixpointIteration = "fixpoint/iteration"

	// Relation traffic
	RelationLoaded     = "relation/loaded"
	RelationLoadFailed = "relation/load-failed"
	RelationEmitted    = "relation/emitted"
	RelationPurged     = "relation/purged"

	PredicateWarning = "predicate/warning"
)

// Event represents a single annotation event during evaluation.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Event-specific data
}

// Int reads an integer field, returning 0 when absent.
func (e Event) Int(key string) int {
	switch v := e.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	}
	return 0
}

// String reads a string field, returning "" when absent.
func (e Event) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Multi fans one event out to several handlers. Nil handlers are skipped.
func Multi(handlers ...Handler) Handler {
	var live []Handler
	for _, h := range handlers {
		if h != nil {
			live = append(live, h)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return func(e Event) {
		for _, h := range live {
			h(e)
		}
	}
}

// Collector accumulates events during a run. Safe for concurrent use;
// rule workers report through the same collector.
type Collector struct {
	enabled bool
	handler Handler

	mu     sync.Mutex
	events []Event
}

// NewCollector creates a new annotation collector.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: handler != nil,
		handler: handler,
		events:  make([]Event, 0, 128),
	}
}

// Handler returns the underlying event handler.
func (c *Collector) Handler() Handler {
	return c.handler
}

// Add records a new event.
func (c *Collector) Add(event Event) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// Call handler outside the lock to avoid deadlocks
	c.handler(event)
}

// AddTiming records an event that began at start and ends now.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.enabled {
		return
	}

	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns a copy of all collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Named returns the collected events with the given name, in order.
func (c *Collector) Named(name string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, e := range c.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the collector for reuse.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
