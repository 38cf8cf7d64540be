package executor

import (
	"sync"
	"sync/atomic"

	"github.com/dlclark/regexp2"
)

// RegexCache caches compiled match() patterns. Patterns are anchored so
// they must match the whole string, with ECMAScript semantics. Failed
// compilations are cached too.
type RegexCache struct {
	entries map[string]*cachedRegex
	mu      sync.RWMutex
	seq     uint64

	// Statistics
	hits   atomic.Int64
	misses atomic.Int64

	maxSize int
}

type cachedRegex struct {
	re  *regexp2.Regexp
	err error
	seq uint64
}

// NewRegexCache creates a cache holding at most maxSize patterns.
func NewRegexCache(maxSize int) *RegexCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &RegexCache{
		entries: make(map[string]*cachedRegex),
		maxSize: maxSize,
	}
}

// Get returns the compiled full-match form of pattern.
func (c *RegexCache) Get(pattern string) (*regexp2.Regexp, error) {
	c.mu.RLock()
	cached, ok := c.entries[pattern]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return cached.re, cached.err
	}
	c.misses.Add(1)

	re, err := regexp2.Compile("^(?:"+pattern+")$", regexp2.ECMAScript)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.seq++
	c.entries[pattern] = &cachedRegex{re: re, err: err, seq: c.seq}
	return re, err
}

// evictOldest drops the entry inserted first. Caller holds mu.
func (c *RegexCache) evictOldest() {
	var oldest string
	var oldestSeq uint64
	for k, v := range c.entries {
		if oldestSeq == 0 || v.seq < oldestSeq {
			oldest, oldestSeq = k, v.seq
		}
	}
	delete(c.entries, oldest)
}

// Stats returns cache statistics
func (c *RegexCache) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits.Load(), c.misses.Load(), len(c.entries)
}
