package executor

import "runtime"

// AllStrata selects every stratum in Options.Stratum.
const AllStrata = -1

// Options configures compilation and evaluation of a program. Start from
// DefaultOptions; the zero value runs only stratum 0.
type Options struct {
	// Workers bounds the goroutines evaluating rules. 1 evaluates
	// sequentially on the caller's goroutine.
	Workers int

	// Chunks is the number of pieces the outermost range of a rule is
	// split into when Workers > 1. 0 means 4 per worker.
	Chunks int

	// KeepRelations skips purge strata, so every relation survives the
	// run. Hint profiling needs this.
	KeepRelations bool

	// Stratum runs a single stratum by index; AllStrata runs them all.
	Stratum int

	// RegexCacheSize bounds the compiled patterns kept for match().
	RegexCacheSize int
}

// DefaultOptions returns options for a full parallel run.
func DefaultOptions() Options {
	return Options{
		Workers:        runtime.NumCPU(),
		Stratum:        AllStrata,
		RegexCacheSize: 256,
	}
}

func (o Options) normalized() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Chunks <= 0 {
		o.Chunks = 4 * o.Workers
	}
	if o.RegexCacheSize <= 0 {
		o.RegexCacheSize = 256
	}
	if o.Stratum < AllStrata {
		o.Stratum = AllStrata
	}
	return o
}
